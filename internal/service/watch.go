package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/items"
	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/resources"
	"github.com/giantswarm/k7s/internal/stats"
)

// Action is the kind of change an ItemEvent reports.
type Action string

const (
	ActionAdded    Action = "Added"
	ActionModified Action = "Modified"
	ActionDeleted  Action = "Deleted"
)

// ItemEvent is one change to a watched resource type.
type ItemEvent struct {
	Action Action
	Item   items.ResourceItem
	// InsertionIndex is the position of an added item in the sorted listing.
	InsertionIndex *int
}

// ItemWatch delivers the item events of one watch until it is stopped, its
// context is cancelled or reconnecting gives up.
type ItemWatch struct {
	events chan ItemEvent
	done   chan struct{}
	cancel context.CancelFunc
}

// ResultChan returns the event channel. It is closed when the watch ends.
func (w *ItemWatch) ResultChan() <-chan ItemEvent {
	return w.events
}

// Stop ends the watch. It is safe to call more than once.
func (w *ItemWatch) Stop() {
	w.cancel()
}

// Done is closed once the watch has released its API server connection.
func (w *ItemWatch) Done() <-chan struct{} {
	return w.done
}

// errWatchClosed reports a result channel closed by the API server.
var errWatchClosed = errors.New("watch channel closed")

// itemWatcher holds the state of one running watch.
type itemWatcher struct {
	s           *Service
	rt          resources.ResourceType
	kind        items.Kind
	contextName string
	namespace   string
	client      *k8s.ClusterClient
	logger      *slog.Logger

	resourceVersion string
	out             *ItemWatch
}

// WatchItems watches rt in namespace, or in all namespaces when namespace is
// empty. The watch starts at resourceVersion; when that is empty the current
// listing's version is used. A watch that breaks is reopened from the last
// seen version with backoff.
func (s *Service) WatchItems(ctx context.Context, rt resources.ResourceType, contextName, namespace, resourceVersion string) (*ItemWatch, error) {
	if !rt.IsWatchable() {
		return nil, fmt.Errorf("%s: %w", rt.Identifier(), ErrNotWatchable)
	}
	contextName = s.clients.ResolveContext(contextName)

	client, err := s.clients.Client(contextName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &itemWatcher{
		s:           s,
		rt:          rt,
		kind:        items.KindOf(rt.Group, rt.Kind),
		contextName: contextName,
		namespace:   namespace,
		client:      client,
		logger: logging.WithOperation(s.logger, instrumentation.OperationWatch).With(
			logging.Context(contextName),
			logging.ResourceType(rt.Identifier()),
			logging.Namespace(namespace)),
		resourceVersion: resourceVersion,
		out: &ItemWatch{
			events: make(chan ItemEvent),
			done:   make(chan struct{}),
			cancel: cancel,
		},
	}

	start := time.Now()
	upstream, err := w.open(ctx)
	s.record(ctx, contextName, instrumentation.OperationWatch, rt, namespace, start, err)
	if err != nil {
		cancel()
		return nil, err
	}

	go w.run(ctx, upstream)
	return w.out, nil
}

// open starts an API server watch at the current resource version, listing
// first when there is none. An expired version is replaced once by a fresh
// listing. The watch itself runs on the streaming clients.
func (w *itemWatcher) open(ctx context.Context) (watch.Interface, error) {
	lister := accessorFor(w.client, w.rt, w.namespace)
	watcher := accessorFor(w.client.Streaming(), w.rt, w.namespace)
	upstream, err := w.openAt(ctx, lister, watcher)
	if isExpired(err) {
		w.logger.Debug("Resource version expired, relisting", "resourceVersion", w.resourceVersion)
		w.resourceVersion = ""
		upstream, err = w.openAt(ctx, lister, watcher)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", w.rt.Identifier(), err)
	}
	return upstream, nil
}

func (w *itemWatcher) openAt(ctx context.Context, lister, watcher accessor) (watch.Interface, error) {
	if w.resourceVersion == "" {
		_, rv, err := lister.list(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, err
		}
		w.resourceVersion = rv
	}
	return watcher.watch(ctx, metav1.ListOptions{ResourceVersion: w.resourceVersion})
}

func (w *itemWatcher) run(ctx context.Context, upstream watch.Interface) {
	defer close(w.out.done)
	defer close(w.out.events)
	defer w.out.cancel()

	for {
		err := w.consume(ctx, upstream)
		upstream.Stop()
		if ctx.Err() != nil {
			w.logger.Debug("Watch stopped")
			return
		}
		w.logger.Warn("Watch interrupted", logging.SanitizedErr(err))

		if upstream = w.reopen(ctx); upstream == nil {
			return
		}
	}
}

// reopen retries opening the watch with backoff. Only failed opens count
// against the attempt budget, so every successful open starts a fresh
// budget. It returns nil when the context ends or the budget is spent.
func (w *itemWatcher) reopen(ctx context.Context) watch.Interface {
	backoff := w.s.reconnectBackoff
	for attempt := 1; ; attempt++ {
		if attempt > w.s.reconnectAttempts {
			w.logger.Error("Giving up on watch", "attempts", attempt-1)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff.Step()):
		}

		upstream, err := w.open(ctx)
		if err != nil {
			w.s.metrics.RecordWatchReconnect(ctx, w.contextName, instrumentation.StatusError)
			w.logger.Warn("Failed to reopen watch", "attempt", attempt, logging.SanitizedErr(err))
			continue
		}
		w.s.metrics.RecordWatchReconnect(ctx, w.contextName, instrumentation.StatusSuccess)
		w.logger.Info("Watch reopened", "attempt", attempt)
		return upstream
	}
}

// consume forwards the events of one upstream watch until it ends and
// reports why it ended.
func (w *itemWatcher) consume(ctx context.Context, upstream watch.Interface) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-upstream.ResultChan():
			if !ok {
				return errWatchClosed
			}

			switch ev.Type {
			case watch.Error:
				err := apierrors.FromObject(ev.Object)
				if isExpired(err) {
					w.resourceVersion = ""
				}
				return err
			case watch.Bookmark:
				w.track(ev.Object)
				continue
			}

			w.track(ev.Object)
			event, err := w.translate(ctx, ev)
			if err != nil {
				w.logger.Error("Failed to translate watch event", "type", string(ev.Type), logging.Err(err))
				continue
			}

			select {
			case w.out.events <- event:
				w.s.metrics.RecordWatchEvent(ctx, string(ev.Type))
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// track remembers the resource version of obj for reconnects.
func (w *itemWatcher) track(obj runtime.Object) {
	if m, err := meta.Accessor(obj); err == nil && m.GetResourceVersion() != "" {
		w.resourceVersion = m.GetResourceVersion()
	}
}

// translate maps an upstream event to an item event. Added items carry their
// position in a fresh sorted listing. Modified items of stats kinds are
// mapped with stats, refreshed when the cached ones cannot know the item.
func (w *itemWatcher) translate(ctx context.Context, ev watch.Event) (ItemEvent, error) {
	switch ev.Type {
	case watch.Added:
		item, err := w.s.mapper.Map(w.kind, ev.Object, nil)
		if err != nil {
			return ItemEvent{}, err
		}
		event := ItemEvent{Action: ActionAdded, Item: item}
		listing, err := w.s.listItems(ctx, w.rt, w.contextName, w.namespace, false)
		if err != nil {
			w.logger.Warn("Failed to list for insertion index", logging.SanitizedErr(err))
			return event, nil
		}
		if idx := indexOf(listing.Items, item.Key()); idx >= 0 {
			event.InsertionIndex = &idx
		}
		return event, nil

	case watch.Modified:
		item, err := w.s.mapper.Map(w.kind, ev.Object, w.summaries(ctx, ev.Object))
		if err != nil {
			return ItemEvent{}, err
		}
		return ItemEvent{Action: ActionModified, Item: item}, nil

	case watch.Deleted:
		item, err := w.s.mapper.Map(w.kind, ev.Object, nil)
		if err != nil {
			return ItemEvent{}, err
		}
		return ItemEvent{Action: ActionDeleted, Item: item}, nil
	}
	return ItemEvent{}, fmt.Errorf("unexpected watch event type %q", ev.Type)
}

func (w *itemWatcher) summaries(ctx context.Context, obj runtime.Object) stats.Summaries {
	if w.s.stats == nil || !w.rt.HasStats() {
		return nil
	}
	m, err := meta.Accessor(obj)
	if err != nil {
		return nil
	}
	force := w.s.stats.ShouldForceRefresh(w.contextName, w.rt.Kind, m)
	return w.s.stats.Get(ctx, w.contextName, nil, force)
}

func isExpired(err error) bool {
	return apierrors.IsResourceExpired(err) || apierrors.IsGone(err)
}
