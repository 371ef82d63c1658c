package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	statsv1alpha1 "k8s.io/kubelet/pkg/apis/stats/v1alpha1"

	"github.com/giantswarm/k7s/internal/logging"
)

// DefaultTTL is how long a context's summaries are served from cache.
const DefaultTTL = time.Minute

// Lookup results reported to the MetricsRecorder.
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupForced = "forced"
)

// Kinds that carry kubelet statistics.
const (
	kindNode                  = "Node"
	kindPod                   = "Pod"
	kindPersistentVolumeClaim = "PersistentVolumeClaim"
)

// MetricsRecorder records cache lookups and node fetch failures.
type MetricsRecorder interface {
	RecordStatsLookup(ctx context.Context, contextName, result string)
	RecordNodeFetchFailure(ctx context.Context, contextName string)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordStatsLookup(context.Context, string, string) {}
func (noopMetricsRecorder) RecordNodeFetchFailure(context.Context, string)    {}

type cacheEntry struct {
	summaries Summaries
	storedAt  time.Time
}

// Cache keeps the most recent kubelet summaries of every context.
//
// An entry is either absent or holds at least one non-nil summary. Entries
// younger than the TTL are served without contacting the cluster.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	logger  *slog.Logger
	metrics MetricsRecorder

	mu      sync.RWMutex
	entries map[string]*cacheEntry

	fetchGroup singleflight.Group

	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long summaries stay fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the cache.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

// withClock sets the clock function for testing.
func withClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a Cache reading summaries through fetcher.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		logger:  slog.Default(),
		metrics: noopMetricsRecorder{},
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	return c
}

// TTL returns the freshness window of cached summaries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the summaries of a context. Unless force is set, a fresh cached
// entry is returned as is. Otherwise summaries are fetched for nodeNames, or
// for every node of the context when nodeNames is empty. Nil is returned when
// no node delivered a summary, or when ctx ends while waiting for a fetch;
// such results are not cached.
func (c *Cache) Get(ctx context.Context, contextName string, nodeNames []string, force bool) Summaries {
	if force {
		c.metrics.RecordStatsLookup(ctx, contextName, LookupForced)
		return c.refresh(ctx, contextName, nodeNames)
	}

	if summaries, ok := c.fresh(contextName); ok {
		c.metrics.RecordStatsLookup(ctx, contextName, LookupHit)
		return summaries
	}
	c.metrics.RecordStatsLookup(ctx, contextName, LookupMiss)

	// The shared fetch outlives the caller that started it; a cancelled
	// caller stops waiting without failing the others.
	shared := context.WithoutCancel(ctx)
	ch := c.fetchGroup.DoChan(contextName, func() (any, error) {
		if summaries, ok := c.fresh(contextName); ok {
			return summaries, nil
		}
		return c.refresh(shared, contextName, nodeNames), nil
	})
	select {
	case <-ctx.Done():
		return nil
	case res := <-ch:
		summaries, _ := res.Val.(Summaries)
		return summaries
	}
}

// Cached returns the stored summaries of a context regardless of their age.
func (c *Cache) Cached(contextName string) (Summaries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[contextName]
	if !ok {
		return nil, false
	}
	return entry.summaries, true
}

func (c *Cache) fresh(contextName string) (Summaries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[contextName]
	if !ok || c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false
	}
	return entry.summaries, true
}

// refresh fetches one summary per node concurrently. A failing node yields a
// nil summary and never fails the others.
func (c *Cache) refresh(ctx context.Context, contextName string, nodeNames []string) Summaries {
	logger := logging.WithContext(c.logger, contextName)

	names := nodeNames
	if len(names) == 0 {
		var err error
		names, err = c.fetcher.NodeNames(ctx, contextName)
		if err != nil {
			logger.Error("Failed to list nodes for stats", logging.SanitizedErr(err))
			return nil
		}
	}
	if len(names) == 0 {
		return nil
	}

	results := make([]*statsv1alpha1.Summary, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			summary, err := c.fetcher.Summary(ctx, contextName, name)
			if err != nil {
				c.metrics.RecordNodeFetchFailure(ctx, contextName)
				logger.Warn("Failed to fetch node stats", logging.Node(name), logging.SanitizedErr(err))
				return nil
			}
			results[i] = summary
			return nil
		})
	}
	_ = g.Wait()

	summaries := make(Summaries, len(names))
	for i, name := range names {
		summaries[name] = results[i]
	}
	if summaries.Empty() {
		return nil
	}

	c.mu.Lock()
	c.entries[contextName] = &cacheEntry{summaries: summaries, storedAt: c.now()}
	c.mu.Unlock()

	return summaries
}

// ShouldForceRefresh decides whether a watch event for obj needs fresh
// summaries. That is the case when nothing is cached, or when obj was created
// within the TTL and the cached summaries do not know it yet.
func (c *Cache) ShouldForceRefresh(contextName, kind string, obj metav1.Object) bool {
	switch kind {
	case kindNode, kindPod, kindPersistentVolumeClaim:
	default:
		return false
	}

	summaries, ok := c.Cached(contextName)
	if !ok {
		return true
	}

	created := obj.GetCreationTimestamp().Time
	if c.now().Sub(created) >= c.ttl {
		return false
	}

	switch kind {
	case kindNode:
		return summaries.Node(obj.GetName()) == nil
	case kindPod:
		podStats, _ := summaries.Pod(obj.GetNamespace(), obj.GetName())
		return podStats == nil
	default:
		return true
	}
}
