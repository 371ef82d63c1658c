package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"

	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/logging"
)

// ErrNotFound is returned when no resource type matches a lookup.
var ErrNotFound = errors.New("resource type not found")

// ClientResolver hands out the clients of a kubeconfig context.
type ClientResolver interface {
	Client(contextName string) (*k8s.ClusterClient, error)
	ResolveContext(name string) string
}

// MetricsRecorder records catalog rebuilds.
type MetricsRecorder interface {
	RecordCatalogRefresh(ctx context.Context, contextName, status string, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordCatalogRefresh(context.Context, string, string, time.Duration) {}

type catalogEntry struct {
	types   []ResourceType
	builtAt time.Time
}

// Catalog discovers and caches the resource types of every context.
type Catalog struct {
	clients ClientResolver
	logger  *slog.Logger
	metrics MetricsRecorder

	// refreshInterval of zero keeps a catalog until Invalidate.
	refreshInterval time.Duration

	mu      sync.RWMutex
	entries map[string]*catalogEntry

	buildGroup singleflight.Group

	now func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger for the catalog.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the catalog.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(c *Catalog) {
		c.metrics = metrics
	}
}

// WithRefreshInterval rebuilds a context's catalog once it is older than d.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Catalog) {
		c.refreshInterval = d
	}
}

// withClock sets the clock function for testing.
func withClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// NewCatalog creates an empty catalog. Contexts are discovered on first use.
func NewCatalog(clients ClientResolver, opts ...Option) *Catalog {
	c := &Catalog{
		clients: clients,
		logger:  slog.Default(),
		metrics: noopMetricsRecorder{},
		entries: make(map[string]*catalogEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// All returns every resource type of a context. Concurrent first calls for
// the same context share a single discovery run.
func (c *Catalog) All(ctx context.Context, contextName string) ([]ResourceType, error) {
	name := c.clients.ResolveContext(contextName)
	if types, ok := c.cached(name); ok {
		return types, nil
	}

	v, err, _ := c.buildGroup.Do(name, func() (any, error) {
		if types, ok := c.cached(name); ok {
			return types, nil
		}

		start := c.now()
		types, err := c.discover(ctx, name)
		if err != nil {
			c.metrics.RecordCatalogRefresh(ctx, name, logging.StatusError, c.now().Sub(start))
			return nil, err
		}
		c.metrics.RecordCatalogRefresh(ctx, name, logging.StatusSuccess, c.now().Sub(start))

		c.mu.Lock()
		c.entries[name] = &catalogEntry{types: types, builtAt: c.now()}
		c.mu.Unlock()

		c.logger.Debug("Resource catalog built",
			logging.Context(name),
			slog.Int("types", len(types)),
			logging.Duration(c.now().Sub(start)))
		return types, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ResourceType), nil
}

func (c *Catalog) cached(contextName string) ([]ResourceType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[contextName]
	if !ok {
		return nil, false
	}
	if c.refreshInterval > 0 && c.now().Sub(entry.builtAt) >= c.refreshInterval {
		return nil, false
	}
	return entry.types, true
}

// Invalidate drops the cached catalog of a context.
func (c *Catalog) Invalidate(contextName string) {
	name := c.clients.ResolveContext(contextName)

	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
	c.buildGroup.Forget(name)

	c.logger.Info("Resource catalog invalidated", logging.Context(name))
}

func (c *Catalog) discover(ctx context.Context, contextName string) ([]ResourceType, error) {
	client, err := c.clients.Client(contextName)
	if err != nil {
		return nil, err
	}

	_, lists, err := client.Discovery.ServerGroupsAndResources()
	if err != nil {
		if !discovery.IsGroupDiscoveryFailedError(err) || len(lists) == 0 {
			c.logger.Error("API discovery failed", logging.Context(contextName), logging.SanitizedErr(err))
			return nil, fmt.Errorf("failed to discover API resources: %w", err)
		}
		c.logger.Warn("API discovery partially failed, continuing with available groups",
			logging.Context(contextName), logging.SanitizedErr(err))
	}

	var discovered []DiscoveredResource
	for _, list := range lists {
		if list == nil {
			continue
		}
		gv, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			continue
		}
		for _, res := range list.APIResources {
			discovered = append(discovered, DiscoveredResource{Group: gv.Group, Version: gv.Version, Resource: res})
		}
	}

	return MapResourceTypes(discovered, c.customResources(ctx, client)), nil
}

// customResources lists CRDs. Failures degrade to an empty list.
func (c *Catalog) customResources(ctx context.Context, client *k8s.ClusterClient) []CustomResource {
	if client.APIExtensions == nil {
		return nil
	}
	list, err := client.APIExtensions.ApiextensionsV1().CustomResourceDefinitions().List(ctx, metav1.ListOptions{})
	if err != nil {
		c.logger.Warn("Failed to list custom resource definitions",
			logging.Context(client.Context), logging.SanitizedErr(err))
		return nil
	}

	crs := make([]CustomResource, 0, len(list.Items))
	for _, crd := range list.Items {
		crs = append(crs, CustomResourceFromCRD(crd))
	}
	return crs
}

// ByGroupAndName finds a type by group and plural name.
func (c *Catalog) ByGroupAndName(ctx context.Context, contextName, group, name string) (ResourceType, error) {
	return c.find(ctx, contextName, fmt.Sprintf("%s/%s", group, name), func(rt ResourceType) bool {
		return rt.Group == group && rt.Name == name
	})
}

// ByGroupAndKind finds a type by group and kind. Kinds compare
// case-insensitively.
func (c *Catalog) ByGroupAndKind(ctx context.Context, contextName, group, kind string) (ResourceType, error) {
	folded := fold(kind)
	return c.find(ctx, contextName, fmt.Sprintf("%s/%s", group, kind), func(rt ResourceType) bool {
		return rt.Group == group && fold(rt.Kind) == folded
	})
}

// ByName finds a type by plural name, then singular name, then short name.
// Types of different groups can share a name; the first one in catalog order
// that is served at its storage version wins.
func (c *Catalog) ByName(ctx context.Context, contextName, name string) (ResourceType, error) {
	types, err := c.All(ctx, contextName)
	if err != nil {
		return ResourceType{}, err
	}

	folded := fold(name)
	matchers := []func(ResourceType) bool{
		func(rt ResourceType) bool { return fold(rt.Name) == folded },
		func(rt ResourceType) bool { return rt.SingularName != "" && fold(rt.SingularName) == folded },
		func(rt ResourceType) bool {
			return slices.ContainsFunc(rt.ShortNames, func(s string) bool { return fold(s) == folded })
		},
	}
	for _, match := range matchers {
		if rt, ok := pick(types, match); ok {
			return rt, nil
		}
	}

	c.logger.Error("Resource type not found", logging.Context(contextName), logging.ResourceType(name))
	return ResourceType{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (c *Catalog) find(ctx context.Context, contextName, description string, match func(ResourceType) bool) (ResourceType, error) {
	types, err := c.All(ctx, contextName)
	if err != nil {
		return ResourceType{}, err
	}
	if rt, ok := pick(types, match); ok {
		return rt, nil
	}

	c.logger.Error("Resource type not found", logging.Context(contextName), logging.ResourceType(description))
	return ResourceType{}, fmt.Errorf("%w: %s", ErrNotFound, description)
}

// pick returns the first matching type that is served at its storage
// version, or the first matching type when none is.
func pick(types []ResourceType, match func(ResourceType) bool) (ResourceType, bool) {
	first := -1
	for i, rt := range types {
		if !match(rt) {
			continue
		}
		if slices.Contains(rt.ServedVersions, rt.StorageVersion) {
			return rt, true
		}
		if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return ResourceType{}, false
	}
	return types[first], true
}

// fold applies Unicode case folding. A Caser is stateful, so each call gets
// its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
