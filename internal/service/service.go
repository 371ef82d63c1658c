package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/k7s/internal/items"
	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/resources"
	"github.com/giantswarm/k7s/internal/stats"
)

var (
	// ErrItemNotFound is returned when the requested item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrNotWatchable is returned by WatchItems for types without the watch verb.
	ErrNotWatchable = errors.New("resource type is not watchable")

	// ErrNotLoggable is returned when logs are requested for a kind that has
	// no pods.
	ErrNotLoggable = errors.New("resource kind has no logs")

	// ErrNotListable is returned by RawItems for types without the list verb.
	ErrNotListable = errors.New("resource type is not listable")
)

const (
	defaultReconnectAttempts = 5
	defaultLogWindow         = 10 * time.Minute
)

// DefaultReconnectBackoff is the delay schedule between watch reconnects.
var DefaultReconnectBackoff = wait.Backoff{
	Duration: time.Second,
	Factor:   2,
	Jitter:   0.1,
	Steps:    defaultReconnectAttempts,
	Cap:      30 * time.Second,
}

// ClientResolver hands out the clients of a kubeconfig context.
type ClientResolver interface {
	Client(contextName string) (*k8s.ClusterClient, error)
	ResolveContext(name string) string
}

// MetricsRecorder records Kubernetes operations and watch activity.
// *instrumentation.Metrics satisfies it.
type MetricsRecorder interface {
	RecordK8sOperation(ctx context.Context, contextName, operation, resourceType, namespace, status string, duration time.Duration)
	RecordWatchEvent(ctx context.Context, eventType string)
	RecordWatchReconnect(ctx context.Context, contextName, result string)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordK8sOperation(context.Context, string, string, string, string, string, time.Duration) {}

func (noopMetricsRecorder) RecordWatchEvent(context.Context, string) {}

func (noopMetricsRecorder) RecordWatchReconnect(context.Context, string, string) {}

// Service lists, watches and mutates resource items of every context.
type Service struct {
	clients ClientResolver
	catalog *resources.Catalog
	stats   *stats.Cache
	mapper  *items.Mapper
	logger  *slog.Logger
	metrics MetricsRecorder

	reconnectAttempts int
	reconnectBackoff  wait.Backoff

	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the service.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithReconnectAttempts bounds the consecutive failed reopens of a broken watch.
// Zero disables reconnecting.
func WithReconnectAttempts(n int) Option {
	return func(s *Service) {
		s.reconnectAttempts = n
	}
}

// WithReconnectBackoff sets the delay schedule between watch reconnects.
func WithReconnectBackoff(b wait.Backoff) Option {
	return func(s *Service) {
		s.reconnectBackoff = b
	}
}

// withClock sets the clock function for testing.
func withClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a service on top of the given registry, catalog, stats cache
// and mapper.
func New(clients ClientResolver, catalog *resources.Catalog, statsCache *stats.Cache, mapper *items.Mapper, opts ...Option) *Service {
	s := &Service{
		clients:           clients,
		catalog:           catalog,
		stats:             statsCache,
		mapper:            mapper,
		logger:            slog.Default(),
		metrics:           noopMetricsRecorder{},
		reconnectAttempts: defaultReconnectAttempts,
		reconnectBackoff:  DefaultReconnectBackoff,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mapper == nil {
		s.mapper = items.NewMapper()
	}
	return s
}

// Catalog returns the resource type catalog the service resolves types with.
func (s *Service) Catalog() *resources.Catalog {
	return s.catalog
}

// record reports an operation outcome and its duration.
func (s *Service) record(ctx context.Context, contextName, operation string, rt resources.ResourceType, namespace string, start time.Time, err error) {
	s.metrics.RecordK8sOperation(ctx, contextName, operation, rt.Name, namespace, statusOf(err), time.Since(start))
}
