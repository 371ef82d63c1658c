package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/resources"
	"github.com/giantswarm/k7s/internal/service"
	"github.com/giantswarm/k7s/internal/watch"
)

// ContextSource lists the kubeconfig contexts the server can talk to.
// *k8s.Registry satisfies it.
type ContextSource interface {
	Contexts() []string
	DefaultContext() string
	ResolveContext(name string) string
	InCluster() bool
}

// ServerContext encapsulates all dependencies needed by the HTTP server
// and provides a clean abstraction for dependency injection and lifecycle management.
type ServerContext struct {
	// Core dependencies
	registry    ContextSource
	catalog     *resources.Catalog
	service     *service.Service
	multiplexer *watch.Multiplexer
	logger      *slog.Logger
	config      *Config

	instrumentationProvider *instrumentation.Provider

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle management
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new ServerContext with default values.
// Use the provided functional options to customize the context.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    serverCtx,
		cancel: cancel,
		config: NewDefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	if sc.catalog == nil && sc.service != nil {
		sc.catalog = sc.service.Catalog()
	}
	if sc.multiplexer == nil {
		sc.multiplexer = watch.New(watch.WithLogger(sc.logger))
	}

	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	return sc, nil
}

// Context returns the server context for cancellation and deadlines.
func (sc *ServerContext) Context() context.Context {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ctx
}

// Registry returns the source of kubeconfig contexts.
func (sc *ServerContext) Registry() ContextSource {
	return sc.registry
}

// Catalog returns the resource type catalog.
func (sc *ServerContext) Catalog() *resources.Catalog {
	return sc.catalog
}

// Service returns the resource items service.
func (sc *ServerContext) Service() *service.Service {
	return sc.service
}

// Multiplexer returns the tracker of live watch sessions.
func (sc *ServerContext) Multiplexer() *watch.Multiplexer {
	return sc.multiplexer
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// InstrumentationProvider returns the OpenTelemetry provider, which may be nil.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	return sc.instrumentationProvider
}

// InClusterMode reports whether the registry uses the in-cluster config.
func (sc *ServerContext) InClusterMode() bool {
	return sc.registry != nil && sc.registry.InCluster()
}

// Shutdown gracefully shuts down the server context.
// This cancels the context and stops every open watch session.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.logger.Info("Shutting down server context", slog.Int("watch_sessions", sc.multiplexer.Len()))

	if sc.cancel != nil {
		sc.cancel()
	}
	sc.shutdown = true

	sc.logger.Info("Server context shutdown complete")
	return nil
}

// IsShutdown returns true if the server context has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// validate ensures all required dependencies are set.
func (sc *ServerContext) validate() error {
	if sc.registry == nil {
		return ErrMissingRegistry
	}
	if sc.service == nil {
		return ErrMissingService
	}
	if sc.logger == nil {
		return ErrMissingLogger
	}
	if sc.config == nil {
		return ErrMissingConfig
	}
	return nil
}

// Config holds the server configuration.
type Config struct {
	ServerName string `json:"serverName"`
	Version    string `json:"version"`

	// ReadOnly rejects scale and delete requests.
	ReadOnly bool `json:"readOnly"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName: "k7s",
		Version:    "dev",
	}
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
