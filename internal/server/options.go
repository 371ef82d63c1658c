package server

import (
	"errors"
	"log/slog"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/resources"
	"github.com/giantswarm/k7s/internal/service"
	"github.com/giantswarm/k7s/internal/watch"
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithRegistry sets the source of kubeconfig contexts.
func WithRegistry(registry ContextSource) Option {
	return func(sc *ServerContext) error {
		if registry == nil {
			return ErrMissingRegistry
		}
		sc.registry = registry
		return nil
	}
}

// WithCatalog sets the resource type catalog. It defaults to the catalog of
// the service.
func WithCatalog(catalog *resources.Catalog) Option {
	return func(sc *ServerContext) error {
		sc.catalog = catalog
		return nil
	}
}

// WithService sets the resource items service.
func WithService(svc *service.Service) Option {
	return func(sc *ServerContext) error {
		if svc == nil {
			return ErrMissingService
		}
		sc.service = svc
		return nil
	}
}

// WithMultiplexer sets the tracker of watch sessions. A fresh one is created
// when omitted.
func WithMultiplexer(m *watch.Multiplexer) Option {
	return func(sc *ServerContext) error {
		sc.multiplexer = m
		return nil
	}
}

// WithLogger sets the logger for the ServerContext.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig sets the configuration for the ServerContext.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}

// WithVersion sets the version reported by the health endpoints.
func WithVersion(version string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.Version = version
		return nil
	}
}

// WithReadOnly enables or disables read-only mode.
func WithReadOnly(enabled bool) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.ReadOnly = enabled
		return nil
	}
}

// WithInstrumentationProvider sets the OpenTelemetry instrumentation provider.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.instrumentationProvider = provider
		return nil
	}
}

// Error definitions for ServerContext validation and operations.
var (
	ErrMissingRegistry = errors.New("context registry is required")
	ErrMissingService  = errors.New("resource items service is required")
	ErrMissingLogger   = errors.New("logger is required")
	ErrMissingConfig   = errors.New("configuration is required")
	ErrServerShutdown  = errors.New("server context has been shutdown")
)
