package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/items"
	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/resources"
	"github.com/giantswarm/k7s/internal/service"
	"github.com/giantswarm/k7s/internal/stats"
)

// stack is the chain of components behind every cluster facing command.
type stack struct {
	registry *k8s.Registry
	catalog  *resources.Catalog
	service  *service.Service
}

// stackOptions tunes the components. The zero value suits one-shot commands,
// which never watch.
type stackOptions struct {
	statsTTL          time.Duration
	catalogRefresh    time.Duration
	reconnectAttempts int
	metrics           *instrumentation.Metrics
}

func newRegistry(config ClusterConfig, logger *slog.Logger) (*k8s.Registry, error) {
	registry, err := k8s.NewRegistry(&k8s.RegistryConfig{
		KubeconfigPath: config.Kubeconfig,
		Context:        config.Context,
		InCluster:      config.InCluster,
		QPSLimit:       config.QPSLimit,
		BurstLimit:     config.BurstLimit,
		Timeout:        config.Timeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster configuration: %w", err)
	}
	return registry, nil
}

// newStack wires catalog, stats cache, mapper and service on top of a
// registry.
func newStack(registry *k8s.Registry, logger *slog.Logger, opts stackOptions) *stack {
	catalogOpts := []resources.Option{resources.WithLogger(logger)}
	statsOpts := []stats.Option{stats.WithLogger(logger)}
	serviceOpts := []service.Option{
		service.WithLogger(logger),
		service.WithReconnectAttempts(opts.reconnectAttempts),
	}

	if opts.catalogRefresh > 0 {
		catalogOpts = append(catalogOpts, resources.WithRefreshInterval(opts.catalogRefresh))
	}
	if opts.statsTTL > 0 {
		statsOpts = append(statsOpts, stats.WithTTL(opts.statsTTL))
	}
	if opts.metrics != nil {
		catalogOpts = append(catalogOpts, resources.WithMetrics(opts.metrics))
		statsOpts = append(statsOpts, stats.WithMetrics(opts.metrics))
		serviceOpts = append(serviceOpts, service.WithMetrics(opts.metrics))
	}

	catalog := resources.NewCatalog(registry, catalogOpts...)
	cache := stats.NewCache(stats.NewClusterFetcher(registry), statsOpts...)
	return &stack{
		registry: registry,
		catalog:  catalog,
		service:  service.New(registry, catalog, cache, items.NewMapper(), serviceOpts...),
	}
}
