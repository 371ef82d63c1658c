package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/server"
	"github.com/giantswarm/k7s/internal/watch"
)

// newServeCmd creates the Cobra command for starting the dashboard server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		Long: `Start the k7s dashboard API server.

The server exposes the resource types, items, statistics and logs of every
kubeconfig context over JSON endpoints, and streams item changes and log lines
as server-sent events.

Every flag can also be set through a K7S_ prefixed environment variable
(for example K7S_HTTP_ADDR) or a YAML file passed with --config.

Instrumentation is configured through environment variables:
  INSTRUMENTATION_ENABLED=true       Enable OpenTelemetry metrics and traces
  METRICS_EXPORTER=prometheus        prometheus, otlp or stdout
  TRACING_EXPORTER=none              otlp, stdout or none
  OTEL_EXPORTER_OTLP_ENDPOINT=...    OTLP collector endpoint`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newConfigViper(cmd)
			if err != nil {
				return err
			}
			config, err := loadServeConfig(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), config)
		},
	}

	addServeFlags(cmd.Flags())
	return cmd
}

// runServe wires all components and blocks until a termination signal
// arrives or the HTTP server fails.
func runServe(ctx context.Context, config ServeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logging.Setup(logging.Options{
		Format: config.Log.Format,
		Debug:  config.Log.Debug,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	provider, err := instrumentation.NewProvider(ctx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down instrumentation provider", logging.Err(err))
		}
	}()

	metrics := provider.Metrics()
	if provider.Enabled() {
		logger.Info("instrumentation enabled",
			"metrics_exporter", instrumentationConfig.MetricsExporter,
			"tracing_exporter", instrumentationConfig.TracingExporter)
	}

	registry, err := newRegistry(config.Cluster, logger)
	if err != nil {
		return err
	}
	logRegistry(logger, registry)

	s := newStack(registry, logger, stackOptions{
		statsTTL:          config.StatsTTL,
		catalogRefresh:    config.CatalogRefresh,
		reconnectAttempts: config.ReconnectAttempts,
		metrics:           metrics,
	})

	multiplexer := watch.New(
		watch.WithSweepInterval(config.SweepInterval),
		watch.WithLogger(logger),
		watch.WithMetrics(metrics),
	)

	sc, err := server.NewServerContext(ctx,
		server.WithRegistry(registry),
		server.WithService(s.service),
		server.WithCatalog(s.catalog),
		server.WithMultiplexer(multiplexer),
		server.WithLogger(logger),
		server.WithVersion(rootCmd.Version),
		server.WithReadOnly(config.ReadOnly),
		server.WithInstrumentationProvider(provider),
	)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := sc.Shutdown(); err != nil {
			logger.Error("error during server context shutdown", logging.Err(err))
		}
	}()

	go sc.Multiplexer().Run(sc.Context())

	if config.ReadOnly {
		logger.Info("read-only mode enabled, scale and delete requests are rejected")
	}

	return runHTTPServer(ctx, sc, config, provider)
}

func logRegistry(logger *slog.Logger, registry *k8s.Registry) {
	if registry.InCluster() {
		logger.Info("using in-cluster authentication")
		return
	}
	logger.Info("kubeconfig loaded",
		"contexts", len(registry.Contexts()),
		"default_context", registry.DefaultContext())
}
