package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/giantswarm/k7s/internal/instrumentation"
	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/server"
	"github.com/giantswarm/k7s/internal/server/middleware"
)

// newHTTPHandler wraps the API routes with the metrics, security header and
// CORS middleware.
func newHTTPHandler(sc *server.ServerContext, config ServeConfig, provider *instrumentation.Provider) http.Handler {
	handler := server.NewAPI(sc).Handler()
	handler = middleware.HTTPMetrics(provider)(handler)
	handler = middleware.CORS(config.AllowedOrigins)(handler)
	handler = middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		EnableHSTS: config.EnableHSTS,
	})(handler)
	return handler
}

// runHTTPServer serves the dashboard API until ctx is cancelled.
func runHTTPServer(ctx context.Context, sc *server.ServerContext, config ServeConfig, provider *instrumentation.Provider) error {
	handler := newHTTPHandler(sc, config, provider)

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if config.Metrics.Enabled && provider.PrometheusHandler() != nil {
		var err error
		metricsServer, err = startMetricsServer(config.Metrics, provider)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// No WriteTimeout: event streams stay open for as long as the client
	// watches.
	httpServer := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: server.DefaultReadHeaderTimeout,
		IdleTimeout:       server.DefaultIdleTimeout,
	}

	slog.Info("HTTP server starting",
		"addr", config.HTTPAddr,
		"read_only", config.ReadOnly,
		"health_endpoints", []string{"/healthz", "/readyz", "/healthz/detailed"})

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()

		// Shutdown metrics server first
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error shutting down metrics server", logging.Err(err))
			}
		}

		// Open event streams only end once their sessions are stopped.
		if err := sc.Shutdown(); err != nil {
			slog.Error("error shutting down server context", logging.Err(err))
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		slog.Info("HTTP server stopped normally")
	}

	slog.Info("HTTP server gracefully stopped")
	return nil
}

// startMetricsServer starts the dedicated metrics server on a separate port.
func startMetricsServer(config MetricsServeConfig, provider *instrumentation.Provider) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    config.Addr,
		Enabled:                 config.Enabled,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", logging.Err(err))
		}
	}()

	slog.Info("metrics server started", "addr", config.Addr, "endpoint", provider.PrometheusEndpoint())
	return metricsServer, nil
}
