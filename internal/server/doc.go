// Package server provides the ServerContext pattern and the HTTP boundary of
// the k7s dashboard.
//
// The package contains:
//
//   - ServerContext: Encapsulates the server dependencies and their lifecycle
//   - Functional Options: Dependency injection and configuration
//   - API: The JSON and server-sent event endpoints
//   - HealthChecker: Liveness and readiness probes
//   - MetricsServer: The Prometheus scrape endpoint on its own port
//
// The ServerContext Pattern:
//
// ServerContext bundles the context registry, the resource type catalog, the
// resource items service, the watch multiplexer, the logger and the server
// configuration. Everything is injected through functional options:
//
//	serverCtx, err := NewServerContext(ctx,
//		WithRegistry(registry),
//		WithService(svc),
//		WithLogger(logger),
//		WithReadOnly(true),
//	)
//	if err != nil {
//		return err
//	}
//	defer serverCtx.Shutdown()
//
//	go serverCtx.Multiplexer().Run(serverCtx.Context())
//	handler := NewAPI(serverCtx).Handler()
//
// Shutdown cancels the server context. The running multiplexer then stops
// every watch session, which ends the open event streams. New streams are
// refused with ErrServerShutdown.
//
// Routes:
//
// Path segments named group and namespace accept the "null" sentinel for the
// core API group and for cluster scoped items. The context query parameter
// selects a kubeconfig context and defaults to the registry's default one.
//
//	GET    /api/v1/resources
//	GET    /api/v1/resources/search?q=
//	POST   /api/v1/resources/refresh
//	GET    /api/v1/resources/{group}/{resource}?namespace=
//	GET    /api/v1/resources/{group}/{resource}/raw
//	GET    /api/v1/resources/{group}/{resource}/{namespace}/{name}/yaml
//	PATCH  /api/v1/resources/{group}/{resource}/{namespace}/{name}?scaleTo=
//	DELETE /api/v1/resources/{group}/{resource}/{namespace}/{name}?gracePeriod=
//	GET    /api/v1/stats
//	GET    /api/v1/logs/{kind}/{namespace}/{name}?containerName=&since=
//	GET    /watch/resources/{group}/{resource}?namespace=&resourceVersion=
//	GET    /watch/logs/{kind}/{namespace}/{name}?containerName=&since=
//
// The resource segment is a plural name or a kind. Read-only mode answers
// PATCH and DELETE with 403.
package server
