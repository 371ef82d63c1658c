// Package instrumentation provides OpenTelemetry metrics and tracing for k7s.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Kubernetes Operation Metrics:
//   - kubernetes_operations_total: Counter of list, get, scale, delete, logs and watch calls
//   - kubernetes_operation_duration_seconds: Histogram of operation durations
//
// Catalog and Stats Metrics:
//   - resource_catalog_refresh_total / _duration_seconds: discovery runs per context
//   - stats_cache_lookups_total: stats cache lookups by result (hit, miss, forced)
//   - stats_node_fetch_failures_total: failed kubelet summary fetches
//
// Watch Metrics:
//   - active_watch_sessions: Gauge of registered SSE watch sessions
//   - watch_events_total: Counter of delivered events by type
//   - watch_reconnects_total: Counter of watch reconnect attempts
//
// Operation metrics only carry operation and status labels unless
// Config.DetailedLabels is set, since namespaces and custom resource names
// are unbounded.
//
// # Tracing
//
// Every call the items service makes against an API server runs in a client
// span started with StartK8sSpan. Tracing is off unless TRACING_EXPORTER
// names an exporter.
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: k7s)
package instrumentation
