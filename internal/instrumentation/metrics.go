package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod       = "method"
	attrPath         = "path"
	attrStatus       = "status"
	attrOperation    = "operation"
	attrResourceType = "resource_type"
	attrNamespace    = "namespace"
	attrContext      = "context"
	attrResult       = "result"
	attrEventType    = "event_type"
)

var durationBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0}

// Metrics provides methods for recording observability metrics. It
// satisfies the recorder interfaces of the catalog, the stats cache, the
// items service and the watch multiplexer.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Kubernetes operation metrics
	k8sOperationsTotal   metric.Int64Counter
	k8sOperationDuration metric.Float64Histogram

	// Catalog and stats metrics
	catalogRefreshTotal    metric.Int64Counter
	catalogRefreshDuration metric.Float64Histogram
	statsLookupsTotal      metric.Int64Counter
	statsNodeFailuresTotal metric.Int64Counter

	// Watch metrics
	watchSessions        metric.Int64UpDownCounter
	watchEventsTotal     metric.Int64Counter
	watchReconnectsTotal metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels (context,
	// namespace, resource_type) are included in Kubernetes operation metrics
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.k8sOperationsTotal, err = meter.Int64Counter(
		"kubernetes_operations_total",
		metric.WithDescription("Total number of Kubernetes operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes_operations_total counter: %w", err)
	}

	m.k8sOperationDuration, err = meter.Float64Histogram(
		"kubernetes_operation_duration_seconds",
		metric.WithDescription("Kubernetes operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes_operation_duration_seconds histogram: %w", err)
	}

	m.catalogRefreshTotal, err = meter.Int64Counter(
		"resource_catalog_refresh_total",
		metric.WithDescription("Total number of resource catalog discoveries"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource_catalog_refresh_total counter: %w", err)
	}

	m.catalogRefreshDuration, err = meter.Float64Histogram(
		"resource_catalog_refresh_duration_seconds",
		metric.WithDescription("Resource catalog discovery duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource_catalog_refresh_duration_seconds histogram: %w", err)
	}

	m.statsLookupsTotal, err = meter.Int64Counter(
		"stats_cache_lookups_total",
		metric.WithDescription("Total number of kubelet stats cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats_cache_lookups_total counter: %w", err)
	}

	m.statsNodeFailuresTotal, err = meter.Int64Counter(
		"stats_node_fetch_failures_total",
		metric.WithDescription("Total number of failed kubelet stats summary fetches"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats_node_fetch_failures_total counter: %w", err)
	}

	m.watchSessions, err = meter.Int64UpDownCounter(
		"active_watch_sessions",
		metric.WithDescription("Number of active resource watch sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_watch_sessions gauge: %w", err)
	}

	m.watchEventsTotal, err = meter.Int64Counter(
		"watch_events_total",
		metric.WithDescription("Total number of resource watch events delivered"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch_events_total counter: %w", err)
	}

	m.watchReconnectsTotal, err = meter.Int64Counter(
		"watch_reconnects_total",
		metric.WithDescription("Total number of resource watch reconnect attempts"),
		metric.WithUnit("{reconnect}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch_reconnects_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordK8sOperation records a Kubernetes operation.
//
// CARDINALITY NOTE: only operation and status are recorded unless
// detailedLabels is set. Namespaces and CRD names are unbounded; use traces
// for per-resource debugging instead.
func (m *Metrics) RecordK8sOperation(ctx context.Context, contextName, operation, resourceType, namespace, status string, duration time.Duration) {
	if m == nil || m.k8sOperationsTotal == nil || m.k8sOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs,
			attribute.String(attrContext, contextName),
			attribute.String(attrResourceType, resourceType),
			attribute.String(attrNamespace, namespace),
		)
	}

	m.k8sOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.k8sOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCatalogRefresh records one resource type discovery of a context.
func (m *Metrics) RecordCatalogRefresh(ctx context.Context, contextName, status string, duration time.Duration) {
	if m == nil || m.catalogRefreshTotal == nil || m.catalogRefreshDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrContext, contextName),
		attribute.String(attrStatus, status),
	}

	m.catalogRefreshTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.catalogRefreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordStatsLookup records a stats cache lookup. Result is one of "hit",
// "miss" or "forced".
func (m *Metrics) RecordStatsLookup(ctx context.Context, contextName, result string) {
	if m == nil || m.statsLookupsTotal == nil {
		return
	}

	m.statsLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrContext, contextName),
		attribute.String(attrResult, result),
	))
}

// RecordNodeFetchFailure records a failed kubelet summary fetch.
func (m *Metrics) RecordNodeFetchFailure(ctx context.Context, contextName string) {
	if m == nil || m.statsNodeFailuresTotal == nil {
		return
	}

	m.statsNodeFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrContext, contextName),
	))
}

// IncrementWatchSessions increments the active watch sessions gauge.
func (m *Metrics) IncrementWatchSessions(ctx context.Context) {
	if m == nil || m.watchSessions == nil {
		return
	}

	m.watchSessions.Add(ctx, 1)
}

// DecrementWatchSessions decrements the active watch sessions gauge.
func (m *Metrics) DecrementWatchSessions(ctx context.Context) {
	if m == nil || m.watchSessions == nil {
		return
	}

	m.watchSessions.Add(ctx, -1)
}

// RecordWatchEvent records a delivered watch event by type.
func (m *Metrics) RecordWatchEvent(ctx context.Context, eventType string) {
	if m == nil || m.watchEventsTotal == nil {
		return
	}

	m.watchEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrEventType, eventType),
	))
}

// RecordWatchReconnect records a reconnect attempt of a resource watch.
func (m *Metrics) RecordWatchReconnect(ctx context.Context, contextName, result string) {
	if m == nil || m.watchReconnectsTotal == nil {
		return
	}

	m.watchReconnectsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrContext, contextName),
		attribute.String(attrResult, result),
	))
}
