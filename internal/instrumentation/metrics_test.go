package instrumentation

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// mockMeterProvider creates a simple meter for testing
func mockMeterProvider() metric.Meter {
	provider := sdkmetric.NewMeterProvider()
	return provider.Meter("test")
}

func TestNewMetrics(t *testing.T) {
	metrics, err := NewMetrics(mockMeterProvider(), false)
	if err != nil {
		t.Fatalf("expected no error creating metrics, got %v", err)
	}

	if metrics.httpRequestsTotal == nil {
		t.Error("expected httpRequestsTotal to be initialized")
	}
	if metrics.httpRequestDuration == nil {
		t.Error("expected httpRequestDuration to be initialized")
	}
	if metrics.k8sOperationsTotal == nil {
		t.Error("expected k8sOperationsTotal to be initialized")
	}
	if metrics.k8sOperationDuration == nil {
		t.Error("expected k8sOperationDuration to be initialized")
	}
	if metrics.catalogRefreshTotal == nil || metrics.catalogRefreshDuration == nil {
		t.Error("expected catalog metrics to be initialized")
	}
	if metrics.statsLookupsTotal == nil || metrics.statsNodeFailuresTotal == nil {
		t.Error("expected stats metrics to be initialized")
	}
	if metrics.watchSessions == nil || metrics.watchEventsTotal == nil || metrics.watchReconnectsTotal == nil {
		t.Error("expected watch metrics to be initialized")
	}

	if metrics.detailedLabels {
		t.Error("expected detailedLabels to be false")
	}
}

func TestNewMetrics_DetailedLabels(t *testing.T) {
	metrics, err := NewMetrics(mockMeterProvider(), true)
	if err != nil {
		t.Fatalf("expected no error creating metrics, got %v", err)
	}

	if !metrics.detailedLabels {
		t.Error("expected detailedLabels to be true")
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	ctx := context.Background()

	// None of these should panic
	metrics.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
	metrics.RecordK8sOperation(ctx, "prod", OperationList, "pods", "default", StatusSuccess, time.Millisecond)
	metrics.RecordCatalogRefresh(ctx, "prod", StatusSuccess, time.Millisecond)
	metrics.RecordStatsLookup(ctx, "prod", "hit")
	metrics.RecordNodeFetchFailure(ctx, "prod")
	metrics.IncrementWatchSessions(ctx)
	metrics.DecrementWatchSessions(ctx)
	metrics.RecordWatchEvent(ctx, "ADDED")
	metrics.RecordWatchReconnect(ctx, "prod", StatusError)
}

func TestMetrics_UninitializedInstruments(t *testing.T) {
	metrics := &Metrics{}
	ctx := context.Background()

	metrics.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
	metrics.RecordK8sOperation(ctx, "prod", OperationList, "pods", "default", StatusSuccess, time.Millisecond)
	metrics.IncrementWatchSessions(ctx)
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	metrics, err := NewMetrics(mockMeterProvider(), true)
	if err != nil {
		t.Fatalf("expected no error creating metrics, got %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				metrics.RecordHTTPRequest(ctx, "GET", "/api/v1/resources", 200, time.Duration(id)*time.Millisecond)
				metrics.RecordK8sOperation(ctx, "prod", OperationList, "pods", "default", StatusSuccess, time.Millisecond)
				metrics.RecordStatsLookup(ctx, "prod", "miss")
				metrics.IncrementWatchSessions(ctx)
				metrics.DecrementWatchSessions(ctx)
			}
		}(i)
	}

	wg.Wait()
}

func TestMetricConstants(t *testing.T) {
	if StatusSuccess != "success" {
		t.Errorf("expected StatusSuccess to be 'success', got %s", StatusSuccess)
	}
	if StatusError != "error" {
		t.Errorf("expected StatusError to be 'error', got %s", StatusError)
	}

	operations := map[string]string{
		"list":     OperationList,
		"get":      OperationGet,
		"manifest": OperationManifest,
		"scale":    OperationScale,
		"delete":   OperationDelete,
		"logs":     OperationLogs,
		"watch":    OperationWatch,
		"raw":      OperationRaw,
		"stats":    OperationStats,
	}
	for expected, actual := range operations {
		if actual != expected {
			t.Errorf("expected operation %q, got %q", expected, actual)
		}
	}
}
