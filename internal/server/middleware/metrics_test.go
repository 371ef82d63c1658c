package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/k7s/internal/instrumentation"
)

func newTestProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName:     "middleware-test",
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracingExporter: instrumentation.ExporterNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func scrape(t *testing.T, provider *instrumentation.Provider) string {
	t.Helper()
	rec := httptest.NewRecorder()
	provider.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestStatusRecorder(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		want  int
	}{
		{
			name:  "nothing written",
			write: func(http.ResponseWriter) {},
			want:  http.StatusOK,
		},
		{
			name:  "body only",
			write: func(w http.ResponseWriter) { _, _ = w.Write([]byte("{}")) },
			want:  http.StatusOK,
		},
		{
			name:  "explicit status",
			write: func(w http.ResponseWriter) { w.WriteHeader(http.StatusForbidden) },
			want:  http.StatusForbidden,
		},
		{
			name: "first status wins",
			write: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusNoContent)
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			recorder := &statusRecorder{ResponseWriter: rec}
			tt.write(recorder)
			assert.Equal(t, tt.want, recorder.code())
		})
	}
}

func TestStatusRecorderFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	recorder := &statusRecorder{ResponseWriter: rec}

	var w http.ResponseWriter = recorder
	flusher, ok := w.(http.Flusher)
	require.True(t, ok, "SSE handlers need a flusher")
	flusher.Flush()

	assert.True(t, rec.Flushed)
	assert.Same(t, rec, recorder.Unwrap())
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"GET /api/v1/resources/{group}/{resource}", "/api/v1/resources/{group}/{resource}"},
		{"/healthz", "/healthz"},
		{"", UnmatchedRoute},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Pattern = tt.pattern
			assert.Equal(t, tt.want, routeLabel(r))
		})
	}
}

func TestHTTPMetricsRecordsRoutePattern(t *testing.T) {
	provider := newTestProvider(t)

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v1/resources/{group}/{resource}/{namespace}/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	handler := HTTPMetrics(provider)(mux)

	for _, path := range []string{
		"/api/v1/resources/null/pods/default/web-0",
		"/watch/logs/Pod/default/web-0",
	} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, path, nil))
	}

	body := scrape(t, provider)
	assert.Contains(t, body, `path="/api/v1/resources/{group}/{resource}/{namespace}/{name}"`)
	assert.Contains(t, body, `status="202"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.Contains(t, body, `status="404"`)
	assert.NotContains(t, body, "web-0")
}

func TestHTTPMetricsPassThrough(t *testing.T) {
	disabled, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{})
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resourceVersion":"42","items":[]}`))
	})

	for name, provider := range map[string]*instrumentation.Provider{"nil": nil, "disabled": disabled} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HTTPMetrics(provider)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/resources/refresh", nil))

			assert.Equal(t, http.StatusCreated, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, `{"resourceVersion":"42","items":[]}`, rec.Body.String())
		})
	}
}

func TestHTTPMetricsPreservesBody(t *testing.T) {
	provider := newTestProvider(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("event: ping\n\n"))
	})

	rec := httptest.NewRecorder()
	HTTPMetrics(provider)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/watch/resources/null/pods", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "event: ping\n\n", rec.Body.String())
}
