package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/giantswarm/k7s/internal/instrumentation"
)

// UnmatchedRoute is the path label of requests no route pattern served.
// Raw paths carry item names and would explode the label cardinality.
const UnmatchedRoute = "unmatched"

// statusRecorder remembers the first status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Flush forwards to the wrapped writer so SSE streams keep working.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// code is the recorded status, 200 when the handler wrote nothing.
func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// HTTPMetrics records the count and duration of every request by method,
// route and status. The route is the ServeMux pattern that served the
// request, so /api/v1/resources/apps/deployments/default/web is recorded as
// /api/v1/resources/{group}/{resource}/{namespace}/{name}.
//
// A nil or disabled provider makes the middleware a pass-through.
func HTTPMetrics(provider *instrumentation.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !provider.Enabled() {
			return next
		}
		metrics := provider.Metrics()
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)
			metrics.RecordHTTPRequest(r.Context(), r.Method, routeLabel(r), recorder.code(), time.Since(start))
		})
	}
}

// routeLabel returns the matched pattern without its method.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return UnmatchedRoute
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
