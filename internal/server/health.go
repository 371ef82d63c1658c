package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/giantswarm/k7s/internal/watch"
)

// Health endpoint paths.
const (
	LivenessPath       = "/healthz"
	ReadinessPath      = "/readyz"
	DetailedHealthPath = "/healthz/detailed"
)

// Check results reported by /readyz.
const (
	checkOK            = "ok"
	checkNotReady      = "not ready"
	checkShuttingDown  = "shutting down"
	checkNoContexts    = "none configured"
	checkDisabled      = "disabled"
	statusOK           = "ok"
	statusNotReady     = "not ready"
	statusShuttingDown = "shutting down"
)

// HealthChecker serves the liveness and readiness probes of the dashboard.
type HealthChecker struct {
	ready   atomic.Bool
	sc      *ServerContext
	started time.Time
}

// NewHealthChecker creates a checker that starts out ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// DetailedHealthResponse describes the clusters and watch sessions of the
// server.
type DetailedHealthResponse struct {
	Status          string                      `json:"status"`
	Mode            string                      `json:"mode"`
	Version         string                      `json:"version,omitempty"`
	Uptime          string                      `json:"uptime"`
	Clusters        *ClustersHealthStatus       `json:"clusters,omitempty"`
	Watches         *WatchHealthStatus          `json:"watches,omitempty"`
	Instrumentation *InstrumentationHealthCheck `json:"instrumentation,omitempty"`
}

// ClustersHealthStatus lists the contexts the server knows about.
type ClustersHealthStatus struct {
	Contexts       []string `json:"contexts"`
	DefaultContext string   `json:"default_context,omitempty"`
}

// WatchHealthStatus reports the live watch sessions, in total and per
// context.
type WatchHealthStatus struct {
	ActiveSessions int            `json:"active_sessions"`
	ByContext      map[string]int `json:"by_context,omitempty"`
}

// InstrumentationHealthCheck reports whether metrics and traces are exported.
type InstrumentationHealthCheck struct {
	Enabled bool `json:"enabled"`
}

// RegisterHealthEndpoints registers the probe endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle(LivenessPath, h.LivenessHandler())
	mux.Handle(ReadinessPath, h.ReadinessHandler())
	mux.Handle(DetailedHealthPath, h.DetailedHealthHandler())
}

// LivenessHandler answers 200 for as long as the process can serve at all.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: statusOK, Version: h.version()})
	})
}

// ReadinessHandler answers 503 unless every check passes.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.runChecks()
		if !ok {
			writeHealth(w, http.StatusServiceUnavailable, HealthResponse{Status: statusNotReady, Checks: checks})
			return
		}
		writeHealth(w, http.StatusOK, HealthResponse{Status: statusOK, Checks: checks})
	})
}

// DetailedHealthHandler reports the mode, clusters, watches and
// instrumentation of the server.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := DetailedHealthResponse{
			Status:  statusOK,
			Mode:    h.mode(),
			Version: h.version(),
			Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		}
		if h.sc != nil {
			response.Clusters = h.clusters()
			response.Watches = h.watches()
			response.Instrumentation = &InstrumentationHealthCheck{
				Enabled: h.sc.InstrumentationProvider().Enabled(),
			}
		}

		status := http.StatusOK
		switch {
		case !h.IsReady():
			response.Status, status = statusNotReady, http.StatusServiceUnavailable
		case h.shuttingDown():
			response.Status, status = statusShuttingDown, http.StatusServiceUnavailable
		}
		writeHealth(w, status, response)
	})
}

// runChecks evaluates the readiness checks. Instrumentation is informational
// and never fails readiness.
func (h *HealthChecker) runChecks() (map[string]string, bool) {
	checks := map[string]string{"ready": checkOK, "shutdown": checkOK}
	ok := true
	fail := func(name, result string) {
		checks[name] = result
		ok = false
	}

	if !h.IsReady() {
		fail("ready", checkNotReady)
	}
	if h.shuttingDown() {
		fail("shutdown", checkShuttingDown)
	}
	if h.sc == nil {
		return checks, ok
	}

	if registry := h.sc.Registry(); registry != nil {
		checks["contexts"] = checkOK
		if len(registry.Contexts()) == 0 {
			fail("contexts", checkNoContexts)
		}
	}
	if provider := h.sc.InstrumentationProvider(); provider != nil {
		checks["instrumentation"] = checkDisabled
		if provider.Enabled() {
			checks["instrumentation"] = checkOK
		}
	}
	return checks, ok
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

func (h *HealthChecker) version() string {
	if h.sc == nil || h.sc.Config() == nil {
		return ""
	}
	return h.sc.Config().Version
}

// mode is "in-cluster", "kubeconfig" or "unknown" without a registry.
func (h *HealthChecker) mode() string {
	switch {
	case h.sc == nil || h.sc.Registry() == nil:
		return "unknown"
	case h.sc.InClusterMode():
		return "in-cluster"
	default:
		return "kubeconfig"
	}
}

func (h *HealthChecker) clusters() *ClustersHealthStatus {
	registry := h.sc.Registry()
	if registry == nil {
		return nil
	}
	return &ClustersHealthStatus{
		Contexts:       registry.Contexts(),
		DefaultContext: registry.DefaultContext(),
	}
}

func (h *HealthChecker) watches() *WatchHealthStatus {
	m := h.sc.Multiplexer()
	if m == nil {
		return nil
	}
	return watchStatus(m.Sessions())
}

func watchStatus(sessions []watch.Session) *WatchHealthStatus {
	status := &WatchHealthStatus{ActiveSessions: len(sessions)}
	for _, s := range sessions {
		if status.ByContext == nil {
			status.ByContext = make(map[string]int)
		}
		status.ByContext[s.Key.Context]++
	}
	return status
}

func writeHealth(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
