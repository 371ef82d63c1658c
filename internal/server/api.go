package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/k7s/internal/items"
	"github.com/giantswarm/k7s/internal/k8s"
	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/resources"
	"github.com/giantswarm/k7s/internal/service"
	"github.com/giantswarm/k7s/internal/watch"
)

// nullSentinel stands for the core group or the cluster scope in paths.
const nullSentinel = "null"

const defaultHeartbeatInterval = 30 * time.Second

// SSE event names of item watches.
const (
	EventItemAdded   = "resourceItemAdded"
	EventItemUpdated = "resourceItemUpdated"
	EventItemDeleted = "resourceItemDeleted"
)

// ContextResources is the answer of GET /api/v1/resources.
type ContextResources struct {
	Resources      []resources.ResourceType `json:"resources"`
	Namespaces     []string                 `json:"namespaces"`
	Contexts       []string                 `json:"contexts"`
	DefaultContext string                   `json:"defaultContext,omitempty"`
}

// ItemEventData is the payload of an item watch event.
type ItemEventData struct {
	ItemID         string             `json:"itemId"`
	Item           items.ResourceItem `json:"item"`
	InsertionIndex *int               `json:"insertionIndex,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API serves the JSON and SSE endpoints.
type API struct {
	sc                *ServerContext
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

// APIOption configures an API.
type APIOption func(*API)

// WithHeartbeatInterval sets how often idle SSE streams get a ping.
func WithHeartbeatInterval(d time.Duration) APIOption {
	return func(a *API) {
		a.heartbeatInterval = d
	}
}

// NewAPI creates the handlers on top of a server context.
func NewAPI(sc *ServerContext, opts ...APIOption) *API {
	a := &API{
		sc:                sc,
		logger:            sc.Logger(),
		heartbeatInterval: defaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterRoutes registers every API route on mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/resources", a.getResources)
	mux.HandleFunc("GET /api/v1/resources/search", a.searchResources)
	mux.HandleFunc("POST /api/v1/resources/refresh", a.refreshResources)
	mux.HandleFunc("GET /api/v1/resources/{group}/{resource}", a.listItems)
	mux.HandleFunc("GET /api/v1/resources/{group}/{resource}/raw", a.rawItems)
	mux.HandleFunc("GET /api/v1/resources/{group}/{resource}/{namespace}/{name}/yaml", a.itemYAML)
	mux.HandleFunc("PATCH /api/v1/resources/{group}/{resource}/{namespace}/{name}", a.scaleItem)
	mux.HandleFunc("DELETE /api/v1/resources/{group}/{resource}/{namespace}/{name}", a.deleteItem)
	mux.HandleFunc("GET /api/v1/stats", a.clusterStats)
	mux.HandleFunc("GET /api/v1/logs/{kind}/{namespace}/{name}", a.logs)
	mux.HandleFunc("GET /watch/resources/{group}/{resource}", a.watchItems)
	mux.HandleFunc("GET /watch/logs/{kind}/{namespace}/{name}", a.watchLogs)
}

// Handler returns a mux with the API and the health endpoints.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	NewHealthChecker(a.sc).RegisterHealthEndpoints(mux)
	return mux
}

func (a *API) getResources(w http.ResponseWriter, r *http.Request) {
	contextName := contextParam(r)
	types, err := a.sc.Catalog().All(r.Context(), contextName)
	if err != nil {
		a.writeLookupError(w, err)
		return
	}

	namespaces := a.sc.Service().Namespaces(r.Context(), contextName)
	if namespaces == nil {
		namespaces = []string{}
	}

	registry := a.sc.Registry()
	writeJSON(w, http.StatusOK, ContextResources{
		Resources:      types,
		Namespaces:     namespaces,
		Contexts:       registry.Contexts(),
		DefaultContext: registry.DefaultContext(),
	})
}

func (a *API) searchResources(w http.ResponseWriter, r *http.Request) {
	types, err := a.sc.Catalog().Search(r.Context(), contextParam(r), r.URL.Query().Get("q"))
	if err != nil {
		a.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (a *API) refreshResources(w http.ResponseWriter, r *http.Request) {
	contextName := contextParam(r)
	a.sc.Catalog().Invalidate(contextName)

	types, err := a.sc.Catalog().All(r.Context(), contextName)
	if err != nil {
		a.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) {
	rt, ok := a.resolveType(w, r)
	if !ok {
		return
	}
	namespace := nullable(r.URL.Query().Get("namespace"))
	writeJSON(w, http.StatusOK, a.sc.Service().ListItems(r.Context(), rt, contextParam(r), namespace))
}

func (a *API) rawItems(w http.ResponseWriter, r *http.Request) {
	rt, ok := a.resolveType(w, r)
	if !ok {
		return
	}

	raw, err := a.sc.Service().RawItems(r.Context(), rt, contextParam(r))
	switch {
	case errors.Is(err, service.ErrNotListable):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (a *API) itemYAML(w http.ResponseWriter, r *http.Request) {
	rt, ok := a.resolveType(w, r)
	if !ok {
		return
	}

	manifest, err := a.sc.Service().ItemManifest(r.Context(), rt, contextParam(r),
		nullable(r.PathValue("namespace")), r.PathValue("name"))
	switch {
	case errors.Is(err, service.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(manifest))
}

func (a *API) scaleItem(w http.ResponseWriter, r *http.Request) {
	if a.rejectReadOnly(w) {
		return
	}
	replicas, err := strconv.ParseInt(r.URL.Query().Get("scaleTo"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid scaleTo: %w", err))
		return
	}
	rt, ok := a.resolveType(w, r)
	if !ok {
		return
	}

	scaled := a.sc.Service().ScaleItem(r.Context(), rt, contextParam(r),
		nullable(r.PathValue("namespace")), r.PathValue("name"), int32(replicas))
	writeJSON(w, http.StatusOK, scaled)
}

func (a *API) deleteItem(w http.ResponseWriter, r *http.Request) {
	if a.rejectReadOnly(w) {
		return
	}
	var gracePeriod *int64
	if raw := r.URL.Query().Get("gracePeriod"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid gracePeriod: %w", err))
			return
		}
		gracePeriod = &seconds
	}
	rt, ok := a.resolveType(w, r)
	if !ok {
		return
	}

	deleted := a.sc.Service().DeleteItem(r.Context(), rt, contextParam(r),
		nullable(r.PathValue("namespace")), r.PathValue("name"), gracePeriod)
	writeJSON(w, http.StatusOK, deleted)
}

func (a *API) clusterStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sc.Service().ClusterStats(r.Context(), contextParam(r)))
}

func (a *API) logs(w http.ResponseWriter, r *http.Request) {
	req, err := logRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lines, err := a.sc.Service().Logs(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, lines)
}

func (a *API) watchItems(w http.ResponseWriter, r *http.Request) {
	if a.rejectShutdown(w) {
		return
	}
	rt, ok := a.resolveType(w, r)
	if !ok {
		return
	}
	if !rt.IsWatchable() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	contextName := a.sc.Registry().ResolveContext(contextParam(r))
	namespace := nullable(r.URL.Query().Get("namespace"))
	resourceVersion := nullable(r.URL.Query().Get("resourceVersion"))

	itemWatch, err := a.sc.Service().WatchItems(r.Context(), rt, contextName, namespace, resourceVersion)
	if err != nil {
		if errors.Is(err, service.ErrNotWatchable) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		itemWatch.Stop()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer stream.Close()

	session, err := a.sc.Multiplexer().Register(watch.Key{
		Context:   contextName,
		Group:     rt.Group,
		Resource:  rt.Name,
		Namespace: namespace,
	}, stream, itemWatch)
	if err != nil {
		itemWatch.Stop()
		return
	}
	defer a.sc.Multiplexer().Unregister(session)

	heartbeat := time.NewTicker(a.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := stream.Ping(); err != nil {
				return
			}
		case ev, ok := <-itemWatch.ResultChan():
			if !ok {
				return
			}
			data := ItemEventData{ItemID: ev.Item.ID(), Item: ev.Item, InsertionIndex: ev.InsertionIndex}
			if err := stream.SendJSON(eventName(ev.Action), data); err != nil {
				a.logger.Debug("Watch client went away", logging.Session(session.ID), logging.Err(err))
				return
			}
		}
	}
}

func (a *API) watchLogs(w http.ResponseWriter, r *http.Request) {
	if a.rejectShutdown(w) {
		return
	}
	req, err := logRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Context = a.sc.Registry().ResolveContext(req.Context)

	logs, err := a.sc.Service().StreamLogs(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	closer := &closeOnce{close: func() { _ = logs.Close() }}
	defer closer.Stop()

	stream, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer stream.Close()

	session, err := a.sc.Multiplexer().Register(watch.Key{
		Context:   req.Context,
		Resource:  "pods/log",
		Namespace: req.Namespace,
	}, stream, closer)
	if err != nil {
		return
	}
	defer a.sc.Multiplexer().Unregister(session)

	scanner := service.NewLineScanner(logs)
	for scanner.Scan() {
		if err := stream.Send("", scanner.Bytes()); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && r.Context().Err() == nil {
		a.logger.Warn("Log stream failed", logging.Session(session.ID), logging.SanitizedErr(err))
	}
}

// resolveType looks the path's resource up by plural name first and by kind
// second. It writes the error response when nothing matches.
func (a *API) resolveType(w http.ResponseWriter, r *http.Request) (resources.ResourceType, bool) {
	catalog := a.sc.Catalog()
	contextName := contextParam(r)
	group := nullable(r.PathValue("group"))
	name := r.PathValue("resource")

	rt, err := catalog.ByGroupAndName(r.Context(), contextName, group, name)
	if errors.Is(err, resources.ErrNotFound) {
		rt, err = catalog.ByGroupAndKind(r.Context(), contextName, group, name)
	}
	if err != nil {
		a.writeLookupError(w, err)
		return resources.ResourceType{}, false
	}
	return rt, true
}

func (a *API) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resources.ErrNotFound), errors.Is(err, k8s.ErrUnknownContext):
		writeError(w, http.StatusNotFound, err)
	default:
		a.logger.Error("Resource type lookup failed", logging.SanitizedErr(err))
		writeError(w, http.StatusBadGateway, err)
	}
}

func (a *API) rejectReadOnly(w http.ResponseWriter) bool {
	if a.sc.Config() == nil || !a.sc.Config().ReadOnly {
		return false
	}
	writeError(w, http.StatusForbidden, errors.New("server is in read-only mode"))
	return true
}

// rejectShutdown refuses new streams once the server context is done.
func (a *API) rejectShutdown(w http.ResponseWriter) bool {
	if !a.sc.IsShutdown() {
		return false
	}
	writeError(w, http.StatusServiceUnavailable, ErrServerShutdown)
	return true
}

func logRequest(r *http.Request) (service.LogRequest, error) {
	req := service.LogRequest{
		Context:   contextParam(r),
		Kind:      r.PathValue("kind"),
		Namespace: nullable(r.PathValue("namespace")),
		Name:      r.PathValue("name"),
		Container: nullable(r.URL.Query().Get("containerName")),
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return service.LogRequest{}, fmt.Errorf("invalid since: %w", err)
		}
		req.Since = &since
	}
	return req, nil
}

func eventName(action service.Action) string {
	switch action {
	case service.ActionAdded:
		return EventItemAdded
	case service.ActionDeleted:
		return EventItemDeleted
	default:
		return EventItemUpdated
	}
}

// closeOnce adapts a close function to watch.Handle.
type closeOnce struct {
	once  sync.Once
	close func()
}

func (c *closeOnce) Stop() {
	c.once.Do(c.close)
}

func contextParam(r *http.Request) string {
	return nullable(r.URL.Query().Get("context"))
}

// nullable maps blank values and the "null" sentinel to "".
func nullable(s string) string {
	s = strings.TrimSpace(s)
	if s == nullSentinel {
		return ""
	}
	return s
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrItemNotFound), errors.Is(err, k8s.ErrUnknownContext):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrNotLoggable):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
