// Package httpapi exposes the service's external HTTP boundary (§6):
// POST /api/v1/optimize-route, GET /api/v1/health, and the /ws/driver/{id}
// upgrade route (mounted by the caller via session.Registry.Handler()).
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aro-via/routing-maps/internal/apperror"
	"github.com/aro-via/routing-maps/internal/audit"
	"github.com/aro-via/routing-maps/internal/domain"
	"github.com/aro-via/routing-maps/internal/logger"
	"github.com/aro-via/routing-maps/internal/matrixcache"
	"github.com/aro-via/routing-maps/internal/pipeline"
)

// Handler serves the route-optimization HTTP API.
type Handler struct {
	orchestrator *pipeline.Orchestrator
	cache        matrixcache.Cache
	maxStops     int
	mapsAPIKey   string
	audit        *audit.Publisher
	log          *logger.Logger
}

// NewHandler wires a Handler to its dependencies. auditPub may be nil, in
// which case no domain events are published and the health check reports
// kafka as unavailable.
func NewHandler(orchestrator *pipeline.Orchestrator, cache matrixcache.Cache, maxStops int, mapsAPIKey string, auditPub *audit.Publisher, log *logger.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, cache: cache, maxStops: maxStops, mapsAPIKey: mapsAPIKey, audit: auditPub, log: log}
}

// Router builds the mux.Router exposing this handler's routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestID)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/optimize-route", h.OptimizeRoute).Methods(http.MethodPost)
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	return r
}

// OptimizeRoute handles POST /api/v1/optimize-route (§6).
func (h *Handler) OptimizeRoute(w http.ResponseWriter, r *http.Request) {
	var req domain.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("body", "malformed JSON request body"))
		return
	}

	if err := req.Validate(h.maxStops); err != nil {
		writeError(w, err)
		return
	}

	reqLog := logger.FromContext(r.Context())

	resp, err := h.orchestrator.Optimize(r.Context(), req.DriverID, req.DriverLocation, req.Stops, req.DepartureTime)
	if err != nil {
		reqLog.WithError(err).Warnw("optimize request failed", "driver_id", req.DriverID)
		writeError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.Publish(r.Context(), audit.EventRouteOptimized, map[string]interface{}{
			"driver_id": req.DriverID,
			"stops":     len(resp.OptimizedStops),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// healthStatus is the GET /api/v1/health response body (§6, §12 supplement).
type healthStatus struct {
	Status  string `json:"status"`
	Redis   string `json:"redis"`
	MapsAPI string `json:"maps_api"`
	Kafka   string `json:"kafka"`
}

// Health handles GET /api/v1/health. It always reports "healthy" and 200 —
// a degraded dependency still serves traffic (§7 StoreUnavailable), callers
// watch the per-dependency fields in the body, not the top-level status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "healthy", Redis: "ok", MapsAPI: "configured", Kafka: "ok"}

	if err := h.cache.Ping(r.Context()); err != nil {
		status.Redis = "unavailable"
	}
	if h.mapsAPIKey == "" {
		status.MapsAPI = "missing"
	}
	if h.audit == nil {
		status.Kafka = "unavailable"
	} else if err := h.audit.Ping(r.Context()); err != nil {
		status.Kafka = "unavailable"
	}

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the JSON shape returned for every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeError maps an apperror.Code to its HTTP status (§7) and writes the
// JSON error body. Anything that isn't an *apperror.Error is treated as an
// unexpected internal failure.
func writeError(w http.ResponseWriter, err error) {
	code, ok := apperror.CodeOf(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error", Message: err.Error()})
		return
	}

	var appErr *apperror.Error
	if ae, match := err.(*apperror.Error); match {
		appErr = ae
	}

	body := errorBody{Error: string(code), Message: err.Error()}
	if appErr != nil {
		body.Field = appErr.Field
	}

	switch code {
	case apperror.CodeValidation, apperror.CodeInfeasible:
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case apperror.CodeProviderUnavailable:
		writeJSON(w, http.StatusServiceUnavailable, body)
	case apperror.CodeStoreUnavailable:
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		writeJSON(w, http.StatusInternalServerError, body)
	}
}
