package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis/v13/timeline/internal/api/handlers"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// HealthCheck reports component status; a non-nil error marks the service degraded
type HealthCheck func(ctx context.Context) (map[string]interface{}, error)

// Routes bundles everything the router serves. Nil parts are not mounted.
type Routes struct {
	Snapshots   *handlers.SnapshotHandler
	Schedules   *handlers.ScheduleHandler
	Transitions *handlers.TransitionHandler
	Realtime    http.Handler // /ws/timeline
	Metrics     http.Handler // /metrics
	Health      HealthCheck
	Limiter     *ClientLimiter
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(routes Routes, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(routes.Health)).Methods("GET")
	if routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics).Methods("GET")
	}
	if routes.Realtime != nil {
		r.Handle("/ws/timeline", routes.Realtime).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(rateLimitMiddleware(routes.Limiter))

	if h := routes.Snapshots; h != nil {
		u := api.PathPrefix("/universes/{id}").Subrouter()
		u.HandleFunc("/snapshots", h.Create).Methods("POST")
		u.HandleFunc("/snapshots", h.Timeline).Methods("GET")
		u.HandleFunc("/snapshots/latest", h.Latest).Methods("GET")
		u.HandleFunc("/snapshots/export", h.Export).Methods("GET")
		u.HandleFunc("/snapshots/rederive", h.Rederive).Methods("POST")
		u.HandleFunc("/composition", h.Composition).Methods("GET")
		u.HandleFunc("/evolution", h.Evolution).Methods("GET")
		u.HandleFunc("/backfill", h.Backfill).Methods("POST")
		api.HandleFunc("/universes/{id}", h.DeleteUniverse).Methods("DELETE")
	}

	if h := routes.Schedules; h != nil {
		api.HandleFunc("/schedules", h.Create).Methods("POST")
		api.HandleFunc("/schedules", h.List).Methods("GET")
		api.HandleFunc("/schedules/{id}", h.Get).Methods("GET")
		api.HandleFunc("/schedules/{id}", h.Delete).Methods("DELETE")
		api.HandleFunc("/schedules/{id}/pause", h.Pause).Methods("POST")
		api.HandleFunc("/schedules/{id}/resume", h.Resume).Methods("POST")
		api.HandleFunc("/schedules/{id}/statistics", h.Statistics).Methods("GET")
	}

	if h := routes.Transitions; h != nil {
		api.HandleFunc("/transitions", h.Create).Methods("POST")
		api.HandleFunc("/transitions", h.List).Methods("GET")
		api.HandleFunc("/transitions/{id}", h.Get).Methods("GET")
		api.HandleFunc("/transitions/{id}/steps/{n:[0-9]+}/execute", h.ExecuteStep).Methods("POST")
		api.HandleFunc("/transitions/{id}/pause", h.Pause).Methods("POST")
		api.HandleFunc("/transitions/{id}/resume", h.Resume).Methods("POST")
		api.HandleFunc("/transitions/{id}/cancel", h.Cancel).Methods("POST")
		api.HandleFunc("/impact/analyze", h.Analyze).Methods("POST")
		api.HandleFunc("/impact/scenarios", h.Scenarios).Methods("POST")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "ok",
			"service": "aegis-timeline",
		}
		status := http.StatusOK

		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			components, err := check(ctx)
			body["components"] = components
			if err != nil {
				body["status"] = "degraded"
				body["error"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
