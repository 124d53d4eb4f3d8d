package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/scheduler"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// ScheduleHandler manages recurring snapshot schedules
type ScheduleHandler struct {
	manager *scheduler.Manager
	logger  *logger.Logger
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(manager *scheduler.Manager, log *logger.Logger) *ScheduleHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ScheduleHandler{manager: manager, logger: log.WithComponent("api.schedule")}
}

// CreateScheduleRequest defines a new schedule
type CreateScheduleRequest struct {
	UniverseID    string            `json:"universe_id" validate:"required"`
	Frequency     string            `json:"frequency" validate:"required"`
	StartDate     string            `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string            `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	ExecutionTime string            `json:"execution_time" default:"18:00" validate:"datetime=15:04"`
	Timezone      string            `json:"timezone" default:"UTC"`
	Metadata      map[string]string `json:"metadata"`
}

// Create stores a schedule
// POST /api/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !bindOrReject(w, r, &req) {
		return
	}
	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	in := scheduler.CreateRequest{
		UniverseID:    req.UniverseID,
		Frequency:     req.Frequency,
		StartDate:     start,
		ExecutionTime: req.ExecutionTime,
		TimezoneName:  req.Timezone,
		Metadata:      req.Metadata,
	}
	if req.EndDate != "" {
		end, err := calendar.ParseDate(req.EndDate)
		if err != nil {
			respondErr(w, h.logger, err)
			return
		}
		in.EndDate = &end
	}

	s, err := h.manager.Create(r.Context(), in)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

// List returns schedules, optionally of one universe
// GET /api/schedules?universe_id=
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.List(r.Context(), r.URL.Query().Get("universe_id"))
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": list,
		"count":     len(list),
	})
}

// ScheduleResponse adds the next planned run to a schedule
type ScheduleResponse struct {
	*contracts.Schedule
	NextExecution *string `json:"next_execution,omitempty"`
}

// Get returns one schedule with its next run
// GET /api/schedules/{id}
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	resp := ScheduleResponse{Schedule: s}
	if next, ok, err := scheduler.NextExecutionDate(s, time.Now()); err == nil && ok {
		v := next.Format(time.RFC3339)
		resp.NextExecution = &v
	}
	respondJSON(w, http.StatusOK, resp)
}

// Pause POST /api/schedules/{id}/pause
func (h *ScheduleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Pause(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// Resume POST /api/schedules/{id}/resume
func (h *ScheduleHandler) Resume(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Resume(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// Delete DELETE /api/schedules/{id}
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Statistics GET /api/schedules/{id}/statistics
func (h *ScheduleHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Statistics(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
