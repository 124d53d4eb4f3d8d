package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/transition"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// TransitionHandler serves rebalance plans and impact analysis
type TransitionHandler struct {
	manager  *transition.Manager
	analyzer *transition.ImpactAnalyzer
	logger   *logger.Logger
}

// NewTransitionHandler creates a new transition handler
func NewTransitionHandler(manager *transition.Manager, analyzer *transition.ImpactAnalyzer, log *logger.Logger) *TransitionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &TransitionHandler{manager: manager, analyzer: analyzer, logger: log.WithComponent("api.transition")}
}

// CreatePlanRequest asks for a transition plan
type CreatePlanRequest struct {
	UniverseID     string                             `json:"universe_id" validate:"required"`
	From           map[string]float64                 `json:"from" validate:"required"`
	To             map[string]float64                 `json:"to" validate:"required"`
	Strategy       string                             `json:"strategy" default:"GRADUAL" validate:"oneof=IMMEDIATE GRADUAL COST_OPTIMIZED"`
	Rule           *contracts.TransitionRule          `json:"rule"`
	PortfolioValue float64                            `json:"portfolio_value" validate:"gte=0"`
	Overrides      map[string]transition.CostOverride `json:"overrides"`
}

// Create plans and stores a transition
// POST /api/transitions
func (h *TransitionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if !bindOrReject(w, r, &req) {
		return
	}
	plan, err := h.manager.Create(r.Context(), transition.PlanRequest{
		UniverseID:     req.UniverseID,
		From:           req.From,
		To:             req.To,
		Strategy:       req.Strategy,
		Rule:           req.Rule,
		PortfolioValue: req.PortfolioValue,
		Overrides:      req.Overrides,
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, plan)
}

// List GET /api/transitions?universe_id=
func (h *TransitionHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.manager.List(r.Context(), r.URL.Query().Get("universe_id"))
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plans": plans,
		"count": len(plans),
	})
}

// PlanResponse adds progress to a plan
type PlanResponse struct {
	*contracts.TransitionPlan
	Progress float64 `json:"progress"`
}

// Get GET /api/transitions/{id}
func (h *TransitionHandler) Get(w http.ResponseWriter, r *http.Request) {
	plan, err := h.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, PlanResponse{TransitionPlan: plan, Progress: plan.Progress()})
}

// ExecuteStepRequest optionally records the realized cost
type ExecuteStepRequest struct {
	ActualCost *float64 `json:"actual_cost" validate:"omitempty,gte=0"`
}

// ExecuteStep POST /api/transitions/{id}/steps/{n}/execute
func (h *TransitionHandler) ExecuteStep(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(mux.Vars(r)["n"])
	if err != nil {
		respondErr(w, h.logger, contracts.Invalid("step", "must be a number"))
		return
	}
	var req ExecuteStepRequest
	if !bindOrReject(w, r, &req) {
		return
	}

	plan, err := h.manager.ExecuteStep(r.Context(), mux.Vars(r)["id"], n, req.ActualCost)
	h.respondPlan(w, plan, err)
}

// Pause POST /api/transitions/{id}/pause
func (h *TransitionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	plan, err := h.manager.Pause(r.Context(), mux.Vars(r)["id"])
	h.respondPlan(w, plan, err)
}

// Resume POST /api/transitions/{id}/resume
func (h *TransitionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	plan, err := h.manager.Resume(r.Context(), mux.Vars(r)["id"])
	h.respondPlan(w, plan, err)
}

// Cancel POST /api/transitions/{id}/cancel
func (h *TransitionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	plan, err := h.manager.Cancel(r.Context(), mux.Vars(r)["id"])
	h.respondPlan(w, plan, err)
}

func (h *TransitionHandler) respondPlan(w http.ResponseWriter, plan *contracts.TransitionPlan, err error) {
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, PlanResponse{TransitionPlan: plan, Progress: plan.Progress()})
}

// AnalyzeRequest estimates one rebalance
type AnalyzeRequest struct {
	From           map[string]float64 `json:"from" validate:"required"`
	To             map[string]float64 `json:"to" validate:"required"`
	PortfolioValue float64            `json:"portfolio_value" default:"1" validate:"gt=0"`
	transition.AnalyzeOptions
}

// Analyze POST /api/impact/analyze
func (h *TransitionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !bindOrReject(w, r, &req) {
		return
	}
	analysis, err := h.analyzer.Analyze(req.From, req.To, req.PortfolioValue, req.AnalyzeOptions)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// ScenariosRequest ranks candidate targets
type ScenariosRequest struct {
	Current        map[string]float64    `json:"current" validate:"required"`
	Scenarios      []transition.Scenario `json:"scenarios" validate:"required,min=1,dive"`
	PortfolioValue float64               `json:"portfolio_value" default:"1" validate:"gt=0"`
	transition.AnalyzeOptions
}

// Scenarios POST /api/impact/scenarios
func (h *TransitionHandler) Scenarios(w http.ResponseWriter, r *http.Request) {
	var req ScenariosRequest
	if !bindOrReject(w, r, &req) {
		return
	}
	cmp, err := h.analyzer.CompareRebalanceScenarios(req.Current, req.Scenarios, req.PortfolioValue, req.AnalyzeOptions)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cmp)
}
