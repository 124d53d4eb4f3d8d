package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis/v13/timeline/internal/backfill"
	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/report"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
	"github.com/wonny/aegis/v13/timeline/internal/temporal"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// SnapshotHandler serves snapshot writes, point-in-time reads and backfills
// ⭐ SSOT: 스냅샷 API 핸들러는 이 구조체에서만
type SnapshotHandler struct {
	service   *snapshot.Service
	resolver  *temporal.Resolver
	backfill  *backfill.Engine
	directory backfill.Directory
	logger    *logger.Logger
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(
	service *snapshot.Service,
	resolver *temporal.Resolver,
	engine *backfill.Engine,
	directory backfill.Directory,
	log *logger.Logger,
) *SnapshotHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &SnapshotHandler{
		service:   service,
		resolver:  resolver,
		backfill:  engine,
		directory: directory,
		logger:    log.WithComponent("api.snapshot"),
	}
}

// CreateSnapshotRequest asks for a snapshot; omitted assets use the universe's current composition
type CreateSnapshotRequest struct {
	SnapshotDate       string                 `json:"snapshot_date" validate:"omitempty,datetime=2006-01-02"`
	Assets             contracts.Composition  `json:"assets"`
	ScreeningCriteria  map[string]interface{} `json:"screening_criteria"`
	PerformanceMetrics map[string]interface{} `json:"performance_metrics"`
	Force              bool                   `json:"force"`
}

// Create stores a snapshot
// POST /api/universes/{id}/snapshots
func (h *SnapshotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSnapshotRequest
	if !bindOrReject(w, r, &req) {
		return
	}

	in := snapshot.CreateRequest{
		UniverseID:         mux.Vars(r)["id"],
		Assets:             req.Assets,
		ScreeningCriteria:  req.ScreeningCriteria,
		PerformanceMetrics: req.PerformanceMetrics,
		Force:              req.Force,
	}
	if req.SnapshotDate != "" {
		d, err := calendar.ParseDate(req.SnapshotDate)
		if err != nil {
			respondErr(w, h.logger, err)
			return
		}
		in.SnapshotDate = &d
	}

	rec, err := h.service.CreateSnapshot(r.Context(), in)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (h *SnapshotHandler) timelineQuery(r *http.Request) (temporal.TimelineQuery, error) {
	q := temporal.TimelineQuery{UniverseID: mux.Vars(r)["id"]}
	var err error
	if q.Start, err = queryDate(r, "start"); err != nil {
		return q, err
	}
	if q.End, err = queryDate(r, "end"); err != nil {
		return q, err
	}
	if f := r.URL.Query().Get("frequency"); f != "" {
		if q.Frequency, err = contracts.ParseFrequency(f); err != nil {
			return q, err
		}
	}
	return q, nil
}

// Timeline returns snapshots in range with turnover metrics
// GET /api/universes/{id}/snapshots?start=&end=&frequency=
func (h *SnapshotHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	q, err := h.timelineQuery(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	tl, err := h.resolver.Timeline(r.Context(), q)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, tl)
}

// Export returns the timeline as an XLSX workbook
// GET /api/universes/{id}/snapshots/export?start=&end=&frequency=
func (h *SnapshotHandler) Export(w http.ResponseWriter, r *http.Request) {
	q, err := h.timelineQuery(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	tl, err := h.resolver.Timeline(r.Context(), q)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	// 버퍼에 먼저 작성해 실패 시 JSON 에러로 응답
	var buf bytes.Buffer
	if err := report.WriteTimelineXLSX(&buf, tl); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="timeline-%s.xlsx"`, q.UniverseID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Latest returns the newest snapshot
// GET /api/universes/{id}/snapshots/latest
func (h *SnapshotHandler) Latest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Latest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Composition resolves the composition in effect on a date (default today)
// GET /api/universes/{id}/composition?date=
func (h *SnapshotHandler) Composition(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if date.IsZero() {
		date = calendar.Date(time.Now())
	}

	pit, err := h.resolver.Resolve(r.Context(), mux.Vars(r)["id"], date)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, pit)
}

// Evolution compares the compositions in effect on two dates
// GET /api/universes/{id}/evolution?from=&to=
func (h *SnapshotHandler) Evolution(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if from.IsZero() || to.IsZero() {
		respondErr(w, h.logger, contracts.Invalid("from/to", "both dates are required"))
		return
	}

	analysis, err := h.resolver.Compare(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// BackfillRequest rebuilds historical snapshots. With assets every date gets
// that composition; otherwise the universe's current composition is used.
type BackfillRequest struct {
	StartDate         string                 `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate           string                 `json:"end_date" validate:"required,datetime=2006-01-02"`
	Frequency         string                 `json:"frequency" default:"MONTHLY" validate:"oneof=DAILY WEEKLY MONTHLY QUARTERLY daily weekly monthly quarterly"`
	Force             bool                   `json:"force"`
	Assets            contracts.Composition  `json:"assets"`
	ScreeningCriteria map[string]interface{} `json:"screening_criteria"`
}

// Backfill runs a backfill; partial failures still answer 200 with the summary
// POST /api/universes/{id}/backfill
func (h *SnapshotHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if !bindOrReject(w, r, &req) {
		return
	}
	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	end, err := calendar.ParseDate(req.EndDate)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	var provider backfill.CompositionProvider
	switch {
	case req.Assets != nil:
		provider = backfill.StaticComposition{Assets: req.Assets, Criteria: req.ScreeningCriteria}
	case h.directory != nil:
		provider = backfill.NewUniverseComposition(h.directory)
	default:
		respondErr(w, h.logger, contracts.Invalid("assets", "required when no universe directory is configured"))
		return
	}

	summary, err := h.backfill.Backfill(r.Context(), backfill.Request{
		UniverseID: mux.Vars(r)["id"],
		StartDate:  start,
		EndDate:    end,
		Frequency:  req.Frequency,
		Force:      req.Force,
	}, provider)
	if err != nil && summary == nil {
		respondErr(w, h.logger, err)
		return
	}
	if err != nil {
		h.logger.WithError(err).Warn("backfill interrupted")
	}
	respondJSON(w, http.StatusOK, summary)
}

// Rederive recomputes stored diffs along the chain
// POST /api/universes/{id}/snapshots/rederive
func (h *SnapshotHandler) Rederive(w http.ResponseWriter, r *http.Request) {
	changed, err := h.service.RederiveChain(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"changed": changed})
}

// DeleteUniverse removes the universe with its snapshots
// DELETE /api/universes/{id}
func (h *SnapshotHandler) DeleteUniverse(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.DeleteUniverse(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted_snapshots": n})
}
