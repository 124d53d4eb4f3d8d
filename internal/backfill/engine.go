// Package backfill generates historical snapshots across a date range.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/metrics"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
	"github.com/wonny/aegis/v13/timeline/pkg/redis"
)

// Defaults
const (
	DefaultMaxDates = 3660
	DefaultLockTTL  = 30 * time.Minute
)

// Request describes one backfill run
type Request struct {
	UniverseID string
	StartDate  time.Time
	EndDate    time.Time
	Frequency  string
	Force      bool // recreate dates that already have a snapshot
}

// Config bounds a backfill run
type Config struct {
	MaxDates int           `yaml:"max_dates"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// UniverseChecker reports whether a universe exists
type UniverseChecker interface {
	Exists(ctx context.Context, universeID string) (bool, error)
}

// Engine writes snapshots date by date through the snapshot service
// ⭐ SSOT: 과거 스냅샷 일괄 생성은 여기서만
type Engine struct {
	service  *snapshot.Service
	locker   *redis.Locker
	universe UniverseChecker
	config   Config
	metrics  *metrics.Recorder
	logger   *logger.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLocker sets the per-universe lock; defaults to an in-process locker
func WithLocker(l *redis.Locker) Option { return func(e *Engine) { e.locker = l } }

// WithUniverseChecker rejects unknown universes before any work
func WithUniverseChecker(c UniverseChecker) Option { return func(e *Engine) { e.universe = c } }

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine creates a backfill engine
func NewEngine(service *snapshot.Service, config Config, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if config.MaxDates <= 0 {
		config.MaxDates = DefaultMaxDates
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	e := &Engine{
		service: service,
		config:  config,
		logger:  log.WithComponent("backfill"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.locker == nil {
		e.locker = redis.NewLocker(redis.Disabled(), "timeline")
	}
	return e
}

// Plan validates the request and returns the dates a run would visit
func (e *Engine) Plan(req Request) ([]time.Time, contracts.Frequency, error) {
	if req.UniverseID == "" {
		return nil, "", contracts.Invalid("universe_id", "required")
	}
	freq, err := contracts.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, "", err
	}
	if !freq.IsCalendar() {
		return nil, "", contracts.Invalid("frequency", "%s is not supported for backfill", freq)
	}

	start, end := calendar.Date(req.StartDate), calendar.Date(req.EndDate)
	if !start.Before(end) {
		return nil, "", contracts.Invalid("date_range", "start %s must be before end %s", calendar.Format(start), calendar.Format(end))
	}

	n, err := calendar.CountSeries(start, end, freq)
	if err != nil {
		return nil, "", err
	}
	if n > e.config.MaxDates {
		return nil, "", contracts.Invalid("date_range", "%d dates exceeds the limit of %d", n, e.config.MaxDates)
	}

	dates, err := calendar.Series(start, end, freq)
	if err != nil {
		return nil, "", err
	}
	return dates, freq, nil
}

// Backfill creates one snapshot per date in ascending order.
//
// Precondition failures return before any write. Per-date failures are
// recorded in the summary and processing continues. If ctx is cancelled the
// run stops between dates and the partial summary is returned with ctx's error;
// snapshots already written are kept.
func (e *Engine) Backfill(ctx context.Context, req Request, provider CompositionProvider) (*contracts.BackfillSummary, error) {
	started := time.Now()
	defer e.metrics.ObserveSince("backfill", started)

	if provider == nil {
		return nil, contracts.Invalid("provider", "required")
	}
	dates, freq, err := e.Plan(req)
	if err != nil {
		return nil, err
	}

	if e.universe != nil {
		ok, err := e.universe.Exists(ctx, req.UniverseID)
		if err != nil {
			return nil, fmt.Errorf("check universe: %w", err)
		}
		if !ok {
			return nil, contracts.NotFound("universe", req.UniverseID)
		}
	}

	release, err := e.locker.Acquire(ctx, "backfill:"+req.UniverseID, e.config.LockTTL)
	if errors.Is(err, redis.ErrLockHeld) {
		return nil, fmt.Errorf("backfill already running for universe %s: %w", req.UniverseID, contracts.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &contracts.BackfillSummary{
		UniverseID:       req.UniverseID,
		StartDate:        calendar.Date(req.StartDate),
		EndDate:          calendar.Date(req.EndDate),
		Frequency:        freq,
		TotalDates:       len(dates),
		Outcomes:         make([]contracts.DateOutcome, 0, len(dates)),
		CreatedSnapshots: make([]*contracts.SnapshotRecord, 0),
	}

	e.logger.WithFields(map[string]interface{}{
		"universe_id": req.UniverseID,
		"from":        calendar.Format(summary.StartDate),
		"to":          calendar.Format(summary.EndDate),
		"frequency":   freq,
		"dates":       len(dates),
		"force":       req.Force,
	}).Info("Starting backfill")

	var runErr error
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			summary.Interrupted = true
			runErr = err
			break
		}

		outcome, rec := e.backfillDate(ctx, req, date, provider)
		summary.Record(outcome)
		if rec != nil {
			summary.CreatedSnapshots = append(summary.CreatedSnapshots, rec)
		}
		e.metrics.BackfillOutcome(string(outcome.Outcome))
	}

	log := e.logger.WithFields(map[string]interface{}{
		"universe_id":  req.UniverseID,
		"created":      summary.Created,
		"skipped":      summary.Skipped,
		"failed":       summary.Failed,
		"success_rate": summary.SuccessRate,
		"interrupted":  summary.Interrupted,
	})
	if summary.Failed > 0 || summary.Interrupted {
		log.Warn("Backfill finished with problems")
	} else {
		log.Info("Backfill completed")
	}
	return summary, runErr
}

func (e *Engine) backfillDate(ctx context.Context, req Request, date time.Time, provider CompositionProvider) (contracts.DateOutcome, *contracts.SnapshotRecord) {
	outcome := contracts.DateOutcome{Date: date}

	exists, err := e.service.Store().Exists(ctx, req.UniverseID, date)
	if err != nil {
		outcome.Outcome = contracts.OutcomeFailed
		outcome.Reason = fmt.Sprintf("check existing: %v", err)
		return outcome, nil
	}
	if exists && !req.Force {
		outcome.Outcome = contracts.OutcomeSkipped
		outcome.Reason = "snapshot already exists"
		return outcome, nil
	}

	assets, criteria, err := provider.CompositionAt(ctx, req.UniverseID, date)
	if err != nil {
		outcome.Outcome = contracts.OutcomeFailed
		outcome.Reason = fmt.Sprintf("composition: %v", err)
		return outcome, nil
	}
	if assets == nil {
		// nil would make the service fall back to the current composition
		assets = contracts.Composition{}
	}

	d := date
	rec, err := e.service.CreateSnapshot(ctx, snapshot.CreateRequest{
		UniverseID:        req.UniverseID,
		SnapshotDate:      &d,
		Assets:            assets,
		ScreeningCriteria: criteria,
		Force:             req.Force,
	})
	switch {
	case errors.Is(err, contracts.ErrDuplicateSnapshot):
		outcome.Outcome = contracts.OutcomeSkipped
		outcome.Reason = "snapshot created concurrently"
		return outcome, nil
	case err != nil:
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"universe_id": req.UniverseID,
			"date":        calendar.Format(date),
		}).Warn("Backfill date failed")
		outcome.Outcome = contracts.OutcomeFailed
		outcome.Reason = err.Error()
		return outcome, nil
	}

	outcome.Outcome = contracts.OutcomeCreated
	outcome.SnapshotID = rec.ID
	if exists {
		outcome.Reason = "replaced existing snapshot"
	}
	return outcome, rec
}
