package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/metrics"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// Defaults for new schedules
const (
	DefaultExecutionTime    = "18:00"
	DefaultTimezone         = "UTC"
	DefaultFailureThreshold = 3
)

// CreateRequest describes a new schedule
type CreateRequest struct {
	UniverseID    string
	Frequency     string
	StartDate     time.Time
	EndDate       *time.Time
	ExecutionTime string
	TimezoneName  string
	Metadata      map[string]string
}

// ManagerConfig tunes the schedule lifecycle
type ManagerConfig struct {
	// FailureThreshold consecutive failed executions mark a schedule FAILED; 0 disables
	FailureThreshold int `yaml:"failure_threshold"`
}

// Manager owns schedule lifecycle and execution history
// ⭐ SSOT: 스케줄 상태 전이는 여기서만
type Manager struct {
	repo    Repository
	config  ManagerConfig
	metrics *metrics.Recorder
	logger  *logger.Logger
	now     func() time.Time
}

// NewManager creates a schedule manager
func NewManager(repo Repository, config ManagerConfig, rec *metrics.Recorder, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		repo:    repo,
		config:  config,
		metrics: rec,
		logger:  log.WithComponent("scheduler"),
		now:     time.Now,
	}
}

// Create validates and stores a new ACTIVE schedule
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*contracts.Schedule, error) {
	if req.UniverseID == "" {
		return nil, contracts.Invalid("universe_id", "required")
	}
	freq, err := contracts.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, err
	}
	if req.StartDate.IsZero() {
		return nil, contracts.Invalid("start_date", "required")
	}

	now := m.now()
	s := &contracts.Schedule{
		ID:            uuid.NewString(),
		UniverseID:    req.UniverseID,
		Frequency:     freq,
		StartDate:     calendar.Date(req.StartDate),
		ExecutionTime: req.ExecutionTime,
		TimezoneName:  req.TimezoneName,
		Status:        contracts.ScheduleActive,
		Metadata:      req.Metadata,
		Executions:    []contracts.ScheduleExecution{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if s.ExecutionTime == "" {
		s.ExecutionTime = DefaultExecutionTime
	}
	if s.TimezoneName == "" {
		s.TimezoneName = DefaultTimezone
	}
	if req.EndDate != nil {
		end := calendar.Date(*req.EndDate)
		if end.Before(s.StartDate) {
			return nil, contracts.Invalid("end_date", "end %s is before start %s", calendar.Format(end), calendar.Format(s.StartDate))
		}
		s.EndDate = &end
	}

	// 시간대, 실행 시각, CUSTOM 메타데이터를 한 번에 검증
	if _, _, err := seriesFor(s); err != nil {
		return nil, err
	}

	if err := m.repo.Put(ctx, s); err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"schedule_id": s.ID,
		"universe_id": s.UniverseID,
		"cadence":     Describe(s),
	}).Info("schedule created")
	return s, nil
}

// Get returns a schedule with its history
func (m *Manager) Get(ctx context.Context, id string) (*contracts.Schedule, error) {
	return m.repo.Get(ctx, id)
}

// List returns all schedules, optionally only those of one universe
func (m *Manager) List(ctx context.Context, universeID string) ([]*contracts.Schedule, error) {
	all, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if universeID == "" {
		return all, nil
	}
	out := make([]*contracts.Schedule, 0, len(all))
	for _, s := range all {
		if s.UniverseID == universeID {
			out = append(out, s)
		}
	}
	return out, nil
}

// transition moves a schedule between states, enforcing the allowed sources
func (m *Manager) transition(ctx context.Context, id string, to contracts.ScheduleStatus, from ...contracts.ScheduleStatus) (*contracts.Schedule, error) {
	s, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, f := range from {
		if s.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("schedule %s is %s, cannot become %s: %w", id, s.Status, to, contracts.ErrInvalidState)
	}

	prev := s.Status
	s.Status = to
	s.UpdatedAt = m.now()
	if to == contracts.ScheduleActive {
		s.ConsecutiveFailures = 0
	}
	if err := m.repo.Put(ctx, s); err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"schedule_id": id,
		"from":        prev,
		"to":          to,
	}).Info("schedule status changed")
	return s, nil
}

// Pause stops an ACTIVE schedule from producing executions
func (m *Manager) Pause(ctx context.Context, id string) (*contracts.Schedule, error) {
	return m.transition(ctx, id, contracts.SchedulePaused, contracts.ScheduleActive)
}

// Resume reactivates a PAUSED schedule
func (m *Manager) Resume(ctx context.Context, id string) (*contracts.Schedule, error) {
	return m.transition(ctx, id, contracts.ScheduleActive, contracts.SchedulePaused)
}

// MarkFailed is terminal
func (m *Manager) MarkFailed(ctx context.Context, id string) (*contracts.Schedule, error) {
	return m.transition(ctx, id, contracts.ScheduleFailed, contracts.ScheduleActive, contracts.SchedulePaused)
}

// MarkCompleted is terminal
func (m *Manager) MarkCompleted(ctx context.Context, id string) (*contracts.Schedule, error) {
	return m.transition(ctx, id, contracts.ScheduleCompleted, contracts.ScheduleActive)
}

// Delete removes the schedule; snapshots it created are kept
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.WithField("schedule_id", id).Info("schedule deleted")
	return nil
}

// NextExecutionDate delegates to the pure function
func (m *Manager) NextExecutionDate(s *contracts.Schedule, ref time.Time) (time.Time, bool, error) {
	return NextExecutionDate(s, ref)
}

// DueSchedule pairs a schedule with the occurrence that is due
type DueSchedule struct {
	Schedule *contracts.Schedule
	Planned  time.Time
}

// DueSchedules returns ACTIVE schedules whose next execution is at or before ref
func (m *Manager) DueSchedules(ctx context.Context, ref time.Time) ([]DueSchedule, error) {
	all, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]DueSchedule, 0)
	for _, s := range all {
		if s.Status != contracts.ScheduleActive {
			continue
		}
		next, ok, err := NextExecutionDate(s, ref)
		if err != nil {
			m.logger.WithError(err).WithField("schedule_id", s.ID).Warn("skipping schedule with invalid definition")
			continue
		}
		if ok && !next.After(ref) {
			due = append(due, DueSchedule{Schedule: s, Planned: next})
		}
	}
	return due, nil
}

// RecordExecution appends a run to the history and applies the failure policy.
// Recording the same planned date twice appends twice; callers own deduplication.
func (m *Manager) RecordExecution(ctx context.Context, scheduleID string, planned, actual time.Time, status contracts.ExecutionStatus, result map[string]interface{}, errMsg string) (*contracts.ScheduleExecution, error) {
	switch status {
	case contracts.ExecutionSuccess, contracts.ExecutionFailed, contracts.ExecutionSkipped:
	default:
		return nil, contracts.Invalid("status", "unknown execution status %q", status)
	}

	s, err := m.repo.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	exec := contracts.ScheduleExecution{
		ID:          uuid.NewString(),
		ScheduleID:  scheduleID,
		PlannedDate: planned,
		ActualDate:  actual,
		Status:      status,
		Result:      result,
		Error:       errMsg,
	}
	if err := m.repo.AppendExecution(ctx, exec); err != nil {
		return nil, err
	}
	m.metrics.ScheduleExecution(string(status))
	s.Executions = append(s.Executions, exec)

	switch status {
	case contracts.ExecutionFailed:
		s.ConsecutiveFailures++
	case contracts.ExecutionSuccess:
		s.ConsecutiveFailures = 0
	}

	prev := s.Status
	if s.Status == contracts.ScheduleActive {
		if m.config.FailureThreshold > 0 && s.ConsecutiveFailures >= m.config.FailureThreshold {
			s.Status = contracts.ScheduleFailed
		} else if _, more, err := NextExecutionDate(s, actual); err == nil && !more {
			s.Status = contracts.ScheduleCompleted
		}
	}
	s.UpdatedAt = m.now()
	if err := m.repo.Put(ctx, s); err != nil {
		return nil, err
	}

	log := m.logger.WithFields(map[string]interface{}{
		"schedule_id":          scheduleID,
		"planned":              planned,
		"status":               status,
		"consecutive_failures": s.ConsecutiveFailures,
	})
	if s.Status != prev {
		log.WithField("schedule_status", s.Status).Warn("schedule status changed after execution")
	} else {
		log.Debug("execution recorded")
	}
	return &exec, nil
}

// Statistics summarizes the execution history.
// Average delay is taken over successful executions only.
func (m *Manager) Statistics(ctx context.Context, id string) (*contracts.ScheduleStatistics, error) {
	s, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return ComputeStatistics(s), nil
}

// ComputeStatistics is the pure form of Statistics
func ComputeStatistics(s *contracts.Schedule) *contracts.ScheduleStatistics {
	stats := &contracts.ScheduleStatistics{
		ScheduleID:      s.ID,
		TotalExecutions: len(s.Executions),
	}

	var delay time.Duration
	for i := range s.Executions {
		e := s.Executions[i]
		switch e.Status {
		case contracts.ExecutionSuccess:
			stats.SuccessfulExecutions++
			delay += e.Delay()
		case contracts.ExecutionFailed:
			stats.FailedExecutions++
		}
	}

	if stats.TotalExecutions > 0 {
		stats.SuccessRate = float64(stats.SuccessfulExecutions) / float64(stats.TotalExecutions)
		last := s.Executions[len(s.Executions)-1]
		stats.LastExecution = &last
	}
	if stats.SuccessfulExecutions > 0 {
		stats.AverageDelaySeconds = delay.Seconds() / float64(stats.SuccessfulExecutions)
	}
	return stats
}
