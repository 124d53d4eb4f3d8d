package contracts

import (
	"strings"
	"time"
)

// Frequency is the calendar step of schedules and backfills
type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyCustom    Frequency = "CUSTOM"
)

// ParseFrequency accepts any case
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyCustom:
		return f, nil
	}
	return "", Invalid("frequency", "unknown frequency %q", s)
}

// IsCalendar reports whether the frequency has a fixed calendar step
func (f Frequency) IsCalendar() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// ScheduleStatus is the lifecycle state of a schedule
type ScheduleStatus string

const (
	ScheduleActive    ScheduleStatus = "ACTIVE"
	SchedulePaused    ScheduleStatus = "PAUSED"
	ScheduleCompleted ScheduleStatus = "COMPLETED"
	ScheduleFailed    ScheduleStatus = "FAILED"
)

// ExecutionStatus is the outcome of one schedule run
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
	ExecutionSkipped ExecutionStatus = "SKIPPED"
)

// Schedule drives recurring snapshot creation for one universe
// ⭐ SSOT: 스냅샷 스케줄 정의
type Schedule struct {
	ID                  string              `json:"id"`
	UniverseID          string              `json:"universe_id"`
	Frequency           Frequency           `json:"frequency"`
	StartDate           time.Time           `json:"start_date"`
	EndDate             *time.Time          `json:"end_date,omitempty"`
	ExecutionTime       string              `json:"execution_time"` // HH:MM
	TimezoneName        string              `json:"timezone_name"`
	Status              ScheduleStatus      `json:"status"`
	Metadata            map[string]string   `json:"metadata,omitempty"`
	Executions          []ScheduleExecution `json:"executions"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// LastPlanned returns the latest planned date among executions
func (s *Schedule) LastPlanned() (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range s.Executions {
		if !found || e.PlannedDate.After(last) {
			last = e.PlannedDate
			found = true
		}
	}
	return last, found
}

// Clone deep-copies the mutable parts
func (s *Schedule) Clone() *Schedule {
	c := *s
	if s.EndDate != nil {
		end := *s.EndDate
		c.EndDate = &end
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Executions = append([]ScheduleExecution(nil), s.Executions...)
	return &c
}

// ScheduleExecution is one recorded run
type ScheduleExecution struct {
	ID          string                 `json:"id"`
	ScheduleID  string                 `json:"schedule_id"`
	PlannedDate time.Time              `json:"planned_date"`
	ActualDate  time.Time              `json:"actual_date"`
	Status      ExecutionStatus        `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Delay is actual minus planned
func (e ScheduleExecution) Delay() time.Duration {
	return e.ActualDate.Sub(e.PlannedDate)
}

// ScheduleStatistics summarizes a schedule's history
type ScheduleStatistics struct {
	ScheduleID           string             `json:"schedule_id"`
	TotalExecutions      int                `json:"total_executions"`
	SuccessfulExecutions int                `json:"successful_executions"`
	FailedExecutions     int                `json:"failed_executions"`
	SuccessRate          float64            `json:"success_rate"`
	AverageDelaySeconds  float64            `json:"average_delay_seconds"`
	LastExecution        *ScheduleExecution `json:"last_execution,omitempty"`
}

// BackfillOutcome classifies one backfill date
type BackfillOutcome string

const (
	OutcomeCreated BackfillOutcome = "CREATED"
	OutcomeSkipped BackfillOutcome = "SKIPPED"
	OutcomeFailed  BackfillOutcome = "FAILED"
)

// DateOutcome is the per-date result of a backfill
type DateOutcome struct {
	Date       time.Time       `json:"date"`
	Outcome    BackfillOutcome `json:"outcome"`
	SnapshotID string          `json:"snapshot_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// BackfillSummary aggregates a backfill run
type BackfillSummary struct {
	UniverseID       string            `json:"universe_id"`
	StartDate        time.Time         `json:"start_date"`
	EndDate          time.Time         `json:"end_date"`
	Frequency        Frequency         `json:"frequency"`
	TotalDates       int               `json:"total_dates"`
	Created          int               `json:"created"`
	Skipped          int               `json:"skipped"`
	Failed           int               `json:"failed"`
	SuccessRate      float64           `json:"success_rate"`
	Interrupted      bool              `json:"interrupted"`
	Outcomes         []DateOutcome     `json:"outcomes"`
	CreatedSnapshots []*SnapshotRecord `json:"created_snapshots"`
}

// Record appends an outcome and updates the counters
func (b *BackfillSummary) Record(o DateOutcome) {
	b.Outcomes = append(b.Outcomes, o)
	switch o.Outcome {
	case OutcomeCreated:
		b.Created++
	case OutcomeSkipped:
		b.Skipped++
	case OutcomeFailed:
		b.Failed++
	}
	if b.TotalDates > 0 {
		b.SuccessRate = float64(b.Created+b.Skipped) / float64(b.TotalDates)
	}
}
