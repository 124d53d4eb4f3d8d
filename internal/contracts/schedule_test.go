package contracts

import (
	"errors"
	"testing"
	"time"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in      string
		want    Frequency
		wantErr bool
	}{
		{"daily", FrequencyDaily, false},
		{"WEEKLY", FrequencyWeekly, false},
		{" Monthly ", FrequencyMonthly, false},
		{"quarterly", FrequencyQuarterly, false},
		{"custom", FrequencyCustom, false},
		{"yearly", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrequency(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("ParseFrequency(%q) error = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFrequency(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}

	if FrequencyCustom.IsCalendar() {
		t.Error("CUSTOM should not be a calendar frequency")
	}
}

func TestSchedule_LastPlannedAndClone(t *testing.T) {
	d1 := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)
	s := &Schedule{
		ID:       "s1",
		Metadata: map[string]string{"k": "v"},
		Executions: []ScheduleExecution{
			{PlannedDate: d2},
			{PlannedDate: d1},
		},
	}

	last, ok := s.LastPlanned()
	if !ok || !last.Equal(d2) {
		t.Errorf("LastPlanned() = %v, %v; want %v", last, ok, d2)
	}

	c := s.Clone()
	c.Metadata["k"] = "changed"
	c.Executions[0].Status = ExecutionFailed
	if s.Metadata["k"] != "v" || s.Executions[0].Status != "" {
		t.Error("Clone() shares mutable state")
	}

	if _, ok := (&Schedule{}).LastPlanned(); ok {
		t.Error("LastPlanned() on empty history should report false")
	}
}

func TestBackfillSummary_Record(t *testing.T) {
	s := &BackfillSummary{TotalDates: 4}
	s.Record(DateOutcome{Outcome: OutcomeCreated})
	s.Record(DateOutcome{Outcome: OutcomeSkipped})
	s.Record(DateOutcome{Outcome: OutcomeFailed, Reason: "boom"})
	s.Record(DateOutcome{Outcome: OutcomeCreated})

	if s.Created != 2 || s.Skipped != 1 || s.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", s.Created, s.Skipped, s.Failed)
	}
	if s.SuccessRate != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", s.SuccessRate)
	}
}
