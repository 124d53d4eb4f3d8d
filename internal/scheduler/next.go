package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// Metadata keys understood by CUSTOM schedules
const (
	MetaCron         = "cron"          // 5-field cron expression, evaluated in the schedule timezone
	MetaIntervalDays = "interval_days" // fixed step in days from start_date
)

// maxCronCatchUp bounds how many missed cron occurrences are walked to find the latest one
const maxCronCatchUp = 100_000

// occurrences is the ordered execution series of a schedule
type occurrences interface {
	// after returns the first occurrence strictly after t
	after(t time.Time) time.Time
	// latestUpTo returns the latest occurrence in [from, t]; from must be an occurrence <= t
	latestUpTo(from, t time.Time) time.Time
}

// calendarSeries is origin + i*step periods, always computed from origin
type calendarSeries struct {
	origin time.Time
	freq   contracts.Frequency
	step   int
}

func (c calendarSeries) at(i int) time.Time {
	t, _ := calendar.AddPeriods(c.origin, c.freq, i*c.step)
	return t
}

// estimate guesses the index of the latest occurrence <= t
func (c calendarSeries) estimate(t time.Time) int {
	switch c.freq {
	case contracts.FrequencyMonthly, contracts.FrequencyQuarterly:
		months := (t.Year()-c.origin.Year())*12 + int(t.Month()) - int(c.origin.Month())
		per := c.step
		if c.freq == contracts.FrequencyQuarterly {
			per *= 3
		}
		return months / per
	case contracts.FrequencyWeekly:
		return calendar.DaysBetween(c.origin, t) / (7 * c.step)
	}
	return calendar.DaysBetween(c.origin, t) / c.step
}

// indexAtOrBefore returns the index of the latest occurrence <= t, or -1
func (c calendarSeries) indexAtOrBefore(t time.Time) int {
	if c.origin.After(t) {
		return -1
	}
	i := c.estimate(t)
	if i < 0 {
		i = 0
	}
	for i > 0 && c.at(i).After(t) {
		i--
	}
	for !c.at(i + 1).After(t) {
		i++
	}
	return i
}

func (c calendarSeries) after(t time.Time) time.Time {
	return c.at(c.indexAtOrBefore(t) + 1)
}

func (c calendarSeries) latestUpTo(from, t time.Time) time.Time {
	return c.at(c.indexAtOrBefore(t))
}

// cronSeries walks a cron schedule starting at origin
type cronSeries struct {
	origin time.Time
	sched  cron.Schedule
}

func (c cronSeries) after(t time.Time) time.Time {
	if t.Before(c.origin) {
		t = c.origin.Add(-time.Second)
	}
	return c.sched.Next(t)
}

func (c cronSeries) latestUpTo(from, t time.Time) time.Time {
	cur := from
	for i := 0; i < maxCronCatchUp; i++ {
		next := c.sched.Next(cur)
		if next.After(t) {
			break
		}
		cur = next
	}
	return cur
}

// ParseExecutionTime parses HH:MM
func ParseExecutionTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, contracts.Invalid("execution_time", "expected HH:MM, got %q", s)
	}
	hour, errH := strconv.Atoi(parts[0])
	minute, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, contracts.Invalid("execution_time", "expected HH:MM, got %q", s)
	}
	return hour, minute, nil
}

// location resolves the schedule timezone; empty means UTC
func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, contracts.Invalid("timezone_name", "unknown timezone %q", name)
	}
	return loc, nil
}

// seriesFor builds the occurrence series of a schedule
func seriesFor(s *contracts.Schedule) (occurrences, *time.Location, error) {
	loc, err := location(s.TimezoneName)
	if err != nil {
		return nil, nil, err
	}
	hour, minute, err := ParseExecutionTime(s.ExecutionTime)
	if err != nil {
		return nil, nil, err
	}

	y, m, d := s.StartDate.Date()
	origin := time.Date(y, m, d, hour, minute, 0, 0, loc)

	if s.Frequency.IsCalendar() {
		return calendarSeries{origin: origin, freq: s.Frequency, step: 1}, loc, nil
	}
	if s.Frequency != contracts.FrequencyCustom {
		return nil, nil, contracts.Invalid("frequency", "unknown frequency %q", s.Frequency)
	}

	if spec := s.Metadata[MetaCron]; spec != "" {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, nil, contracts.Invalid("metadata.cron", "%v", err)
		}
		// 날짜만 기준으로 시작, 시각은 cron 표현식이 결정
		return cronSeries{origin: time.Date(y, m, d, 0, 0, 0, 0, loc), sched: sched}, loc, nil
	}
	if raw := s.Metadata[MetaIntervalDays]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, nil, contracts.Invalid("metadata.interval_days", "must be a positive integer, got %q", raw)
		}
		return calendarSeries{origin: origin, freq: contracts.FrequencyDaily, step: n}, loc, nil
	}
	return nil, nil, contracts.Invalid("metadata", "CUSTOM schedules need %q or %q", MetaCron, MetaIntervalDays)
}

// NextExecutionDate is a pure function of the schedule and reference time.
//
// Occurrences are start_date + i periods at execution_time in the schedule
// timezone. If occurrences after the last executed one are already due at ref,
// the latest of them is returned (missed runs collapse into one); otherwise the
// first occurrence after ref. ok is false for non-active schedules and when the
// next occurrence falls after end_date.
func NextExecutionDate(s *contracts.Schedule, ref time.Time) (next time.Time, ok bool, err error) {
	if s.Status != contracts.ScheduleActive {
		return time.Time{}, false, nil
	}

	series, loc, err := seriesFor(s)
	if err != nil {
		return time.Time{}, false, err
	}

	anchor := time.Time{}
	if last, found := s.LastPlanned(); found {
		anchor = last
	}

	candidate := series.after(anchor)
	if !candidate.After(ref) {
		candidate = series.latestUpTo(candidate, ref)
	}

	if s.EndDate != nil {
		end := calendar.Date(*s.EndDate)
		if calendar.Date(candidate.In(loc)).After(end) {
			return time.Time{}, false, nil
		}
	}
	return candidate, true, nil
}

// PlannedDate is the calendar date a run planned at t snapshots
func PlannedDate(s *contracts.Schedule, t time.Time) time.Time {
	loc, err := location(s.TimezoneName)
	if err != nil {
		loc = time.UTC
	}
	return calendar.Date(t.In(loc))
}

// Describe renders the schedule cadence for logs and CLI output
func Describe(s *contracts.Schedule) string {
	switch {
	case s.Frequency != contracts.FrequencyCustom:
		return fmt.Sprintf("%s at %s %s", s.Frequency, s.ExecutionTime, s.TimezoneName)
	case s.Metadata[MetaCron] != "":
		return fmt.Sprintf("cron %q %s", s.Metadata[MetaCron], s.TimezoneName)
	}
	return fmt.Sprintf("every %s days at %s %s", s.Metadata[MetaIntervalDays], s.ExecutionTime, s.TimezoneName)
}
