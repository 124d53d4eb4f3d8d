// Package calendar holds the date arithmetic shared by the scheduler and backfill.
package calendar

import (
	"fmt"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// Date truncates t to its calendar date at UTC midnight
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, contracts.Invalid("date", "expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// Format renders a calendar date
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

// Today returns the current UTC calendar date
func Today() time.Time {
	return Date(time.Now().UTC())
}

// DaysBetween returns whole calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths adds n calendar months, clamping the day to the end of the target month.
// Clock and location of t are preserved.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	ty := y + total/12
	tm := total % 12
	if tm < 0 {
		tm += 12
		ty--
	}
	month := time.Month(tm + 1)
	if last := daysIn(ty, month); d > last {
		d = last
	}
	return time.Date(ty, month, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// AddPeriods returns anchor advanced by n steps of freq.
// Month steps are always computed from the anchor so Jan 31 +1 → Feb 28/29, +2 → Mar 31.
func AddPeriods(anchor time.Time, freq contracts.Frequency, n int) (time.Time, error) {
	switch freq {
	case contracts.FrequencyDaily:
		return anchor.AddDate(0, 0, n), nil
	case contracts.FrequencyWeekly:
		return anchor.AddDate(0, 0, 7*n), nil
	case contracts.FrequencyMonthly:
		return AddMonths(anchor, n), nil
	case contracts.FrequencyQuarterly:
		return AddMonths(anchor, 3*n), nil
	}
	return time.Time{}, contracts.Invalid("frequency", "%s has no calendar step", freq)
}

// Series returns start, start+1p, ... up to and including end
func Series(start, end time.Time, freq contracts.Frequency) ([]time.Time, error) {
	if !freq.IsCalendar() {
		return nil, contracts.Invalid("frequency", "%s has no calendar step", freq)
	}
	var out []time.Time
	for i := 0; ; i++ {
		d, err := AddPeriods(start, freq, i)
		if err != nil {
			return nil, err
		}
		if d.After(end) {
			break
		}
		out = append(out, d)
	}
	return out, nil
}

// CountSeries returns len(Series(start, end, freq)) without allocating the dates
func CountSeries(start, end time.Time, freq contracts.Frequency) (int, error) {
	if end.Before(start) {
		return 0, nil
	}
	switch freq {
	case contracts.FrequencyDaily:
		return DaysBetween(start, end) + 1, nil
	case contracts.FrequencyWeekly:
		return DaysBetween(start, end)/7 + 1, nil
	case contracts.FrequencyMonthly, contracts.FrequencyQuarterly:
		step := 1
		if freq == contracts.FrequencyQuarterly {
			step = 3
		}
		months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
		n := months / step
		// 말일 보정으로 마지막 회차가 end를 넘는지 확인
		if last := AddMonths(start, n*step); last.After(end) {
			n--
		}
		return n + 1, nil
	}
	return 0, contracts.Invalid("frequency", "%s has no calendar step", freq)
}

// PeriodKey is the bucket label of date under freq
func PeriodKey(date time.Time, freq contracts.Frequency) string {
	switch freq {
	case contracts.FrequencyWeekly:
		y, w := date.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case contracts.FrequencyMonthly:
		return date.Format("2006-01")
	case contracts.FrequencyQuarterly:
		return fmt.Sprintf("%d-Q%d", date.Year(), (int(date.Month())-1)/3+1)
	}
	return Format(date)
}
