package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestAddPeriods_MonthEndClamping(t *testing.T) {
	jan31 := d(2024, 1, 31)

	tests := []struct {
		name string
		freq contracts.Frequency
		n    int
		want time.Time
	}{
		{"leap february", contracts.FrequencyMonthly, 1, d(2024, 2, 29)},
		{"back to 31st", contracts.FrequencyMonthly, 2, d(2024, 3, 31)},
		{"april has 30", contracts.FrequencyMonthly, 3, d(2024, 4, 30)},
		{"next year february", contracts.FrequencyMonthly, 13, d(2025, 2, 28)},
		{"quarter", contracts.FrequencyQuarterly, 1, d(2024, 4, 30)},
		{"two quarters", contracts.FrequencyQuarterly, 2, d(2024, 7, 31)},
		{"week", contracts.FrequencyWeekly, 1, d(2024, 2, 7)},
		{"day", contracts.FrequencyDaily, 1, d(2024, 2, 1)},
		{"zero", contracts.FrequencyMonthly, 0, jan31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddPeriods(jan31, tt.freq, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := AddPeriods(jan31, contracts.FrequencyCustom, 1)
	assert.True(t, errors.Is(err, contracts.ErrInvalidInput))
}

func TestAddMonths_PreservesClockAndLocation(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)

	start := time.Date(2023, 12, 31, 9, 30, 0, 0, loc)
	got := AddMonths(start, 2)
	assert.Equal(t, time.Date(2024, 2, 29, 9, 30, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())

	assert.Equal(t, d(2023, 11, 30), AddMonths(d(2024, 1, 30), -2))
}

func TestSeries(t *testing.T) {
	got, err := Series(d(2024, 7, 1), d(2024, 8, 31), contracts.FrequencyMonthly)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d(2024, 7, 1), d(2024, 8, 1)}, got)

	got, err = Series(d(2024, 1, 31), d(2024, 4, 30), contracts.FrequencyMonthly)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d(2024, 1, 31), d(2024, 2, 29), d(2024, 3, 31), d(2024, 4, 30)}, got)

	got, err = Series(d(2024, 1, 1), d(2024, 1, 3), contracts.FrequencyDaily)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = Series(d(2024, 1, 1), d(2024, 2, 1), contracts.FrequencyCustom)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestCountSeries_MatchesSeries(t *testing.T) {
	properties := gopter.NewProperties(nil)

	freqs := []contracts.Frequency{
		contracts.FrequencyDaily,
		contracts.FrequencyWeekly,
		contracts.FrequencyMonthly,
		contracts.FrequencyQuarterly,
	}

	properties.Property("CountSeries equals len(Series)", prop.ForAll(
		func(startOffset, span, fi int) bool {
			start := d(2020, 1, 1).AddDate(0, 0, startOffset)
			end := start.AddDate(0, 0, span)
			freq := freqs[fi]

			series, err := Series(start, end, freq)
			if err != nil {
				return false
			}
			n, err := CountSeries(start, end, freq)
			return err == nil && n == len(series)
		},
		gen.IntRange(0, 1500),
		gen.IntRange(0, 800),
		gen.IntRange(0, len(freqs)-1),
	))

	properties.TestingRun(t)
}

func TestAddMonths_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("result day never exceeds the anchor day", prop.ForAll(
		func(offset, n int) bool {
			anchor := d(2000, 1, 1).AddDate(0, 0, offset)
			return AddMonths(anchor, n).Day() <= anchor.Day()
		},
		gen.IntRange(0, 10000),
		gen.IntRange(0, 120),
	))

	properties.Property("successive month steps are strictly increasing", prop.ForAll(
		func(offset, n int) bool {
			anchor := d(2000, 1, 1).AddDate(0, 0, offset)
			return AddMonths(anchor, n+1).After(AddMonths(anchor, n))
		},
		gen.IntRange(0, 10000),
		gen.IntRange(0, 120),
	))

	properties.TestingRun(t)
}

func TestPeriodKey(t *testing.T) {
	date := d(2024, 5, 15)
	assert.Equal(t, "2024-05-15", PeriodKey(date, contracts.FrequencyDaily))
	assert.Equal(t, "2024-W20", PeriodKey(date, contracts.FrequencyWeekly))
	assert.Equal(t, "2024-05", PeriodKey(date, contracts.FrequencyMonthly))
	assert.Equal(t, "2024-Q2", PeriodKey(date, contracts.FrequencyQuarterly))
}

func TestParseDateAndDays(t *testing.T) {
	got, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, d(2024, 2, 29), got)

	_, err = ParseDate("2024/02/29")
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	assert.Equal(t, 14, DaysBetween(d(2024, 1, 1), d(2024, 1, 15)))
	assert.Equal(t, d(2024, 1, 1), Date(time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)))
}
