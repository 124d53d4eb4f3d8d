package temporal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// TimelineQuery selects a snapshot series. Zero dates are open bounds;
// an empty Frequency returns every snapshot.
type TimelineQuery struct {
	UniverseID string
	Start      time.Time
	End        time.Time
	Frequency  contracts.Frequency
}

// Timeline returns the ordered snapshots in range with aggregate turnover.
// With a calendar frequency only the latest snapshot of each period is kept.
func (r *Resolver) Timeline(ctx context.Context, q TimelineQuery) (*contracts.Timeline, error) {
	if q.Frequency != "" && !q.Frequency.IsCalendar() {
		return nil, contracts.Invalid("frequency", "%s cannot be used to sample a timeline", q.Frequency)
	}

	var (
		records []*contracts.SnapshotRecord
		err     error
	)
	if q.Start.IsZero() && q.End.IsZero() {
		records, err = r.store.List(ctx, q.UniverseID)
	} else {
		start, end := q.Start, q.End
		if end.IsZero() {
			end = calendar.Today()
		}
		if end.Before(start) {
			return nil, contracts.Invalid("date_range", "start %s is after end %s", calendar.Format(start), calendar.Format(end))
		}
		records, err = r.store.GetRange(ctx, q.UniverseID, start, end)
	}
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}

	if q.Frequency != "" {
		records = samplePerPeriod(records, q.Frequency)
	}

	tl := &contracts.Timeline{
		UniverseID: q.UniverseID,
		StartDate:  q.Start,
		EndDate:    q.End,
		Frequency:  q.Frequency,
		Snapshots:  records,
	}
	if len(records) > 0 {
		if tl.StartDate.IsZero() {
			tl.StartDate = records[0].SnapshotDate
		}
		if tl.EndDate.IsZero() {
			tl.EndDate = records[len(records)-1].SnapshotDate
		}
	}

	period := calendar.Format(tl.StartDate) + ".." + calendar.Format(tl.EndDate)
	tl.Metrics = r.tracker.CalculateTurnoverMetrics(q.UniverseID, records, period)
	return tl, nil
}

// samplePerPeriod keeps the latest snapshot of each period; input must be ascending
func samplePerPeriod(records []*contracts.SnapshotRecord, freq contracts.Frequency) []*contracts.SnapshotRecord {
	latest := make(map[string]*contracts.SnapshotRecord)
	for _, rec := range records {
		latest[calendar.PeriodKey(rec.SnapshotDate, freq)] = rec
	}
	out := make([]*contracts.SnapshotRecord, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SnapshotDate.Before(out[j].SnapshotDate)
	})
	return out
}
