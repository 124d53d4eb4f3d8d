// Package snapshot persists point-in-time universe compositions.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/evolution"
)

// Store persists snapshots, one per (universe, date).
// ⭐ SSOT: 선행 스냅샷 대비 diff 계산은 Create 안에서 저장과 원자적으로 수행
type Store interface {
	// Create inserts a snapshot. An existing date fails with ErrDuplicateSnapshot
	// unless overwrite is set, in which case it is replaced. replaced reports that case.
	Create(ctx context.Context, in contracts.SnapshotInput, overwrite bool) (rec *contracts.SnapshotRecord, replaced bool, err error)
	GetByDate(ctx context.Context, universeID string, date time.Time) (*contracts.SnapshotRecord, error)
	Exists(ctx context.Context, universeID string, date time.Time) (bool, error)
	GetLatest(ctx context.Context, universeID string) (*contracts.SnapshotRecord, error)
	GetRange(ctx context.Context, universeID string, start, end time.Time) ([]*contracts.SnapshotRecord, error)
	GetNearestAtOrBefore(ctx context.Context, universeID string, target time.Time) (*contracts.SnapshotRecord, error)
	List(ctx context.Context, universeID string) ([]*contracts.SnapshotRecord, error)
	// UpdateDerived rewrites only turnover_rate, assets_added and assets_removed
	UpdateDerived(ctx context.Context, rec *contracts.SnapshotRecord) error
	DeleteAllForUniverse(ctx context.Context, universeID string) (int64, error)
}

// Derive fills the diff fields of rec against its chronological predecessor.
// With no predecessor the snapshot is the first: turnover 0, every symbol added.
func Derive(prev, rec *contracts.SnapshotRecord) {
	symbols := rec.Assets.Symbols()
	if prev == nil {
		added := append([]string(nil), symbols...)
		sort.Strings(added)
		rec.TurnoverRate = 0
		rec.AssetsAdded = dedupe(added)
		rec.AssetsRemoved = []string{}
		return
	}

	prevSymbols := prev.Assets.Symbols()
	rec.TurnoverRate = evolution.Turnover(prevSymbols, symbols)
	rec.AssetsAdded, rec.AssetsRemoved = evolution.SymbolDiff(prevSymbols, symbols)
}

func dedupe(sorted []string) []string {
	out := make([]string, 0, len(sorted))
	for i, s := range sorted {
		if i > 0 && sorted[i-1] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}

func newRecord(id string, in contracts.SnapshotInput, now time.Time) *contracts.SnapshotRecord {
	criteria := in.ScreeningCriteria
	if criteria == nil {
		criteria = map[string]interface{}{}
	}
	perf := in.PerformanceMetrics
	if perf == nil {
		perf = map[string]interface{}{}
	}
	return &contracts.SnapshotRecord{
		ID:                 id,
		UniverseID:         in.UniverseID,
		SnapshotDate:       calendar.Date(in.SnapshotDate),
		Assets:             in.Assets.Clone(),
		ScreeningCriteria:  criteria,
		PerformanceMetrics: perf,
		CreatedAt:          now,
	}
}

func duplicateErr(universeID string, date time.Time) error {
	return fmt.Errorf("universe %s on %s: %w", universeID, calendar.Format(date), contracts.ErrDuplicateSnapshot)
}

func notFoundAt(universeID string, date time.Time) error {
	return &contracts.NotFoundError{Resource: "snapshot", ID: universeID + "@" + calendar.Format(date)}
}
