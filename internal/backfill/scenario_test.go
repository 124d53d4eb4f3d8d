package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
	"github.com/wonny/aegis/v13/timeline/internal/temporal"
)

// Snapshot A on 2024-06-30 and B on 2024-09-30 exist; a monthly backfill fills July and August.
func seedScenario(t *testing.T) (*Engine, *snapshot.Service, *contracts.SnapshotRecord, *contracts.SnapshotRecord) {
	t.Helper()
	ctx := context.Background()
	e, svc := newEngine()

	dateA, dateB := day(2024, 6, 30), day(2024, 9, 30)
	a, err := svc.CreateSnapshot(ctx, snapshot.CreateRequest{UniverseID: "U", SnapshotDate: &dateA, Assets: weights("AAPL", 0.5, "MSFT", 0.5)})
	require.NoError(t, err)
	b, err := svc.CreateSnapshot(ctx, snapshot.CreateRequest{UniverseID: "U", SnapshotDate: &dateB, Assets: weights("GOOGL", 0.5, "AMZN", 0.5)})
	require.NoError(t, err)

	assert.Equal(t, 0.0, a.TurnoverRate)
	assert.Equal(t, 1.0, b.TurnoverRate)
	assert.ElementsMatch(t, []string{"GOOGL", "AMZN"}, b.AssetsAdded)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, b.AssetsRemoved)
	return e, svc, a, b
}

func assertUnchanged(t *testing.T, svc *snapshot.Service, want *contracts.SnapshotRecord) {
	t.Helper()
	got, err := svc.Store().GetByDate(context.Background(), want.UniverseID, want.SnapshotDate)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.TurnoverRate, got.TurnoverRate)
	assert.Equal(t, want.AssetsAdded, got.AssetsAdded)
	assert.Equal(t, want.AssetsRemoved, got.AssetsRemoved)
	assert.Equal(t, want.Assets.Symbols(), got.Assets.Symbols())
}

func TestScenario_MidPeriodBackfill(t *testing.T) {
	ctx := context.Background()
	e, svc, a, b := seedScenario(t)

	mid := StaticComposition{Assets: weights("AAPL", 0.34, "GOOGL", 0.33, "AMZN", 0.33)}
	summary, err := e.Backfill(ctx, Request{UniverseID: "U", StartDate: day(2024, 7, 1), EndDate: day(2024, 8, 31), Frequency: "monthly"}, mid)
	require.NoError(t, err)

	require.Equal(t, 2, summary.Created)
	jul, aug := summary.CreatedSnapshots[0], summary.CreatedSnapshots[1]
	assert.Equal(t, day(2024, 7, 1), jul.SnapshotDate)
	assert.Equal(t, day(2024, 8, 1), aug.SnapshotDate)

	// July against A: AAPL kept, MSFT out, GOOGL and AMZN in
	assert.InDelta(t, 2.0/3.0, jul.TurnoverRate, 1e-12)
	assert.Greater(t, jul.TurnoverRate, 0.0)
	assert.Less(t, jul.TurnoverRate, 1.0)
	// August repeats July's static composition
	assert.Equal(t, 0.0, aug.TurnoverRate)

	assertUnchanged(t, svc, a)
	assertUnchanged(t, svc, b)

	// the backfilled history is what point-in-time queries now see
	resolver := temporal.NewResolver(svc.Store(), nil, nil, 0, nil, nil)
	pit, err := resolver.Resolve(ctx, "U", day(2024, 8, 15))
	require.NoError(t, err)
	assert.Equal(t, day(2024, 8, 1), pit.SnapshotDate)
	assert.ElementsMatch(t, []string{"AAPL", "GOOGL", "AMZN"}, pit.Assets.Symbols())
}

func TestScenario_EvolvingBackfill(t *testing.T) {
	ctx := context.Background()
	e, svc, a, b := seedScenario(t)

	byMonth := map[time.Month]contracts.Composition{
		time.July:   weights("AAPL", 0.34, "GOOGL", 0.33, "AMZN", 0.33),
		time.August: weights("MSFT", 0.34, "GOOGL", 0.33, "AMZN", 0.33),
	}
	provider := ProviderFunc(func(ctx context.Context, universeID string, date time.Time) (contracts.Composition, map[string]interface{}, error) {
		return byMonth[date.Month()], nil, nil
	})

	summary, err := e.Backfill(ctx, Request{UniverseID: "U", StartDate: day(2024, 7, 1), EndDate: day(2024, 8, 31), Frequency: "monthly"}, provider)
	require.NoError(t, err)
	require.Len(t, summary.CreatedSnapshots, 2)
	for _, rec := range summary.CreatedSnapshots {
		assert.Greater(t, rec.TurnoverRate, 0.0, rec.SnapshotDate)
		assert.Less(t, rec.TurnoverRate, 1.0, rec.SnapshotDate)
	}

	assertUnchanged(t, svc, a)
	assertUnchanged(t, svc, b)

	again, err := e.Backfill(ctx, Request{UniverseID: "U", StartDate: day(2024, 7, 1), EndDate: day(2024, 8, 31), Frequency: "monthly"}, provider)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
}
