package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
)

func TestResolver_Timeline(t *testing.T) {
	store := snapshot.NewMemoryStore()
	seed(t, store, "u1", map[string][]string{
		"2024-01-05": {"A", "B"},
		"2024-01-20": {"A", "C"},
		"2024-02-10": {"A", "C"},
		"2024-03-01": {"A", "D"},
	})
	r := NewResolver(store, nil, nil, 0, nil, nil)
	ctx := context.Background()

	all, err := r.Timeline(ctx, TimelineQuery{UniverseID: "u1"})
	require.NoError(t, err)
	require.Len(t, all.Snapshots, 4)
	assert.Equal(t, day("2024-01-05"), all.StartDate)
	assert.Equal(t, day("2024-03-01"), all.EndDate)
	assert.Len(t, all.Metrics.PeriodTurnovers, 3)
	assert.Equal(t, []string{"A"}, all.Metrics.CoreAssets)

	monthly, err := r.Timeline(ctx, TimelineQuery{UniverseID: "u1", Frequency: contracts.FrequencyMonthly})
	require.NoError(t, err)
	require.Len(t, monthly.Snapshots, 3)
	assert.Equal(t, day("2024-01-20"), monthly.Snapshots[0].SnapshotDate, "latest snapshot of January")

	ranged, err := r.Timeline(ctx, TimelineQuery{UniverseID: "u1", Start: day("2024-01-10"), End: day("2024-02-28")})
	require.NoError(t, err)
	require.Len(t, ranged.Snapshots, 2)
	assert.InDelta(t, 0.0, ranged.Metrics.AverageTurnover, 1e-12)
	assert.Equal(t, "2024-01-10..2024-02-28", ranged.Metrics.Period)
}

func TestResolver_TimelineInsufficientAndInvalid(t *testing.T) {
	store := snapshot.NewMemoryStore()
	seed(t, store, "u1", map[string][]string{"2024-01-05": {"A"}})
	r := NewResolver(store, nil, nil, 0, nil, nil)
	ctx := context.Background()

	tl, err := r.Timeline(ctx, TimelineQuery{UniverseID: "u1"})
	require.NoError(t, err)
	assert.True(t, tl.Metrics.InsufficientData)

	_, err = r.Timeline(ctx, TimelineQuery{UniverseID: "u1", Frequency: contracts.FrequencyCustom})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	_, err = r.Timeline(ctx, TimelineQuery{UniverseID: "u1", Start: day("2024-02-01"), End: day("2024-01-01")})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}
