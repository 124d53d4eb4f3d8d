package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func comp(symbols ...string) contracts.Composition {
	out := make(contracts.Composition, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, contracts.Asset{Symbol: s, Name: s + " Inc", Weight: 1 / float64(len(symbols))})
	}
	return out
}

func input(universeID, date string, symbols ...string) contracts.SnapshotInput {
	return contracts.SnapshotInput{UniverseID: universeID, SnapshotDate: day(date), Assets: comp(symbols...)}
}

// storeContract runs the Store behavior shared by every implementation
func storeContract(t *testing.T, newStore func(t *testing.T) (Store, string)) {
	ctx := context.Background()

	t.Run("first snapshot", func(t *testing.T) {
		s, u := newStore(t)
		rec, replaced, err := s.Create(ctx, input(u, "2024-01-01", "MSFT", "AAPL"), false)
		require.NoError(t, err)
		assert.False(t, replaced)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, 0.0, rec.TurnoverRate)
		assert.Equal(t, []string{"AAPL", "MSFT"}, rec.AssetsAdded)
		assert.Equal(t, []string{}, rec.AssetsRemoved)
	})

	t.Run("chronological diff", func(t *testing.T) {
		s, u := newStore(t)
		_, _, err := s.Create(ctx, input(u, "2024-01-01", "A", "B"), false)
		require.NoError(t, err)

		rec, _, err := s.Create(ctx, input(u, "2024-02-01", "A", "C"), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"C"}, rec.AssetsAdded)
		assert.Equal(t, []string{"B"}, rec.AssetsRemoved)
		assert.InDelta(t, 0.5, rec.TurnoverRate, 1e-12)
	})

	t.Run("predecessor is max date strictly before", func(t *testing.T) {
		s, u := newStore(t)
		_, _, err := s.Create(ctx, input(u, "2024-01-01", "A", "B"), false)
		require.NoError(t, err)
		_, _, err = s.Create(ctx, input(u, "2024-03-01", "X", "Y"), false)
		require.NoError(t, err)

		// 중간 날짜 삽입은 1월 스냅샷과 비교
		mid, _, err := s.Create(ctx, input(u, "2024-02-01", "A", "C"), false)
		require.NoError(t, err)
		assert.Equal(t, []string{"C"}, mid.AssetsAdded)
		assert.InDelta(t, 0.5, mid.TurnoverRate, 1e-12)
	})

	t.Run("duplicate and force", func(t *testing.T) {
		s, u := newStore(t)
		first, _, err := s.Create(ctx, input(u, "2024-01-01", "A", "B"), false)
		require.NoError(t, err)

		_, _, err = s.Create(ctx, input(u, "2024-01-01", "C"), false)
		assert.True(t, errors.Is(err, contracts.ErrDuplicateSnapshot))

		got, err := s.GetByDate(ctx, u, day("2024-01-01"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID, "failed duplicate leaves the original intact")

		second, replaced, err := s.Create(ctx, input(u, "2024-01-01", "C"), true)
		require.NoError(t, err)
		assert.True(t, replaced)

		got, err = s.GetByDate(ctx, u, day("2024-01-01"))
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
		assert.Equal(t, []string{"C"}, got.Assets.Symbols())

		all, err := s.List(ctx, u)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("reads", func(t *testing.T) {
		s, u := newStore(t)
		for _, in := range []contracts.SnapshotInput{
			input(u, "2024-01-01", "AAPL", "MSFT"),
			input(u, "2024-02-01", "GOOGL", "AMZN"),
			input(u, "2024-03-01", "GOOGL", "NVDA"),
		} {
			_, _, err := s.Create(ctx, in, false)
			require.NoError(t, err)
		}

		latest, err := s.GetLatest(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, day("2024-03-01"), latest.SnapshotDate)

		rng, err := s.GetRange(ctx, u, day("2024-01-15"), day("2024-03-01"))
		require.NoError(t, err)
		require.Len(t, rng, 2)
		assert.Equal(t, day("2024-02-01"), rng[0].SnapshotDate)
		assert.Equal(t, day("2024-03-01"), rng[1].SnapshotDate)

		near, err := s.GetNearestAtOrBefore(ctx, u, day("2024-01-15"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, near.Assets.Symbols())

		near, err = s.GetNearestAtOrBefore(ctx, u, day("2024-02-01"))
		require.NoError(t, err)
		assert.Equal(t, day("2024-02-01"), near.SnapshotDate, "exact date matches")

		_, err = s.GetNearestAtOrBefore(ctx, u, day("2023-12-31"))
		assert.True(t, errors.Is(err, contracts.ErrNotFound))

		ok, err := s.Exists(ctx, u, day("2024-02-01"))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Exists(ctx, u, day("2024-02-02"))
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := s.DeleteAllForUniverse(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		_, err = s.GetLatest(ctx, u)
		assert.True(t, errors.Is(err, contracts.ErrNotFound))
	})

	t.Run("update derived", func(t *testing.T) {
		s, u := newStore(t)
		rec, _, err := s.Create(ctx, input(u, "2024-01-01", "A"), false)
		require.NoError(t, err)

		rec.TurnoverRate = 0.25
		rec.AssetsAdded = []string{"Z"}
		rec.AssetsRemoved = []string{"Y"}
		rec.Assets = comp("IGNORED")
		require.NoError(t, s.UpdateDerived(ctx, rec))

		got, err := s.GetByDate(ctx, u, day("2024-01-01"))
		require.NoError(t, err)
		assert.Equal(t, 0.25, got.TurnoverRate)
		assert.Equal(t, []string{"Z"}, got.AssetsAdded)
		assert.Equal(t, []string{"A"}, got.Assets.Symbols(), "assets are immutable")
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) (Store, string) {
		return NewMemoryStore(), "u1"
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec, _, err := s.Create(ctx, input("u1", "2024-01-01", "A"), false)
	require.NoError(t, err)

	rec.Assets[0].Symbol = "MUTATED"
	got, err := s.GetLatest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Assets[0].Symbol)
}

func TestDerive_FirstSnapshotDedupes(t *testing.T) {
	rec := &contracts.SnapshotRecord{Assets: contracts.Composition{
		{Symbol: "B", Name: "b"}, {Symbol: "A", Name: "a"},
	}}
	Derive(nil, rec)
	assert.Equal(t, []string{"A", "B"}, rec.AssetsAdded)
	assert.Equal(t, 0.0, rec.TurnoverRate)
}
