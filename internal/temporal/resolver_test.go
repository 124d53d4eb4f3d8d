package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
	"github.com/wonny/aegis/v13/timeline/pkg/redis"
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
		out = append(out, contracts.Asset{Symbol: s, Name: s, Weight: 1 / float64(len(symbols))})
	}
	return out
}

func seed(t *testing.T, store snapshot.Store, universeID string, entries map[string][]string) {
	t.Helper()
	for date, symbols := range entries {
		_, _, err := store.Create(context.Background(), contracts.SnapshotInput{
			UniverseID:   universeID,
			SnapshotDate: day(date),
			Assets:       comp(symbols...),
		}, false)
		require.NoError(t, err)
	}
}

func newCache(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewCache(redis.NewFromRedis(rdb), "test"), mr
}

func TestResolver_SurvivorshipBias(t *testing.T) {
	store := snapshot.NewMemoryStore()
	seed(t, store, "u1", map[string][]string{
		"2024-01-01": {"AAPL", "MSFT"},
		"2024-02-01": {"GOOGL", "AMZN"},
	})
	r := NewResolver(store, nil, nil, 0, nil, nil)
	ctx := context.Background()

	jan, err := r.Resolve(ctx, "u1", day("2024-01-15"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, jan.Assets.Symbols(), "not the latest composition")
	assert.Equal(t, day("2024-01-01"), jan.SnapshotDate)
	assert.Equal(t, 14, jan.DaysSinceSnapshot)
	assert.Equal(t, contracts.ConfidenceMedium, jan.Confidence)

	feb, err := r.Resolve(ctx, "u1", day("2024-02-15"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"GOOGL", "AMZN"}, feb.Assets.Symbols())

	exact, err := r.Resolve(ctx, "u1", day("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, exact.DaysSinceSnapshot)
	assert.Equal(t, contracts.ConfidenceHigh, exact.Confidence)
}

func TestResolver_NotFoundBeforeFirstSnapshot(t *testing.T) {
	store := snapshot.NewMemoryStore()
	seed(t, store, "u1", map[string][]string{"2024-01-01": {"AAPL"}})
	r := NewResolver(store, nil, nil, 0, nil, nil)

	_, err := r.Resolve(context.Background(), "u1", day("2023-12-31"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrNotFound))

	var nf *contracts.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, nf.Hint, "historical snapshot")
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, contracts.ConfidenceHigh, ConfidenceFor(0))
	assert.Equal(t, contracts.ConfidenceHigh, ConfidenceFor(7))
	assert.Equal(t, contracts.ConfidenceMedium, ConfidenceFor(8))
	assert.Equal(t, contracts.ConfidenceMedium, ConfidenceFor(31))
	assert.Equal(t, contracts.ConfidenceLow, ConfidenceFor(32))
}

func TestResolver_CacheAndInvalidate(t *testing.T) {
	store := snapshot.NewMemoryStore()
	seed(t, store, "u1", map[string][]string{"2024-01-01": {"AAPL", "MSFT"}})
	cache, mr := newCache(t)
	r := NewResolver(store, nil, cache, time.Minute, nil, nil)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "u1", day("2024-01-20"))
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:cache:"+redis.CompositionKey("u1", 0, "2024-01-20")))

	// 캐시된 값은 저장소가 바뀌어도 버전이 같으면 그대로 반환
	seed(t, store, "u1", map[string][]string{"2024-01-10": {"NVDA"}})
	cached, err := r.Resolve(ctx, "u1", day("2024-01-20"))
	require.NoError(t, err)
	assert.Equal(t, first.SnapshotID, cached.SnapshotID)

	require.NoError(t, r.Invalidate(ctx, "u1"))
	fresh, err := r.Resolve(ctx, "u1", day("2024-01-20"))
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA"}, fresh.Assets.Symbols())
	assert.Equal(t, day("2024-01-10"), fresh.SnapshotDate)
}

func TestResolver_WiredAsSnapshotInvalidator(t *testing.T) {
	store := snapshot.NewMemoryStore()
	cache, _ := newCache(t)
	r := NewResolver(store, nil, cache, time.Minute, nil, nil)
	svc := snapshot.NewService(store, nil, snapshot.WithInvalidator(r))
	ctx := context.Background()

	jan := day("2024-01-01")
	_, err := svc.CreateSnapshot(ctx, snapshot.CreateRequest{UniverseID: "u1", SnapshotDate: &jan, Assets: comp("AAPL")})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, "u1", day("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, got.Assets.Symbols())

	_, err = svc.CreateSnapshot(ctx, snapshot.CreateRequest{UniverseID: "u1", SnapshotDate: &jan, Assets: comp("MSFT"), Force: true})
	require.NoError(t, err)

	got, err = r.Resolve(ctx, "u1", day("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, got.Assets.Symbols(), "write bumps the cache version")
}

func TestResolver_Compare(t *testing.T) {
	store := snapshot.NewMemoryStore()
	seed(t, store, "u1", map[string][]string{
		"2024-06-30": {"AAPL", "MSFT"},
		"2024-09-30": {"GOOGL", "AMZN"},
	})
	r := NewResolver(store, nil, nil, 0, nil, nil)
	ctx := context.Background()

	analysis, err := r.Compare(ctx, "u1", day("2024-07-15"), day("2024-10-01"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, analysis.TurnoverRate)
	assert.Equal(t, []string{"AMZN", "GOOGL"}, analysis.AssetsAdded)
	assert.Equal(t, []string{"AAPL", "MSFT"}, analysis.AssetsRemoved)
	assert.Equal(t, 0.0, analysis.CompositionStability)

	_, err = r.Compare(ctx, "u1", day("2024-10-01"), day("2024-07-15"))
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	_, err = r.Compare(ctx, "u1", day("2024-01-01"), day("2024-07-15"))
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}
