package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromRedis(rdb), mr
}

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Ping(context.Background()))
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")
	cfg := RateLimitConfig{Key: "api:1.2.3.4", Limit: 5, Window: time.Second}

	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 5, remaining)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, "test")
	cfg := RateLimitConfig{Key: "api:1.2.3.4", Limit: 3, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, err := limiter.Allow(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)

	// 다른 키는 독립적으로 계산
	other := cfg
	other.Key = "api:5.6.7.8"
	allowed, _, err = limiter.Allow(ctx, other)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	v, err := cache.Version(ctx, "universe:u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	assert.NoError(t, cache.BumpVersion(ctx, "universe:u1"))
}

func TestCache_SetGet(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client, "test")
	ctx := context.Background()

	type payload struct {
		Symbols []string `json:"symbols"`
	}

	require.NoError(t, cache.Set(ctx, "k", payload{Symbols: []string{"AAPL"}}, TTLShort))
	assert.True(t, mr.Exists("test:cache:k"))

	var got payload
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"AAPL"}, got.Symbols)

	mr.FastForward(2 * TTLShort)
	found, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Version(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client, "test")
	ctx := context.Background()
	ns := UniverseNamespace("u1")

	v, err := cache.Version(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, cache.BumpVersion(ctx, ns))
	require.NoError(t, cache.BumpVersion(ctx, ns))

	v, err = cache.Version(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	other, err := cache.Version(ctx, UniverseNamespace("u2"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), other)
}

func TestLocker_Redis(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "test")
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "backfill:u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:backfill:u1"))

	_, err = locker.Acquire(ctx, "backfill:u1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// 다른 리소스는 영향 없음
	releaseOther, err := locker.Acquire(ctx, "backfill:u2", time.Minute)
	require.NoError(t, err)
	releaseOther()

	release()
	assert.False(t, mr.Exists("test:lock:backfill:u1"))

	release2, err := locker.Acquire(ctx, "backfill:u1", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestLocker_ExpiredLockNotReleasedByOldHolder(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "test")
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "u1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release2, err := locker.Acquire(ctx, "u1", time.Minute)
	require.NoError(t, err)

	// 만료된 이전 소유자의 해제는 새 소유자의 잠금을 지우지 않음
	release()
	assert.True(t, mr.Exists("test:lock:u1"))

	release2()
	assert.False(t, mr.Exists("test:lock:u1"))
}

func TestLocker_InProcess(t *testing.T) {
	locker := NewLocker(Disabled(), "test")
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "u1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "u1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	release()
	release2, err := locker.Acquire(ctx, "u1", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"CompositionKey", CompositionKey("u1", 3, "2024-01-15"), "composition:u1:v3:2024-01-15"},
		{"UniverseNamespace", UniverseNamespace("u1"), "universe:u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}
