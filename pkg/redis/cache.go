package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// Version returns the current generation counter for a namespace (0 if unset)
// 캐시 키에 버전을 포함시켜 쓰기 시 일괄 무효화
func (c *Cache) Version(ctx context.Context, namespace string) (int64, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	v, err := c.client.Redis().Get(ctx, c.versionKey(namespace)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache version failed: %w", err)
	}
	return v, nil
}

// BumpVersion invalidates every key derived from the namespace's previous version
func (c *Cache) BumpVersion(ctx context.Context, namespace string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Incr(ctx, c.versionKey(namespace)).Err()
}

func (c *Cache) versionKey(namespace string) string {
	return fmt.Sprintf("%s:version:%s", c.prefix, namespace)
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute
	TTLMedium = 10 * time.Minute
	TTLLong   = 1 * time.Hour
)

// CompositionKey is the cache key of a point-in-time resolution
func CompositionKey(universeID string, version int64, date string) string {
	return fmt.Sprintf("composition:%s:v%d:%s", universeID, version, date)
}

// UniverseNamespace is the version namespace of a universe's snapshots
func UniverseNamespace(universeID string) string {
	return fmt.Sprintf("universe:%s", universeID)
}
