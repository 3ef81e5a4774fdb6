package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache stores opaque byte values with a TTL
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheStats provides statistics about cache usage
type CacheStats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
	Size      int64
	MaxSize   int64
}

// StatsProvider is implemented by caches that track usage
type StatsProvider interface {
	Stats() CacheStats
}

// GetJSON decodes a cached JSON value. A value that no longer decodes counts as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		_ = c.Delete(ctx, key)
		return out, false
	}
	return out, true
}

// SetJSON encodes and stores a value
func SetJSON[T any](ctx context.Context, c Cache, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}
