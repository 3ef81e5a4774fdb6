package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares cached values between API replicas
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (rc *RedisCache) key(k string) string {
	return rc.prefix + k
}

func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return rc.client.Set(ctx, rc.key(key), value, ttl).Err()
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	err := rc.client.Del(ctx, rc.key(key)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
