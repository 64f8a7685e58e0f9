package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "ekaya-chat:probe:"

// RedisProbeCache shares probe samples between engine instances.
type RedisProbeCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

var _ ProbeCache = (*RedisProbeCache)(nil)

// NewRedisProbeCache wraps a Redis client.
func NewRedisProbeCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisProbeCache {
	return &RedisProbeCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("cache.redis"),
	}
}

func (r *RedisProbeCache) Get(ctx context.Context, key string) ([]string, bool) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Probe cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		r.logger.Warn("Probe cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return values, true
}

func (r *RedisProbeCache) Set(ctx context.Context, key string, values []string) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("Probe cache write failed", zap.String("key", key), zap.Error(err))
	}
}
