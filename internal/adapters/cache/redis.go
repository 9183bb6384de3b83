// Package cache provides snapshot caches backing ports.SnapshotCache.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/infrastructure/metrics"
)

const keyPrefix = "sentinel:snapshot:"

// RedisCache stores the most recent snapshot per domain in Redis, shared
// across sentinel instances.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache connects a snapshot cache to the given Redis instance.
func NewRedisCache(addr, password string, db int, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, domainName string) (*domain.Snapshot, bool) {
	val, err := r.client.Get(ctx, keyPrefix+domainName).Bytes()
	if err != nil {
		metrics.SnapshotCacheOperations.WithLabelValues("miss").Inc()
		return nil, false
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		r.logger.Warn("discarding undecodable cached snapshot", "domain", domainName, "error", err)
		metrics.SnapshotCacheOperations.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.SnapshotCacheOperations.WithLabelValues("hit").Inc()
	return &snap, true
}

func (r *RedisCache) Set(ctx context.Context, snap domain.Snapshot, ttl time.Duration) {
	data, err := json.Marshal(snap)
	if err != nil {
		r.logger.Warn("failed to encode snapshot for cache", "domain", snap.Domain, "error", err)
		return
	}
	if err := r.client.Set(ctx, keyPrefix+snap.Domain, data, ttl).Err(); err != nil {
		r.logger.Warn("failed to cache snapshot", "domain", snap.Domain, "error", err)
	}
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
