package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ordercore/internal/config"
	repo "ordercore/internal/repository"
	"ordercore/internal/usecase"

	"github.com/redis/go-redis/v9"
)

const (
	statsKeyPrefix = "ordercore:stats:"
	statsGenKey    = statsKeyPrefix + "gen"
)

// 集計結果のキャッシュ。世代番号をキーに含め、Invalidate で世代を進めて古いキーを捨てる。
type RedisStatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatsCache(rdb *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{rdb: rdb, ttl: ttl}
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (c *RedisStatsCache) key(ctx context.Context, f repo.OrderStatsFilter) (string, error) {
	gen, err := c.rdb.Get(ctx, statsGenKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s%d:%s:%s:%s", statsKeyPrefix, gen, f.Bucket, unixOrDash(f.From), unixOrDash(f.To)), nil
}

func unixOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%d", t.Unix())
}

func (c *RedisStatsCache) Get(ctx context.Context, f repo.OrderStatsFilter) (repo.OrderStats, bool, error) {
	key, err := c.key(ctx, f)
	if err != nil {
		return repo.OrderStats{}, false, err
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return repo.OrderStats{}, false, nil
	}
	if err != nil {
		return repo.OrderStats{}, false, err
	}

	var stats repo.OrderStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return repo.OrderStats{}, false, err
	}
	return stats, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, f repo.OrderStatsFilter, stats repo.OrderStats) error {
	key, err := c.key(ctx, f)
	if err != nil {
		return err
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisStatsCache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, statsGenKey).Err()
}

var _ usecase.StatsCache = (*RedisStatsCache)(nil)
