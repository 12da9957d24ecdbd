package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geolumen/nightlights/internal/domain"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache shares the timeseries cache across API replicas. Redis failures
// degrade to cache misses; a broken cache never breaks a query.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

func NewRedisCache(ctx context.Context, cfg RedisConfig, logger *log.Logger) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisCache{client: client, ttl: cfg.TTL, logger: logger}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, areaID int64, from, to *time.Time) ([]domain.TimeseriesRecord, bool) {
	raw, err := c.client.Get(ctx, rangeKey(areaID, from, to)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logf("cache get failed: %v", err)
		}
		return nil, false
	}

	var records []domain.TimeseriesRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		c.logf("cache entry corrupt, dropping: %v", err)
		c.client.Del(ctx, rangeKey(areaID, from, to))
		return nil, false
	}
	return records, true
}

func (c *RedisCache) Set(ctx context.Context, areaID int64, from, to *time.Time, records []domain.TimeseriesRecord) {
	encoded, err := json.Marshal(records)
	if err != nil {
		c.logf("cache encode failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, rangeKey(areaID, from, to), encoded, c.ttl).Err(); err != nil {
		c.logf("cache set failed: %v", err)
	}
}

func (c *RedisCache) InvalidateArea(ctx context.Context, areaID int64) {
	iter := c.client.Scan(ctx, 0, areaPrefix(areaID)+"*", 0).Iterator()
	keys := make([]string, 0, 8)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logf("cache invalidation scan failed: %v", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logf("cache invalidation failed: %v", err)
	}
}

func (c *RedisCache) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
