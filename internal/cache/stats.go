// Package cache stores computed dashboard stats in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
)

const scanBatch = 100

// RedisStatsCache implements domain.StatsCache. Entries live under
// stats:{user}:v{generation}:{day}; Invalidate bumps stats:{user}:gen so entries
// computed before it are never read again, even when their Set lands afterwards.
type RedisStatsCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStatsCache constructs a cache whose entries expire after ttl.
func NewRedisStatsCache(client redis.UniversalClient, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStatsCache{client: client, ttl: ttl}
}

func generationKey(userID string) string {
	return fmt.Sprintf("stats:{%s}:gen", userID)
}

func statsKey(userID string, generation int64, day civil.Date) string {
	return fmt.Sprintf("stats:{%s}:v%d:%s", userID, generation, day.String())
}

func userPattern(userID string) string {
	return fmt.Sprintf("stats:{%s}:v*", userID)
}

// Generation returns the current cache generation of userID; 0 until the first Invalidate.
func (c *RedisStatsCache) Generation(ctx context.Context, userID string) (int64, error) {
	generation, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation failed: %w", err)
	}
	return generation, nil
}

// Get returns the stats cached for userID on day under generation.
func (c *RedisStatsCache) Get(ctx context.Context, userID string, day civil.Date, generation int64) (*domain.Stats, bool, error) {
	raw, err := c.client.Get(ctx, statsKey(userID, generation, day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get failed: %w", err)
	}

	var stats domain.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	if stats.CurrentStreaks == nil {
		stats.CurrentStreaks = []int{}
	}
	return &stats, true, nil
}

// Set stores stats for userID on day under generation.
func (c *RedisStatsCache) Set(ctx context.Context, userID string, day civil.Date, generation int64, stats domain.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return c.client.Set(ctx, statsKey(userID, generation, day), data, c.ttl).Err()
}

// Invalidate advances the generation of userID, then deletes the entries it orphaned.
func (c *RedisStatsCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Incr(ctx, generationKey(userID)).Err(); err != nil {
		return fmt.Errorf("advance generation failed: %w", err)
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, userPattern(userID), scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete keys failed: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (c *RedisStatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
