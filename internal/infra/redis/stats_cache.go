package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"quiz-intake-service/internal/app"
	"quiz-intake-service/internal/domain"
)

// StatsCache shares computed statistics between all workers through Redis.
// Entries are stored as: SET intake:stats:{gen}:{campus} <json> EX ttl
// Invalidate bumps INCR intake:stats:gen so every worker misses at once; stale
// generations age out through their TTL.
type StatsCache struct {
	client *redis.Client
	loader app.StatsLoader
	ttl    time.Duration
	sf     singleflight.Group
}

const statsGenKey = "intake:stats:gen"

func NewStatsCache(client *redis.Client, loader app.StatsLoader, ttl time.Duration) *StatsCache {
	return &StatsCache{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (c *StatsCache) GetStats(ctx context.Context, filter domain.ListFilter) ([]domain.QuestionStats, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		// Redis is only a cache; compute directly when it is down.
		return c.loader.LoadStats(ctx, filter)
	}
	key := c.statsKey(gen, filter.Campus)

	if stats, ok := c.cached(ctx, key); ok {
		return stats, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if stats, ok := c.cached(ctx, key); ok {
			return stats, nil
		}

		stats, err := c.loader.LoadStats(ctx, filter)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(stats); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuestionStats), nil
}

func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, statsGenKey).Err()
}

func (c *StatsCache) generation(ctx context.Context) (int64, error) {
	raw, err := c.client.Get(ctx, statsGenKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (c *StatsCache) cached(ctx context.Context, key string) ([]domain.QuestionStats, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var stats []domain.QuestionStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false
	}
	return stats, true
}

func (c *StatsCache) statsKey(gen int64, campus string) string {
	return "intake:stats:" + strconv.FormatInt(gen, 10) + ":" + campus
}

func (c *StatsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
