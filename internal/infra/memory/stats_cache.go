package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"quiz-intake-service/internal/app"
	"quiz-intake-service/internal/domain"
)

// StatsCache caches computed statistics with TTL to avoid rescanning every submission.
type StatsCache struct {
	loader app.StatsLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	gen   uint64
	cache map[string]cachedStats
}

type cachedStats struct {
	stats     []domain.QuestionStats
	expiresAt time.Time
}

func NewStatsCache(loader app.StatsLoader, ttl time.Duration) *StatsCache {
	return &StatsCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedStats),
	}
}

func (c *StatsCache) GetStats(ctx context.Context, filter domain.ListFilter) ([]domain.QuestionStats, error) {
	key := filter.Campus
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.stats, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("stats:"+key, func() (interface{}, error) {
		c.mu.RLock()
		gen := c.gen
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(c.clock()) {
			c.mu.RUnlock()
			return entry.stats, nil
		}
		c.mu.RUnlock()

		stats, err := c.loader.LoadStats(ctx, filter)
		if err != nil {
			return nil, err
		}

		expiresAt := c.clock().Add(c.ttlWithJitter())
		c.mu.Lock()
		// An Invalidate during the load makes this result stale; serve it but don't keep it.
		if gen == c.gen {
			c.cache[key] = cachedStats{stats: stats, expiresAt: expiresAt}
		}
		c.mu.Unlock()
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuestionStats), nil
}

func (c *StatsCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache = make(map[string]cachedStats)
	return nil
}

func (c *StatsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
