package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"quiz-intake-service/internal/domain"
)

func TestStatsCacheSharedThroughRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{}
	cache := NewStatsCache(client, loader, time.Minute)
	ctx := context.Background()

	if _, err := cache.GetStats(ctx, domain.ListFilter{}); err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("intake:stats:0:") {
		t.Fatalf("expected stats key in redis")
	}

	// A second cache instance (another worker) reads the same entry.
	other := NewStatsCache(client, loader, time.Minute)
	stats, err := other.GetStats(ctx, domain.ListFilter{})
	if err != nil {
		t.Fatalf("get stats from other worker: %v", err)
	}
	if loader.calls != 1 || stats[0].Counts["a"] != 1 {
		t.Fatalf("expected shared cache hit, loader calls=%d stats=%+v", loader.calls, stats)
	}

	if err := other.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	stats, _ = cache.GetStats(ctx, domain.ListFilter{})
	if loader.calls != 2 || stats[0].Counts["a"] != 2 {
		t.Fatalf("expected reload after invalidation, loader calls=%d", loader.calls)
	}
}

func TestStatsCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	loader := &countingLoader{}
	cache := NewStatsCache(client, loader, time.Minute)
	if _, err := cache.GetStats(context.Background(), domain.ListFilter{}); err != nil {
		t.Fatalf("expected direct computation, got %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader call, got %d", loader.calls)
	}
}

type countingLoader struct {
	calls int
}

func (l *countingLoader) LoadStats(_ context.Context, _ domain.ListFilter) ([]domain.QuestionStats, error) {
	l.calls++
	return []domain.QuestionStats{{ID: "q1", Counts: map[string]int{"a": l.calls}}}, nil
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
