package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type countingRecorder struct {
	mu    sync.Mutex
	names []string
}

func (c *countingRecorder) Record(ctx context.Context, name string, value float64, dims map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

func newLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis, *countingRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rec := &countingRecorder{}
	return New(rdb, "orders", limit, window, zap.NewNop(), rec), mr, rec
}

func TestLimiter_AllowsUpToLimitThenBlocks(t *testing.T) {
	l, _, _ := newLimiter(t, 5, time.Hour)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := l.Allow(ctx, "1.2.3.4")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 4-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, 4-i, res.Remaining)
		}
		now = now.Add(time.Minute)
	}
	res := l.Allow(ctx, "1.2.3.4")
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("sixth request should be blocked, got %+v", res)
	}
	wantReset := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)
	if !res.Reset.Equal(wantReset) {
		t.Fatalf("expected reset at oldest hit + window %v, got %v", wantReset, res.Reset)
	}

	if !l.Allow(ctx, "5.6.7.8").Allowed {
		t.Fatalf("limits are per identifier")
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l, _, _ := newLimiter(t, 2, time.Minute)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "ip")
	l.Allow(ctx, "ip")
	if l.Allow(ctx, "ip").Allowed {
		t.Fatalf("third hit inside window must be blocked")
	}
	now = now.Add(61 * time.Second)
	if !l.Allow(ctx, "ip").Allowed {
		t.Fatalf("hits older than the window must expire")
	}
}

func TestLimiter_FailsOpen(t *testing.T) {
	l, mr, rec := newLimiter(t, 1, time.Minute)
	mr.Close()

	res := l.Allow(context.Background(), "ip")
	if !res.Allowed {
		t.Fatalf("limiter must fail open when redis is down")
	}
	if len(rec.names) != 1 || rec.names[0] != "RateLimiterFailOpen" {
		t.Fatalf("expected fail-open metric, got %v", rec.names)
	}
}
