// Package ratelimit implements a sliding-window limiter shared by every
// instance through Redis. The limiter fails open: when Redis cannot answer,
// the request is allowed and the failure is logged and counted.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/metrics"
)

// slidingWindow trims entries older than the window, then admits the request
// if fewer than limit remain. Returns {allowed, remaining, reset_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  count = count + 1
  allowed = 1
end
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, limit - count, reset}
`)

// Result describes one limiter decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter admits at most limit requests per identifier per window.
type Limiter struct {
	rdb     redis.Scripter
	prefix  string
	limit   int
	window  time.Duration
	log     *zap.Logger
	metrics metrics.Recorder
	nowFunc func() time.Time
}

func New(rdb redis.Scripter, prefix string, limit int, window time.Duration, log *zap.Logger, rec metrics.Recorder) *Limiter {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Limiter{
		rdb:     rdb,
		prefix:  prefix,
		limit:   limit,
		window:  window,
		log:     log,
		metrics: rec,
		nowFunc: time.Now,
	}
}

// Allow records a hit for id and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, id string) Result {
	now := l.nowFunc()
	res, err := l.eval(ctx, id, now)
	if err != nil {
		l.log.Error("rate limiter unavailable, failing open",
			zap.String("limiter", l.prefix), zap.String("id", id), zap.Error(err))
		l.metrics.Record(ctx, metrics.RateLimiterFailOpen, 1, map[string]string{"Limiter": l.prefix})
		return Result{Allowed: true, Limit: l.limit, Remaining: l.limit, Reset: now.Add(l.window)}
	}
	return res
}

func (l *Limiter) eval(ctx context.Context, id string, now time.Time) (Result, error) {
	if l.rdb == nil {
		return Result{}, fmt.Errorf("redis not configured")
	}
	key := fmt.Sprintf("ratelimit:%s:%s", l.prefix, id)
	vals, err := slidingWindow.Run(ctx, l.rdb, []string{key},
		now.UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("eval sliding window: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("unexpected limiter reply %v", vals)
	}
	remaining := int(vals[1])
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   vals[0] == 1,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     time.UnixMilli(vals[2]),
	}, nil
}
