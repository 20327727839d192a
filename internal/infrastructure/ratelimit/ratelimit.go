// Package ratelimit implements a Redis-backed fixed-window request
// limiter shared by every gateway replica.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Limiter counts requests per user in fixed windows. The counter key is
// INCRed on every request and expires with the window, so the limit holds
// across server instances without any local state.
type Limiter struct {
	client redis.UniversalClient
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewLimiter(redisURL string, max int, window time.Duration) (*Limiter, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL must be provided")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Limiter{client: client, max: int64(max), window: window, now: time.Now}, nil
}

// Result reports the outcome of one admission check.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Allow admits or rejects one request for userID. A Redis failure is
// surfaced as ErrorTypeUnavailable; the limiter never fails open.
func (l *Limiter) Allow(ctx context.Context, userID string) (*Result, error) {
	nowFn := l.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn().UTC()
	windowStart := now.Truncate(l.window)
	key := fmt.Sprintf("ratelimit:chat:%s:%d", userID, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, platformerrors.NewErrorWithContext(
			ctx,
			platformerrors.LayerInfrastructure,
			platformerrors.ErrorTypeUnavailable,
			"rate limiter unavailable",
			err,
			"",
			map[string]any{"retry_after_seconds": int(l.window.Seconds())},
		)
	}

	count := incr.Val()
	if count > l.max {
		retryAfter := windowStart.Add(l.window).Sub(now)
		return &Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}
	return &Result{Allowed: true, Remaining: l.max - count}, nil
}

// Close releases the Redis connection.
func (l *Limiter) Close() error {
	return l.client.Close()
}
