package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rule is one sliding-window budget: at most Limit attempts per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Limiter tracks attempt facts per (identity, action) in Redis sorted
// sets and enforces sliding-window budgets over them.
//
// Check and Record are deliberately separate: an attempt is recorded
// whether or not it was allowed, so hammering a limited identity keeps
// the window full instead of draining it.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient, prefix: "access:rl"}
}

func (l *Limiter) key(identity, action string) string {
	return l.prefix + ":" + action + ":" + identity
}

// Check returns ErrRateLimited when the identity already has at least
// rule.Limit attempts inside the window.
func (l *Limiter) Check(ctx context.Context, identity, action string, rule Rule) error {
	if l == nil || l.redis == nil || rule.Limit <= 0 {
		return nil
	}

	windowStart := time.Now().Add(-rule.Window).UnixNano()
	count, err := l.redis.ZCount(ctx, l.key(identity, action),
		strconv.FormatInt(windowStart, 10), "+inf").Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Record appends one attempt fact, prunes entries older than the
// window, and refreshes the key TTL.
func (l *Limiter) Record(ctx context.Context, identity, action string, rule Rule) error {
	if l == nil || l.redis == nil {
		return nil
	}

	now := time.Now()
	key := l.key(identity, action)

	pipe := l.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf",
		strconv.FormatInt(now.Add(-rule.Window).UnixNano(), 10))
	pipe.Expire(ctx, key, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Reset clears the attempt window for one (identity, action).
func (l *Limiter) Reset(ctx context.Context, identity, action string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(identity, action)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the number of attempts currently inside the window.
func (l *Limiter) Attempts(ctx context.Context, identity, action string, window time.Duration) (int64, error) {
	if l == nil || l.redis == nil {
		return 0, nil
	}
	windowStart := time.Now().Add(-window).UnixNano()
	count, err := l.redis.ZCount(ctx, l.key(identity, action),
		strconv.FormatInt(windowStart, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}
