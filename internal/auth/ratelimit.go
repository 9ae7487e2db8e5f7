package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult holds the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Limiter checks and records fixed-window rate limits keyed by an
// arbitrary string (a caller IP, a route name, anything the caller wants
// to bucket by).
type Limiter interface {
	Check(ctx context.Context, key string) (*RateLimitResult, error)
	Record(ctx context.Context, key string) error
}

// RedisLimiter implements Limiter using Redis INCR + EXPIRE, shared across
// every replica of the process.
type RedisLimiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
	prefix     string
}

// NewRedisLimiter creates a Redis-backed limiter. maxAttempt is the max
// number of Record calls allowed per key within window. prefix namespaces
// the Redis keys so distinct limiters (login attempts, bundle requests)
// never collide.
func NewRedisLimiter(rdb *redis.Client, maxAttempt int, window time.Duration, prefix string) *RedisLimiter {
	return &RedisLimiter{redis: rdb, maxAttempt: maxAttempt, window: window, prefix: prefix}
}

func (rl *RedisLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Check returns whether key is currently allowed.
func (rl *RedisLimiter) Check(ctx context.Context, key string) (*RateLimitResult, error) {
	rk := rl.redisKey(key)

	count, err := rl.redis.Get(ctx, rk).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if count >= rl.maxAttempt {
		ttl, err := rl.redis.TTL(ctx, rk).Result()
		if err != nil {
			return nil, fmt.Errorf("getting TTL: %w", err)
		}
		return &RateLimitResult{Allowed: false, Remaining: 0, RetryAt: time.Now().Add(ttl)}, nil
	}

	return &RateLimitResult{Allowed: true, Remaining: rl.maxAttempt - count}, nil
}

// Record records one occurrence for key.
func (rl *RedisLimiter) Record(ctx context.Context, key string) error {
	rk := rl.redisKey(key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, rk)
	pipe.Expire(ctx, rk, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording rate limit: %w", err)
	}

	if incr.Val() == 1 {
		rl.redis.Expire(ctx, rk, rl.window)
	}
	return nil
}

// LocalLimiter is an in-process fixed-window limiter used when Redis is
// not configured. It does not coordinate across replicas, which is
// acceptable for the diagnostic bundle's single-process rate limit.
type LocalLimiter struct {
	mu         sync.Mutex
	maxAttempt int
	window     time.Duration
	windows    map[string]*localWindow
}

type localWindow struct {
	count   int
	resetAt time.Time
}

// NewLocalLimiter creates an in-memory limiter with the same semantics as
// RedisLimiter.
func NewLocalLimiter(maxAttempt int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{maxAttempt: maxAttempt, window: window, windows: make(map[string]*localWindow)}
}

func (rl *LocalLimiter) Check(ctx context.Context, key string) (*RateLimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	now := time.Now()
	if !ok || now.After(w.resetAt) {
		return &RateLimitResult{Allowed: true, Remaining: rl.maxAttempt}, nil
	}
	if w.count >= rl.maxAttempt {
		return &RateLimitResult{Allowed: false, Remaining: 0, RetryAt: w.resetAt}, nil
	}
	return &RateLimitResult{Allowed: true, Remaining: rl.maxAttempt - w.count}, nil
}

func (rl *LocalLimiter) Record(ctx context.Context, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &localWindow{count: 0, resetAt: now.Add(rl.window)}
		rl.windows[key] = w
	}
	w.count++
	return nil
}
