package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when an operation's attempt budget for the
// current window is exhausted.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps transport failures of the Redis limiter.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")

// Rule is the attempt budget for one operation.
type Rule struct {
	Max    int
	Window time.Duration
}

// Limiter is the capability the engine consumes: record an attempt for
// (op, key) and reject once the window budget is exceeded.
type Limiter interface {
	Allow(ctx context.Context, op, key string) error
}

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. Windows reset by
// wall-clock comparison on the next attempt, not by a background sweep.
// Counters are not coordinated across service instances; multi-instance
// deployments should use RedisLimiter instead.
type MemoryLimiter struct {
	mu      sync.Mutex
	rules   map[string]Rule
	buckets map[string]bucket
	now     func() time.Time
}

// NewMemoryLimiter creates a MemoryLimiter with per-operation rules.
// Operations without a rule are unlimited.
func NewMemoryLimiter(rules map[string]Rule) *MemoryLimiter {
	return &MemoryLimiter{
		rules:   rules,
		buckets: make(map[string]bucket),
		now:     time.Now,
	}
}

// Allow records one attempt and reports whether it is within budget.
func (l *MemoryLimiter) Allow(_ context.Context, op, key string) error {
	rule, ok := l.rules[op]
	if !ok || rule.Max <= 0 {
		return nil
	}

	id := op + ":" + key
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[id]
	if !ok || !now.Before(b.resetAt) {
		b = bucket{count: 0, resetAt: now.Add(rule.Window)}
	}
	b.count++
	l.buckets[id] = b

	if b.count > rule.Max {
		return ErrRateLimited
	}

	// Opportunistic cleanup keeps the map from accumulating dead windows
	// without a sweeper goroutine.
	if len(l.buckets) > 4*len(l.rules)*1024 {
		for k, v := range l.buckets {
			if !now.Before(v.resetAt) {
				delete(l.buckets, k)
			}
		}
	}

	return nil
}

// RedisLimiter is a fixed-window limiter on shared Redis counters, for
// deployments running more than one service instance.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	rules  map[string]Rule
}

// NewRedisLimiter creates a RedisLimiter namespaced under prefix.
func NewRedisLimiter(redisClient redis.UniversalClient, prefix string, rules map[string]Rule) *RedisLimiter {
	if prefix == "" {
		prefix = "akr"
	}
	return &RedisLimiter{redis: redisClient, prefix: prefix, rules: rules}
}

// Allow records one attempt and reports whether it is within budget.
func (l *RedisLimiter) Allow(ctx context.Context, op, key string) error {
	rule, ok := l.rules[op]
	if !ok || rule.Max <= 0 {
		return nil
	}

	counterKey := l.prefix + ":" + op + ":" + key
	count, err := l.redis.Incr(ctx, counterKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, counterKey, rule.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(rule.Max) {
		return ErrRateLimited
	}
	return nil
}
