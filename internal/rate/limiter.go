package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the lockout tuning.
type Config struct {
	// MaxAttempts failed attempts are allowed per window; the next is refused.
	MaxAttempts int
	// Window is the fixed window length, started by the first failure.
	Window time.Duration
	// Prefix namespaces the counter keys.
	Prefix string
}

// Limiter counts failed attempts per subject in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter]. A zero MaxAttempts allows five attempts; a zero
// Window is fifteen minutes.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check returns ErrRateLimited once subject has used up its attempts.
func (l *Limiter) Check(ctx context.Context, subject string) error {
	count, err := l.redis.Get(ctx, l.key(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Fail records a failed attempt. It returns ErrRateLimited when this attempt
// used up the budget.
func (l *Limiter) Fail(ctx context.Context, subject string) error {
	count, err := l.incrementWithTTL(ctx, l.key(subject), l.config.Window)
	if err != nil {
		return err
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter after a successful attempt.
func (l *Limiter) Reset(ctx context.Context, subject string) error {
	if err := l.redis.Del(ctx, l.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure count for subject.
func (l *Limiter) Attempts(ctx context.Context, subject string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(subject string) string {
	return l.config.Prefix + ":" + subject
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
