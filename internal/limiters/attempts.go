package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultAttemptMax      = 5
	defaultAttemptCooldown = 5 * time.Minute
)

var (
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	ErrUnavailable      = errors.New("limiter backend unavailable")
)

// AttemptConfig holds thresholds for the failed-verification limiter.
type AttemptConfig struct {
	MaxAttempts     int
	Cooldown        time.Duration
	EnableIPLimiter bool
	MaxIPAttempts   int
}

// AttemptLimiter counts failed verifications per user and method, and
// optionally per client IP, in fixed windows that start at the first failure.
type AttemptLimiter struct {
	redis  redis.UniversalClient
	config AttemptConfig
}

// NewAttemptLimiter creates an attempt limiter. Zero-value fields in cfg
// fall back to defaults (5 attempts / 5m).
func NewAttemptLimiter(redisClient redis.UniversalClient, cfg AttemptConfig) *AttemptLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttemptMax
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultAttemptCooldown
	}
	if cfg.MaxIPAttempts <= 0 {
		cfg.MaxIPAttempts = cfg.MaxAttempts * 4
	}
	return &AttemptLimiter{redis: redisClient, config: cfg}
}

func attemptUserKey(userID, method string) string {
	return "amf:" + method + ":" + userID
}

func attemptIPKey(ip string) string {
	return "amfip:" + ip
}

// Check returns ErrAttemptsExceeded when the user/method or IP budget is
// spent. It never increments.
func (l *AttemptLimiter) Check(ctx context.Context, userID, method, ip string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.check(ctx, attemptUserKey(userID, method), l.config.MaxAttempts); err != nil {
		return err
	}
	if l.config.EnableIPLimiter && ip != "" {
		return l.check(ctx, attemptIPKey(ip), l.config.MaxIPAttempts)
	}
	return nil
}

// RecordFailure increments the counters and reports ErrAttemptsExceeded
// once the budget is reached.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, userID, method, ip string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.increment(ctx, attemptUserKey(userID, method))
	if err != nil {
		return err
	}
	exceeded := count >= int64(l.config.MaxAttempts)

	if l.config.EnableIPLimiter && ip != "" {
		ipCount, err := l.increment(ctx, attemptIPKey(ip))
		if err != nil {
			return err
		}
		exceeded = exceeded || ipCount >= int64(l.config.MaxIPAttempts)
	}
	if exceeded {
		return ErrAttemptsExceeded
	}
	return nil
}

// Reset clears the user/method counter after a successful verification.
// The IP counter is left to expire on its own.
func (l *AttemptLimiter) Reset(ctx context.Context, userID, method string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, attemptUserKey(userID, method)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *AttemptLimiter) check(ctx context.Context, key string, max int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(max) {
		return ErrAttemptsExceeded
	}
	return nil
}

func (l *AttemptLimiter) increment(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}
