package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIssueThrottled is returned when too many channel codes were requested
// within the window.
var ErrIssueThrottled = errors.New("channel code issuance throttled")

// IssueConfig bounds how many channel codes a user may request per method
// in one window.
type IssueConfig struct {
	MaxPerWindow int
	Window       time.Duration
}

// IssueLimiter is a fixed-window counter on channel code issuance.
type IssueLimiter struct {
	redis  redis.UniversalClient
	config IssueConfig
}

func NewIssueLimiter(redisClient redis.UniversalClient, cfg IssueConfig) *IssueLimiter {
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &IssueLimiter{redis: redisClient, config: cfg}
}

func issueKey(userID, method string) string {
	return "amci:" + method + ":" + userID
}

// Allow counts one issuance and reports ErrIssueThrottled past the budget.
func (l *IssueLimiter) Allow(ctx context.Context, userID, method string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	key := issueKey(userID, method)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > int64(l.config.MaxPerWindow) {
		return ErrIssueThrottled
	}
	return nil
}
