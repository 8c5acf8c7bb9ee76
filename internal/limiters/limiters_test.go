package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestAttemptLimiterBlocksAfterBudget(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewAttemptLimiter(rdb, AttemptConfig{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "u1", "totp", ""); err != nil {
			t.Fatalf("failure %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Check(ctx, "u1", "totp", ""); err != nil {
		t.Fatalf("expected budget left, got %v", err)
	}
	if err := l.RecordFailure(ctx, "u1", "totp", ""); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded on third failure, got %v", err)
	}
	if err := l.Check(ctx, "u1", "totp", ""); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected Check to block, got %v", err)
	}
	if err := l.Check(ctx, "u1", "sms", ""); err != nil {
		t.Fatalf("expected other method unaffected, got %v", err)
	}
}

func TestAttemptLimiterCooldownExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewAttemptLimiter(rdb, AttemptConfig{MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "u1", "totp", "")
	if err := l.Check(ctx, "u1", "totp", ""); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected block, got %v", err)
	}
	mr.FastForward(61 * time.Second)
	if err := l.Check(ctx, "u1", "totp", ""); err != nil {
		t.Fatalf("expected cooldown to expire, got %v", err)
	}
}

func TestAttemptLimiterResetClearsUserCounter(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewAttemptLimiter(rdb, AttemptConfig{MaxAttempts: 2, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "u1", "totp", "")
	if err := l.Reset(ctx, "u1", "totp"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := l.RecordFailure(ctx, "u1", "totp", ""); err != nil {
		t.Fatalf("expected fresh budget after reset, got %v", err)
	}
}

func TestAttemptLimiterIPBudget(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewAttemptLimiter(rdb, AttemptConfig{MaxAttempts: 10, Cooldown: time.Minute, EnableIPLimiter: true, MaxIPAttempts: 2})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "u1", "totp", "203.0.113.9")
	if err := l.RecordFailure(ctx, "u2", "totp", "203.0.113.9"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected IP budget exceeded, got %v", err)
	}
	if err := l.Check(ctx, "u3", "totp", "203.0.113.9"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected IP block for new user, got %v", err)
	}
}

func TestNilLimitersAreNoOps(t *testing.T) {
	var a *AttemptLimiter
	var i *IssueLimiter
	ctx := context.Background()
	if a.Check(ctx, "u", "m", "") != nil || a.RecordFailure(ctx, "u", "m", "") != nil || a.Reset(ctx, "u", "m") != nil {
		t.Fatal("nil attempt limiter must be a no-op")
	}
	if i.Allow(ctx, "u", "m") != nil {
		t.Fatal("nil issue limiter must be a no-op")
	}
}

func TestIssueLimiterWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewIssueLimiter(rdb, IssueConfig{MaxPerWindow: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "u1", "sms"); err != nil {
			t.Fatalf("issue %d: unexpected %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "u1", "sms"); !errors.Is(err, ErrIssueThrottled) {
		t.Fatalf("expected ErrIssueThrottled, got %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if err := l.Allow(ctx, "u1", "sms"); err != nil {
		t.Fatalf("expected new window, got %v", err)
	}
}

func TestAttemptLimiterUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewAttemptLimiter(rdb, AttemptConfig{})
	mr.Close()
	if err := l.Check(context.Background(), "u1", "totp", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
