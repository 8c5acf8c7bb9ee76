package goMFA

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goMFA/channel"
	"github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/limiters"
	"github.com/MrEthical07/goMFA/internal/sealing"
	"github.com/MrEthical07/goMFA/otp"
)

// Engine runs MFA setup, verification and lifecycle operations for many
// users. It is safe for concurrent use once built; all state lives in the
// Store.
type Engine struct {
	config    Config
	store     Store
	verifier  otp.Verifier
	sealer    *sealing.Sealer
	codes     channel.Hasher
	attempts  *limiters.AttemptLimiter
	issues    *limiters.IssueLimiter
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	prechecks []Precheck
	deliverer Deliverer
	biometric BiometricVerifier
}

// Close flushes queued audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditSinkPanics returns how many times the audit sink panicked. The
// dispatcher recovers and keeps running, so this is the only trace of a
// broken sink.
func (e *Engine) AuditSinkPanics() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.SinkPanics()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(start time.Time) {
	if e.metrics == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// runPrechecks applies every registered Precheck in order and stops at the
// first denial.
func (e *Engine) runPrechecks(ctx context.Context, userID string, t MethodType) error {
	for _, check := range e.prechecks {
		if err := check(ctx, userID, t); err != nil {
			return errors.Join(ErrPrecheckDenied, err)
		}
	}
	return nil
}

// checkAttempts maps limiter outcomes onto the engine taxonomy.
func (e *Engine) checkAttempts(ctx context.Context, userID, scope string) error {
	if err := e.attempts.Check(ctx, userID, scope, clientIPFromContext(ctx)); err != nil {
		return limiterError(err)
	}
	return nil
}

func (e *Engine) recordFailure(ctx context.Context, userID, scope string) {
	err := e.attempts.RecordFailure(ctx, userID, scope, clientIPFromContext(ctx))
	if err != nil && !errors.Is(err, limiters.ErrAttemptsExceeded) {
		e.logger.ErrorContext(ctx, "mfa attempt limiter unavailable", "user_id", userID, "scope", scope, "error", err)
	}
}

func (e *Engine) resetAttempts(ctx context.Context, userID, scope string) {
	if err := e.attempts.Reset(ctx, userID, scope); err != nil {
		e.logger.WarnContext(ctx, "mfa attempt limiter reset failed", "user_id", userID, "scope", scope, "error", err)
	}
}

func limiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrAttemptsExceeded), errors.Is(err, limiters.ErrIssueThrottled):
		return ErrRateLimited
	default:
		return errors.Join(ErrStoreUnavailable, err)
	}
}

// publicVerifyError collapses a verification failure into what the caller
// may see. Expected failures become exactly ErrVerificationFailed; operator
// faults and throttling stay matchable with errors.Is.
func publicVerifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, keep := range []error{ErrInvalidSecret, ErrStoreUnavailable, ErrRateLimited, ErrBiometricUnavailable, ErrEngineNotReady} {
		if errors.Is(err, keep) {
			return errors.Join(ErrVerificationFailed, keep)
		}
	}
	return ErrVerificationFailed
}
