package goMFA

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verify checks code against the user's Enabled method of type t.
//
// Every failure, whatever its cause, returns ErrVerificationFailed. The
// cause is recorded in the audit event. Operator faults (ErrInvalidSecret,
// ErrStoreUnavailable, ErrBiometricUnavailable) and ErrRateLimited are
// additionally matchable with errors.Is so hosts can alert or back off.
func (e *Engine) Verify(ctx context.Context, userID string, t MethodType, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	start := time.Now()
	defer e.observeLatency(start)

	m, err := e.verify(ctx, userID, t, code)
	e.finishVerify(ctx, auditEventVerify, userID, m, t, err, nil)
	return publicVerifyError(err)
}

func (e *Engine) verify(ctx context.Context, userID string, t MethodType, code string) (MFAMethod, error) {
	if userID == "" {
		return MFAMethod{}, ErrInvalidUserID
	}
	if !t.Valid() {
		return MFAMethod{}, ErrUnsupportedMethod
	}
	if err := e.gate(ctx, userID, t); err != nil {
		return MFAMethod{}, err
	}

	m, err := e.store.GetMethod(ctx, userID, t)
	if err != nil {
		if errors.Is(err, ErrMethodNotFound) {
			err = ErrMethodNotEnabled
		}
		e.settle(ctx, MFAMethod{UserID: userID, Type: t}, err)
		return MFAMethod{}, err
	}
	if !m.Enabled() {
		e.settle(ctx, m, ErrMethodNotEnabled)
		return m, ErrMethodNotEnabled
	}

	err = e.checkCode(ctx, m, code)
	e.settle(ctx, m, err)
	return m, err
}

// gate runs the prechecks and the attempt limiter, in that order.
func (e *Engine) gate(ctx context.Context, userID string, t MethodType) error {
	if err := e.runPrechecks(ctx, userID, t); err != nil {
		return err
	}
	return e.checkAttempts(ctx, userID, t.String())
}

// settle updates the attempt limiter and LastUsedAt after a code check.
func (e *Engine) settle(ctx context.Context, m MFAMethod, err error) {
	scope := m.Type.String()
	if err != nil {
		if countsAsAttempt(err) {
			e.recordFailure(ctx, m.UserID, scope)
		}
		return
	}
	e.resetAttempts(ctx, m.UserID, scope)
	if err := e.store.TouchMethod(ctx, m.ID, e.clock()); err != nil {
		e.logger.WarnContext(ctx, "mfa touch failed", "method_id", m.ID, "error", err)
	}
}

func countsAsAttempt(err error) bool {
	return errors.Is(err, ErrCodeMismatch) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeAlreadyUsed) ||
		errors.Is(err, ErrMethodNotEnabled)
}

func (e *Engine) checkCode(ctx context.Context, m MFAMethod, code string) error {
	var err error
	switch {
	case m.Type == MethodTOTP:
		err = e.checkTOTP(ctx, m, code)
	case m.Type.isChannel():
		err = e.checkChannel(ctx, m, code)
	case m.Type == MethodBiometric:
		err = e.checkBiometric(ctx, m, code)
	default:
		err = ErrUnsupportedMethod
	}
	return consumeError(err)
}

// consumeError reports a method that vanished between load and consume the
// same way as one that was disabled.
func consumeError(err error) error {
	if errors.Is(err, ErrMethodNotFound) {
		return ErrMethodNotEnabled
	}
	return err
}

func (e *Engine) checkTOTP(ctx context.Context, m MFAMethod, code string) error {
	secret, err := e.sealer.Open(m.Secret, m.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	defer clear(secret)

	counter, ok, err := e.verifier.Match(secret, code, e.clock())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if !ok {
		return ErrCodeMismatch
	}
	if !e.config.TOTP.EnforceReplayProtection {
		return nil
	}
	return e.advanceCounter(ctx, m, counter)
}

// advanceCounter moves the replay high-water mark to counter. A store
// conflict is retried once and then reported as a mismatch.
func (e *Engine) advanceCounter(ctx context.Context, m MFAMethod, counter uint64) error {
	for attempt := 0; attempt < 2; attempt++ {
		advanced, err := e.store.AdvanceCounter(ctx, m.ID, counter)
		switch {
		case err == nil && advanced:
			return nil
		case err == nil:
			e.metricInc(MetricTOTPReplay)
			return ErrCodeAlreadyUsed
		case errors.Is(err, ErrConcurrencyConflict):
			continue
		default:
			return err
		}
	}
	return errors.Join(ErrCodeMismatch, ErrConcurrencyConflict)
}

func (e *Engine) checkChannel(ctx context.Context, m MFAMethod, code string) error {
	code = strings.TrimSpace(code)
	if len(code) != e.config.Channel.CodeLength || !isNumeric(code) {
		return ErrCodeMismatch
	}
	hash := e.codes.Sum(m.ID, m.Type.channelKind(), code)
	return e.store.ConsumeChannelCode(ctx, m.ID, hash, e.clock())
}

func (e *Engine) checkBiometric(ctx context.Context, m MFAMethod, assertion string) error {
	if e.biometric == nil {
		return ErrBiometricUnavailable
	}
	ok, err := e.biometric.VerifyAssertion(ctx, m.UserID, m.Destination, assertion)
	if err != nil {
		return errors.Join(ErrBiometricUnavailable, err)
	}
	if !ok {
		return ErrCodeMismatch
	}
	return nil
}

// finishVerify records metrics, operator logs and the audit event for one
// verification attempt.
func (e *Engine) finishVerify(
	ctx context.Context,
	eventType string,
	userID string,
	m MFAMethod,
	t MethodType,
	err error,
	metadata map[string]string,
) {
	if err == nil {
		e.metricInc(MetricVerifySuccess)
		switch {
		case eventType == auditEventBackupCode:
			e.metricInc(MetricBackupCodeUsed)
		case t == MethodTOTP:
			e.metricInc(MetricTOTPSuccess)
		case t.isChannel():
			e.metricInc(MetricChannelCodeSuccess)
		case t == MethodBiometric:
			e.metricInc(MetricBiometricSuccess)
		}
	} else {
		e.metricInc(MetricVerifyFailure)
		e.countFailure(eventType, t, err)
		e.logFault(ctx, userID, t, err)
		if errors.Is(err, ErrConcurrencyConflict) {
			if metadata == nil {
				metadata = make(map[string]string, 1)
			}
			metadata["cause"] = string(ReasonConcurrencyConflict)
		}
	}

	e.emitAudit(ctx, auditRecord{
		eventType: eventType,
		userID:    userID,
		methodID:  m.ID,
		t:         t,
		success:   err == nil,
		err:       err,
		metadata:  metadata,
	})
}

func (e *Engine) countFailure(eventType string, t MethodType, err error) {
	switch {
	case eventType == auditEventBackupCode:
		e.metricInc(MetricBackupCodeFailed)
		if errors.Is(err, ErrCodeAlreadyUsed) {
			e.metricInc(MetricBackupCodeReuse)
		}
	case t == MethodTOTP:
		e.metricInc(MetricTOTPFailure)
	case t.isChannel():
		e.metricInc(MetricChannelCodeFailure)
		if errors.Is(err, ErrCodeExpired) {
			e.metricInc(MetricChannelCodeExpired)
		}
	case t == MethodBiometric:
		e.metricInc(MetricBiometricFailure)
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		e.metricInc(MetricRateLimitHit)
	case errors.Is(err, ErrPrecheckDenied):
		e.metricInc(MetricPrecheckDenied)
	case errors.Is(err, ErrInvalidSecret):
		e.metricInc(MetricInvalidSecret)
	case errors.Is(err, ErrConcurrencyConflict):
		e.metricInc(MetricConcurrencyConflict)
	}
}

// logFault logs failures an operator has to act on. Ordinary wrong codes
// are not logged.
func (e *Engine) logFault(ctx context.Context, userID string, t MethodType, err error) {
	switch {
	case errors.Is(err, ErrInvalidSecret):
		e.logger.ErrorContext(ctx, "mfa stored secret unusable", "user_id", userID, "method", t.String(), "error", err)
	case errors.Is(err, ErrStoreUnavailable):
		e.logger.ErrorContext(ctx, "mfa store unavailable", "user_id", userID, "method", t.String(), "error", err)
	case errors.Is(err, ErrBiometricUnavailable):
		e.logger.WarnContext(ctx, "mfa biometric verifier unavailable", "user_id", userID, "error", err)
	case auditReason(err) == ReasonInternal:
		e.logger.ErrorContext(ctx, "mfa verification internal error", "user_id", userID, "method", t.String(), "error", err)
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
