package goMFA

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Enable completes enrolment of a Provisioned method. code is checked the
// same way Verify checks it; on success the method becomes Enabled and
// Verified.
//
// A method that is not Provisioned returns ErrMethodNotEnabled and an
// unknown or foreign methodID returns ErrMethodNotFound. A failed code check
// returns ErrVerificationFailed.
func (e *Engine) Enable(ctx context.Context, userID, methodID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	start := time.Now()
	defer e.observeLatency(start)

	m, err := e.ownedMethod(ctx, userID, methodID)
	if err == nil {
		_, err = nextState(m.State, eventFirstVerification)
	}
	if err != nil {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventEnabled,
			userID:    userID,
			methodID:  methodID,
			t:         m.Type,
			err:       err,
		})
		return err
	}

	err = e.gate(ctx, userID, m.Type)
	if err == nil {
		err = e.checkCode(ctx, m, code)
		e.settle(ctx, m, err)
	}
	if err == nil {
		m, err = e.applyTransition(ctx, m, eventFirstVerification)
	}
	e.finishVerify(ctx, auditEventEnabled, userID, m, m.Type, err, nil)

	switch {
	case err == nil:
		e.metricInc(MetricMethodEnabled)
		return nil
	case errors.Is(err, ErrMethodNotEnabled):
		// Lost a race against Disable or another Enable.
		return ErrMethodNotEnabled
	default:
		return publicVerifyError(err)
	}
}

// Disable moves a Provisioned or Enabled method to Disabled. Disabled is
// terminal: a disabled method never verifies again and re-enrolment goes
// through SetupMethod. Disabling a TOTP method destroys its backup codes and
// disabling an SMS or email method discards its outstanding codes.
func (e *Engine) Disable(ctx context.Context, userID, methodID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	m, err := e.ownedMethod(ctx, userID, methodID)
	if err == nil {
		m, err = e.applyTransition(ctx, m, eventDisable)
	}
	if err == nil {
		if m.Type == MethodTOTP {
			if derr := e.store.DeleteBackupCodes(ctx, m.ID); derr != nil {
				e.logger.ErrorContext(ctx, "mfa backup code cleanup failed", "method_id", m.ID, "error", derr)
			}
		}
		if m.Type.isChannel() {
			if derr := e.store.DeleteChannelCodes(ctx, m.ID); derr != nil {
				e.logger.ErrorContext(ctx, "mfa channel code cleanup failed", "method_id", m.ID, "error", derr)
			}
		}
		e.resetAttempts(ctx, userID, m.Type.String())
		e.metricInc(MetricMethodDisabled)
	}

	e.emitAudit(ctx, auditRecord{
		eventType: auditEventDisabled,
		userID:    userID,
		methodID:  methodID,
		t:         m.Type,
		success:   err == nil,
		err:       err,
	})
	return err
}

// ListMethods returns every method of userID ordered by type. Secrets are
// never included.
func (e *Engine) ListMethods(ctx context.Context, userID string) ([]MFAMethod, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	methods, err := e.store.ListMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]MFAMethod, 0, len(methods))
	for _, m := range methods {
		m.Secret = nil
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// HasAnyEnabled reports whether userID has at least one Enabled method.
func (e *Engine) HasAnyEnabled(ctx context.Context, userID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if userID == "" {
		return false, ErrInvalidUserID
	}

	methods, err := e.store.ListMethods(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, m := range methods {
		if m.Enabled() {
			return true, nil
		}
	}
	return false, nil
}

// ownedMethod loads methodID and hides methods of other users behind
// ErrMethodNotFound.
func (e *Engine) ownedMethod(ctx context.Context, userID, methodID string) (MFAMethod, error) {
	if userID == "" {
		return MFAMethod{}, ErrInvalidUserID
	}
	if methodID == "" {
		return MFAMethod{}, ErrMethodNotFound
	}
	m, err := e.store.GetMethodByID(ctx, methodID)
	if err != nil {
		return MFAMethod{}, err
	}
	if m.UserID != userID {
		return MFAMethod{}, ErrMethodNotFound
	}
	return m, nil
}

// applyTransition performs ev as a compare-and-set on the stored state. On
// a conflict the method is reloaded and the transition re-evaluated once.
func (e *Engine) applyTransition(ctx context.Context, m MFAMethod, ev lifecycleEvent) (MFAMethod, error) {
	for attempt := 0; attempt < 2; attempt++ {
		to, err := nextState(m.State, ev)
		if err != nil {
			return m, err
		}

		err = e.store.TransitionMethod(ctx, m.ID, m.State, to)
		if err == nil {
			m.State = to
			if to == StateEnabled {
				m.Verified = true
			}
			return m, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return m, err
		}

		fresh, err := e.store.GetMethodByID(ctx, m.ID)
		if err != nil {
			return m, err
		}
		m = fresh
	}
	return m, ErrConcurrencyConflict
}
