package goMFA

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goMFA/backup"
)

const backupScope = "backup"

// VerifyBackupCode consumes one backup code of the user's Enabled TOTP
// method. Each code succeeds at most once, also under concurrent use. Every
// failure returns ErrVerificationFailed, as with Verify.
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	start := time.Now()
	defer e.observeLatency(start)

	m, remaining, err := e.verifyBackupCode(ctx, userID, code)

	var metadata map[string]string
	if err == nil && remaining >= 0 {
		metadata = map[string]string{"remaining": strconv.Itoa(remaining)}
	}
	e.finishVerify(ctx, auditEventBackupCode, userID, m, MethodTOTP, err, metadata)
	return publicVerifyError(err)
}

func (e *Engine) verifyBackupCode(ctx context.Context, userID, code string) (MFAMethod, int, error) {
	if userID == "" {
		return MFAMethod{}, -1, ErrInvalidUserID
	}
	if err := e.runPrechecks(ctx, userID, MethodTOTP); err != nil {
		return MFAMethod{}, -1, err
	}
	if err := e.checkAttempts(ctx, userID, backupScope); err != nil {
		return MFAMethod{}, -1, err
	}

	m, err := e.store.GetMethod(ctx, userID, MethodTOTP)
	if errors.Is(err, ErrMethodNotFound) || (err == nil && !m.Enabled()) {
		err = ErrMethodNotEnabled
	}
	if err == nil {
		canonical := backup.Canonicalize(code)
		if canonical == "" {
			err = ErrCodeMismatch
		} else {
			err = consumeError(e.store.ConsumeBackupCode(ctx, m.ID, backup.Hash(m.ID, canonical)))
		}
	}
	if err != nil {
		if countsAsAttempt(err) {
			e.recordFailure(ctx, userID, backupScope)
		}
		return m, -1, err
	}

	e.resetAttempts(ctx, userID, backupScope)
	if terr := e.store.TouchMethod(ctx, m.ID, e.clock()); terr != nil {
		e.logger.WarnContext(ctx, "mfa touch failed", "method_id", m.ID, "error", terr)
	}
	remaining, cerr := e.store.CountBackupCodes(ctx, m.ID)
	if cerr != nil {
		remaining = -1
	}
	return m, remaining, nil
}

// RegenerateBackupCodes replaces the backup code set of the user's Enabled
// TOTP method. It requires a valid TOTP code; all earlier backup codes stop
// working. The returned codes are shown once and never stored in plaintext.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	m, err := e.verify(ctx, userID, MethodTOTP, totpCode)
	if err != nil {
		e.finishVerify(ctx, auditEventBackupCodesGenerated, userID, m, MethodTOTP, err, nil)
		return nil, publicVerifyError(err)
	}

	codes, err := backup.Generate(e.config.Backup.Count, e.config.Backup.Length)
	if err == nil {
		err = e.store.ReplaceBackupCodes(ctx, m.ID, backupHashes(m.ID, codes))
	}

	var metadata map[string]string
	if err == nil {
		metadata = map[string]string{"backup_codes": strconv.Itoa(len(codes))}
	}
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventBackupCodesGenerated,
		userID:    userID,
		methodID:  m.ID,
		t:         MethodTOTP,
		success:   err == nil,
		err:       err,
		metadata:  metadata,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "mfa backup code regeneration failed", "user_id", userID, "error", err)
		return nil, err
	}
	e.metricInc(MetricBackupCodeRegenerated)
	return codes, nil
}

// BackupCodesRemaining returns how many unused backup codes the user's TOTP
// method has. A user without a TOTP method has none.
func (e *Engine) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, ErrInvalidUserID
	}

	m, err := e.store.GetMethod(ctx, userID, MethodTOTP)
	if err != nil {
		if errors.Is(err, ErrMethodNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if m.State == StateDisabled {
		return 0, nil
	}
	return e.store.CountBackupCodes(ctx, m.ID)
}
