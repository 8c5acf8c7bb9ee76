package goMFA

import (
	"context"
	"errors"
)

const (
	auditEventSetup                = "mfa_setup"
	auditEventEnabled              = "mfa_enabled"
	auditEventDisabled             = "mfa_disabled"
	auditEventVerify               = "mfa_verify"
	auditEventBackupCode           = "mfa_backup_code"
	auditEventBackupCodesGenerated = "mfa_backup_codes_generated"
	auditEventChannelCodeIssued    = "mfa_channel_code_issued"
)

// AuditReason classifies a failure in AuditEvent.Reason. It is the only
// place the specific cause of a failed verification is recorded.
type AuditReason string

const (
	ReasonCodeMismatch        AuditReason = "code_mismatch"
	ReasonCodeExpired         AuditReason = "code_expired"
	ReasonCodeAlreadyUsed     AuditReason = "code_already_used"
	ReasonMethodNotEnabled    AuditReason = "method_not_enabled"
	ReasonMethodNotFound      AuditReason = "method_not_found"
	ReasonInvalidSecret       AuditReason = "invalid_secret"
	ReasonConcurrencyConflict AuditReason = "concurrency_conflict"
	ReasonRateLimited         AuditReason = "rate_limited"
	ReasonPrecheckDenied      AuditReason = "precheck_denied"
	ReasonDeliveryFailed      AuditReason = "delivery_failed"
	ReasonInvalidRequest      AuditReason = "invalid_request"
	ReasonBackendUnavailable  AuditReason = "backend_unavailable"
	ReasonInternal            AuditReason = "internal_error"
)

type auditRecord struct {
	eventType string
	userID    string
	methodID  string
	t         MethodType
	success   bool
	err       error
	metadata  map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.clock(),
		EventType: rec.eventType,
		UserID:    rec.userID,
		MethodID:  rec.methodID,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   rec.success,
		Metadata:  rec.metadata,
	}
	if rec.t.Valid() {
		event.MethodType = rec.t.String()
	}
	if !rec.success {
		event.Reason = string(auditReason(rec.err))
	}

	e.audit.Emit(ctx, event)
}

// auditReason maps an internal error to its audit classification. Order
// matters: joined errors match the first listed cause.
func auditReason(err error) AuditReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPrecheckDenied):
		return ReasonPrecheckDenied
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrInvalidSecret):
		return ReasonInvalidSecret
	case errors.Is(err, ErrCodeExpired):
		return ReasonCodeExpired
	case errors.Is(err, ErrCodeAlreadyUsed):
		return ReasonCodeAlreadyUsed
	case errors.Is(err, ErrCodeMismatch):
		return ReasonCodeMismatch
	case errors.Is(err, ErrConcurrencyConflict):
		return ReasonConcurrencyConflict
	case errors.Is(err, ErrMethodNotEnabled):
		return ReasonMethodNotEnabled
	case errors.Is(err, ErrMethodNotFound):
		return ReasonMethodNotFound
	case errors.Is(err, ErrDeliveryFailed):
		return ReasonDeliveryFailed
	case errors.Is(err, ErrInvalidUserID),
		errors.Is(err, ErrUnsupportedMethod),
		errors.Is(err, ErrInvalidDestination),
		errors.Is(err, ErrMethodAlreadyEnabled):
		return ReasonInvalidRequest
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrBiometricUnavailable):
		return ReasonBackendUnavailable
	default:
		return ReasonInternal
	}
}
