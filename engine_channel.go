package goMFA

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goMFA/channel"
)

// IssueChannelCode issues a fresh SMS or email code for the user's
// Provisioned or Enabled method of type t. Earlier codes stay valid until
// they expire.
//
// With a Deliverer the code is handed over and the returned ChannelCode has
// an empty Code and Delivered set. Without one the caller must transmit
// Code itself. Destination in the result is masked.
func (e *Engine) IssueChannelCode(ctx context.Context, userID string, t MethodType) (*ChannelCode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var (
		m    MFAMethod
		code *ChannelCode
		err  error
	)
	switch {
	case userID == "":
		err = ErrInvalidUserID
	case !t.isChannel():
		err = ErrUnsupportedMethod
	default:
		m, err = e.store.GetMethod(ctx, userID, t)
		if errors.Is(err, ErrMethodNotFound) || (err == nil && m.State == StateDisabled) {
			err = ErrMethodNotEnabled
		}
	}
	if err == nil {
		code, err = e.issueChannelCode(ctx, m)
	}

	e.emitAudit(ctx, auditRecord{
		eventType: auditEventChannelCodeIssued,
		userID:    userID,
		methodID:  m.ID,
		t:         t,
		success:   err == nil,
		err:       err,
	})
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRateLimitHit)
		}
		return nil, err
	}
	return code, nil
}

func (e *Engine) issueChannelCode(ctx context.Context, m MFAMethod) (*ChannelCode, error) {
	if err := e.issues.Allow(ctx, m.UserID, m.Type.String()); err != nil {
		return nil, limiterError(err)
	}

	cfg := e.config.Channel
	rec, err := channel.Issue(m.Type.channelKind(), cfg.CodeLength, cfg.TTL, e.clock())
	if err != nil {
		return nil, err
	}

	stored := ChannelOTPRecord{
		MethodID:  m.ID,
		UserID:    m.UserID,
		Type:      m.Type,
		CodeHash:  e.codes.Sum(m.ID, rec.Kind, rec.Code),
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if err := e.store.SaveChannelCode(ctx, stored, cfg.TTL+cfg.UsedRetention); err != nil {
		return nil, err
	}
	e.metricInc(MetricChannelCodeIssued)

	out := &ChannelCode{
		MethodID:    m.ID,
		Type:        m.Type,
		Code:        rec.Code,
		Destination: maskDestination(m.Type, m.Destination),
		ExpiresAt:   rec.ExpiresAt,
	}
	if e.deliverer == nil {
		return out, nil
	}

	err = e.deliverer.Deliver(ctx, ChannelDelivery{
		UserID:      m.UserID,
		Type:        m.Type,
		Destination: m.Destination,
		Code:        rec.Code,
		ExpiresAt:   rec.ExpiresAt,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "mfa channel code delivery failed", "user_id", m.UserID, "method", m.Type.String(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	out.Code = ""
	out.Delivered = true
	return out, nil
}
