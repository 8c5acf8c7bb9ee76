package goMFA

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/otp"
)

func TestSetupTOTPReturnsEnrollmentMaterial(t *testing.T) {
	cfg := testConfig()
	cfg.TOTP.QRCodeSize = 128
	e := buildTestEngine(t, cfg)

	res, err := e.SetupMethod(context.Background(), "u1", MethodTOTP, "alice@example.com")
	if err != nil {
		t.Fatalf("SetupMethod failed: %v", err)
	}
	if res.State != StateProvisioned || res.Type != MethodTOTP {
		t.Fatalf("unexpected setup result: %+v", res)
	}
	if _, err := otp.DecodeSecret(res.Secret); err != nil {
		t.Fatalf("setup secret is not base32: %v", err)
	}
	if !strings.HasPrefix(res.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning uri %q", res.ProvisioningURI)
	}
	if !strings.Contains(res.ProvisioningURI, "issuer=goMFA") {
		t.Fatalf("expected issuer in provisioning uri %q", res.ProvisioningURI)
	}
	if len(res.QRCodePNG) < 8 || string(res.QRCodePNG[1:4]) != "PNG" {
		t.Fatal("expected PNG qr code")
	}
	if len(res.BackupCodes) != cfg.Backup.Count {
		t.Fatalf("expected %d backup codes, got %d", cfg.Backup.Count, len(res.BackupCodes))
	}

	stored, err := e.store.GetMethodByID(context.Background(), res.MethodID)
	if err != nil {
		t.Fatalf("GetMethodByID failed: %v", err)
	}
	if stored.Destination != "" {
		t.Fatalf("account label must not be stored, got %q", stored.Destination)
	}
	if strings.Contains(string(stored.Secret), res.Secret) {
		t.Fatal("stored secret must not contain the encoded secret")
	}
}

func TestVerifyTOTPWindowScenario(t *testing.T) {
	e := buildTestEngine(t, testConfig())
	res := enrollTOTP(t, e, "u1")
	ctx := context.Background()

	base := counterAt(testEpoch)
	if base != 56666666 {
		t.Fatalf("expected counter 56666666 at t=1700000000, got %d", base)
	}

	if err := e.Verify(ctx, "u1", MethodTOTP, totpCodeAt(t, res.Secret, 56666665)); err != nil {
		t.Fatalf("previous step should verify: %v", err)
	}
	if err := e.Verify(ctx, "u1", MethodTOTP, totpCodeAt(t, res.Secret, 56666666)); err != nil {
		t.Fatalf("current step should verify: %v", err)
	}
	if err := e.Verify(ctx, "u1", MethodTOTP, totpCodeAt(t, res.Secret, 56666664)); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("step outside window should fail, got %v", err)
	}
}

func TestVerifyTOTPRejectsReplay(t *testing.T) {
	cfg := auditedConfig()
	sink := NewChannelSink(256)
	e := buildTestEngine(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	res := enrollTOTP(t, e, "u1")
	ctx := context.Background()

	code := totpCodeAt(t, res.Secret, counterAt(testEpoch))
	if err := e.Verify(ctx, "u1", MethodTOTP, code); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	err := e.Verify(ctx, "u1", MethodTOTP, code)
	if err != ErrVerificationFailed {
		t.Fatalf("expected bare ErrVerificationFailed on replay, got %v", err)
	}

	waitAuditEvent(t, sink, auditEventVerify)
	ev := waitAuditEvent(t, sink, auditEventVerify)
	if ev.Success || ev.Reason != string(ReasonCodeAlreadyUsed) {
		t.Fatalf("expected code_already_used audit, got %+v", ev)
	}

	// An earlier step inside the window is also a replay once a later one
	// was accepted.
	older := totpCodeAt(t, res.Secret, counterAt(testEpoch)-1)
	if err := e.Verify(ctx, "u1", MethodTOTP, older); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected older step to be rejected, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricTOTPReplay]; got != 2 {
		t.Fatalf("expected 2 replay metrics, got %d", got)
	}
}

func TestVerifyTOTPWithoutReplayProtection(t *testing.T) {
	cfg := testConfig()
	cfg.TOTP.EnforceReplayProtection = false
	e := buildTestEngine(t, cfg)
	res := enrollTOTP(t, e, "u1")

	code := totpCodeAt(t, res.Secret, counterAt(testEpoch))
	for i := 0; i < 2; i++ {
		if err := e.Verify(context.Background(), "u1", MethodTOTP, code); err != nil {
			t.Fatalf("verify %d failed: %v", i+1, err)
		}
	}
}

func TestVerifyTOTPRedisStore(t *testing.T) {
	e, _ := buildRedisTestEngine(t, testConfig())
	res := enrollTOTP(t, e, "u1")
	ctx := context.Background()

	code := totpCodeAt(t, res.Secret, counterAt(testEpoch))
	if err := e.Verify(ctx, "u1", MethodTOTP, code); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := e.Verify(ctx, "u1", MethodTOTP, code); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected replay rejection, got %v", err)
	}

	m, err := e.store.GetMethod(ctx, "u1", MethodTOTP)
	if err != nil {
		t.Fatalf("GetMethod failed: %v", err)
	}
	if m.LastUsedAt == nil || !m.LastUsedAt.Equal(testEpoch) {
		t.Fatalf("expected LastUsedAt %v, got %v", testEpoch, m.LastUsedAt)
	}
}

func TestVerifyTOTPSealedSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Security.SecretEncryptionKey = testKey()
	e := buildTestEngine(t, cfg)
	res := enrollTOTP(t, e, "u1")
	ctx := context.Background()

	if err := e.Verify(ctx, "u1", MethodTOTP, totpCodeAt(t, res.Secret, counterAt(testEpoch))); err != nil {
		t.Fatalf("verify with sealed secret failed: %v", err)
	}

	// A sealed secret is bound to its method and cannot be moved.
	other := enrollTOTP(t, e, "u2")
	victim, _ := e.store.GetMethodByID(ctx, res.MethodID)
	moved, _ := e.store.GetMethodByID(ctx, other.MethodID)
	moved.Secret = victim.Secret
	if err := e.store.SaveMethod(ctx, moved); err != nil {
		t.Fatalf("SaveMethod failed: %v", err)
	}

	e.clock.Advance(time.Minute)
	err := e.Verify(ctx, "u2", MethodTOTP, totpCodeAt(t, res.Secret, counterAt(e.clock.Now())))
	if !errors.Is(err, ErrVerificationFailed) || !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected invalid secret, got %v", err)
	}
}

func TestVerifyTOTPInvalidSecretIsOperatorFault(t *testing.T) {
	cfg := auditedConfig()
	sink := NewChannelSink(256)
	e := buildTestEngine(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	res := enrollTOTP(t, e, "u1")
	ctx := context.Background()

	m, _ := e.store.GetMethodByID(ctx, res.MethodID)
	m.Secret = []byte{9, 9}
	if err := e.store.SaveMethod(ctx, m); err != nil {
		t.Fatalf("SaveMethod failed: %v", err)
	}

	err := e.Verify(ctx, "u1", MethodTOTP, "123456")
	if !errors.Is(err, ErrVerificationFailed) || !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrVerificationFailed joined with ErrInvalidSecret, got %v", err)
	}
	ev := waitAuditEvent(t, sink, auditEventVerify)
	if ev.Reason != string(ReasonInvalidSecret) {
		t.Fatalf("expected invalid_secret audit reason, got %q", ev.Reason)
	}
	if got := e.MetricsSnapshot().Counters[MetricInvalidSecret]; got != 1 {
		t.Fatalf("expected invalid secret metric 1, got %d", got)
	}
}

func TestVerifyTOTPMalformedCode(t *testing.T) {
	e := buildTestEngine(t, testConfig())
	enrollTOTP(t, e, "u1")

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		if err := e.Verify(context.Background(), "u1", MethodTOTP, code); err != ErrVerificationFailed {
			t.Fatalf("code %q: expected ErrVerificationFailed, got %v", code, err)
		}
	}
}

func TestVerifyRejectsInvalidRequests(t *testing.T) {
	e := buildTestEngine(t, testConfig())
	ctx := context.Background()

	if err := e.Verify(ctx, "", MethodTOTP, "123456"); err != ErrVerificationFailed {
		t.Fatalf("empty user: expected ErrVerificationFailed, got %v", err)
	}
	if err := e.Verify(ctx, "u1", MethodType(42), "123456"); err != ErrVerificationFailed {
		t.Fatalf("unknown type: expected ErrVerificationFailed, got %v", err)
	}
	if err := e.Verify(ctx, "u1", MethodTOTP, "123456"); err != ErrVerificationFailed {
		t.Fatalf("no method: expected ErrVerificationFailed, got %v", err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if err := e.Verify(context.Background(), "u1", MethodTOTP, "123456"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.ListMethods(context.Background(), "u1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
