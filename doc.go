// Package goMFA is a multi-factor verification core: TOTP authenticator
// apps, single-use backup codes, SMS/email one-time codes and a
// biometric passthrough, each gated by a per-method lifecycle.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goMFA is the public surface. It exposes [Engine], [Builder], [Config], the
// [Store] contract and value types ([MFAMethod], [SetupResult], [AuditEvent]).
// Code math lives in the otp, backup and channel packages; audit dispatch,
// rate limiting and secret sealing live under internal/.
//
// # Failure policy
//
// Every verification failure is returned to callers as
// [ErrVerificationFailed]. The specific reason (mismatch, expiry, reuse,
// disabled method) is recorded only in the audit event. Operator faults such
// as an undecodable stored secret or a store outage are additionally joined
// to the returned error so callers can log them; they never verify.
//
// # What this package must NOT do
//
//   - Transmit SMS or email; delivery is a caller-supplied [Deliverer].
//   - Issue sessions or tokens after a successful verification.
//   - Import any sub-package that re-imports goMFA (no import cycles).
package goMFA
