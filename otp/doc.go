// Package otp implements RFC 4226 counter-based and RFC 6238 time-based
// one-time passcodes.
//
// The package is pure computation: it never reads the wall clock or the
// network. Callers pass the current time into [Verifier.Verify] and keep the
// matched counter returned by [Verifier.Match] for replay protection.
//
// # Components
//
//   - [DecodeSecret] / [EncodeSecret]: base32 shared secret codec.
//   - [Generate]: HOTP code for a counter.
//   - [CounterFromTime]: RFC 6238 time-step derivation.
//   - [Verifier]: drift-tolerant, constant-time TOTP verification.
//   - [ProvisioningURI] / [QRCodePNG]: authenticator enrolment payloads.
//
// # What this package must NOT do
//
//   - Persist secrets or counters.
//   - Depend on the root engine package.
package otp
