package goMFA

import (
	"errors"

	"github.com/MrEthical07/goMFA/otp"
)

var (
	// ErrVerificationFailed is the only failure callers see from a verification.
	ErrVerificationFailed = errors.New("mfa verification failed")
	// ErrInvalidSecret reports a stored secret that cannot be decoded; an operator fault.
	ErrInvalidSecret = otp.ErrInvalidSecret
	// ErrMethodNotEnabled reports a method that is missing, not yet enabled, or disabled.
	ErrMethodNotEnabled = errors.New("mfa method not enabled")
	// ErrCodeExpired reports a channel code past its expiry.
	ErrCodeExpired = errors.New("mfa code expired")
	// ErrCodeAlreadyUsed reports a consumed channel or backup code, or a replayed TOTP step.
	ErrCodeAlreadyUsed = errors.New("mfa code already used")
	// ErrCodeMismatch reports a code that does not match.
	ErrCodeMismatch = errors.New("mfa code mismatch")
	// ErrConcurrencyConflict reports a lost compare-and-set in a store.
	ErrConcurrencyConflict = errors.New("mfa concurrency conflict")
	// ErrRateLimited reports an exhausted attempt or issuance budget.
	ErrRateLimited = errors.New("mfa rate limited")
	// ErrPrecheckDenied reports a verification rejected by a Precheck.
	ErrPrecheckDenied = errors.New("mfa precheck denied")
	// ErrMethodNotFound reports an unknown method ID or one owned by another user.
	ErrMethodNotFound = errors.New("mfa method not found")
	// ErrMethodAlreadyEnabled reports a setup request for a type that is already enabled.
	ErrMethodAlreadyEnabled = errors.New("mfa method already enabled")
	// ErrUnsupportedMethod reports an unknown method type or an operation the type does not support.
	ErrUnsupportedMethod = errors.New("unsupported mfa method")
	// ErrInvalidDestination reports a malformed phone number, email or credential.
	ErrInvalidDestination = errors.New("invalid mfa destination")
	// ErrInvalidUserID reports an empty user ID.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrStoreUnavailable reports a persistence or limiter backend failure.
	ErrStoreUnavailable = errors.New("mfa store unavailable")
	// ErrDeliveryFailed reports a Deliverer error; the issued code stays valid.
	ErrDeliveryFailed = errors.New("mfa code delivery failed")
	// ErrBiometricUnavailable reports a missing or failing BiometricVerifier.
	ErrBiometricUnavailable = errors.New("biometric verifier unavailable")
	// ErrEngineNotReady reports a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
