package goMFA

import (
	"context"
	"time"
)

// MethodStore persists MFAMethod records.
//
// Implementations return ErrMethodNotFound for unknown methods, wrap backend
// failures with ErrStoreUnavailable, and report a lost compare-and-set as
// ErrConcurrencyConflict. Every consume operation (AdvanceCounter,
// ConsumeBackupCode, ConsumeChannelCode) checks the owning method in the same
// atomic step and returns ErrMethodNotEnabled once it is StateDisabled.
type MethodStore interface {
	// SaveMethod stores m, replacing any previous method of the same user and
	// type together with its replay counter, backup codes and channel codes.
	SaveMethod(ctx context.Context, m MFAMethod) error
	GetMethod(ctx context.Context, userID string, t MethodType) (MFAMethod, error)
	GetMethodByID(ctx context.Context, methodID string) (MFAMethod, error)
	ListMethods(ctx context.Context, userID string) ([]MFAMethod, error)
	// TransitionMethod sets State to "to" only if it is currently "from".
	// Entering StateEnabled also sets Verified.
	TransitionMethod(ctx context.Context, methodID string, from, to MethodState) error
	TouchMethod(ctx context.Context, methodID string, at time.Time) error
	// AdvanceCounter records counter as the last accepted TOTP step if it is
	// strictly greater than the current one, and reports whether it did.
	AdvanceCounter(ctx context.Context, methodID string, counter uint64) (bool, error)
}

// BackupCodeStore persists backup code digests per method.
type BackupCodeStore interface {
	ReplaceBackupCodes(ctx context.Context, methodID string, hashes [][32]byte) error
	// ConsumeBackupCode atomically removes hash. It returns ErrMethodNotFound
	// or ErrMethodNotEnabled for a missing or disabled method,
	// ErrCodeAlreadyUsed for a previously consumed code and ErrCodeMismatch for
	// an unknown one.
	ConsumeBackupCode(ctx context.Context, methodID string, hash [32]byte) error
	CountBackupCodes(ctx context.Context, methodID string) (int, error)
	DeleteBackupCodes(ctx context.Context, methodID string) error
}

// ChannelCodeStore persists issued channel codes keyed by their method.
type ChannelCodeStore interface {
	// SaveChannelCode stores rec under rec.MethodID until IssuedAt+retain,
	// which is at least its expiry, so late attempts can still be
	// classified.
	SaveChannelCode(ctx context.Context, rec ChannelOTPRecord, retain time.Duration) error
	// ConsumeChannelCode marks the record of methodID with hash used. After
	// the method checks it returns, in this order of precedence,
	// ErrCodeExpired, ErrCodeAlreadyUsed, or ErrCodeMismatch when no record
	// matches.
	ConsumeChannelCode(ctx context.Context, methodID string, hash [32]byte, now time.Time) error
	// DeleteChannelCodes discards every record of methodID.
	DeleteChannelCodes(ctx context.Context, methodID string) error
}

// Store is everything the Engine persists.
type Store interface {
	MethodStore
	BackupCodeStore
	ChannelCodeStore
}
