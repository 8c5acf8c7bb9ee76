package goMFA

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goMFA/channel"
)

// MethodType identifies a second factor.
type MethodType uint8

const (
	MethodTOTP MethodType = iota + 1
	MethodSMS
	MethodEmail
	MethodBiometric
)

// String returns the lower-case wire name of t.
func (t MethodType) String() string {
	switch t {
	case MethodTOTP:
		return "totp"
	case MethodSMS:
		return "sms"
	case MethodEmail:
		return "email"
	case MethodBiometric:
		return "biometric"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known method type.
func (t MethodType) Valid() bool {
	return t >= MethodTOTP && t <= MethodBiometric
}

func (t MethodType) isChannel() bool {
	return t == MethodSMS || t == MethodEmail
}

func (t MethodType) channelKind() channel.Kind {
	if t == MethodEmail {
		return channel.KindEmail
	}
	return channel.KindSMS
}

// ParseMethodType maps a wire name to a MethodType.
func ParseMethodType(s string) (MethodType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "totp":
		return MethodTOTP, nil
	case "sms":
		return MethodSMS, nil
	case "email":
		return MethodEmail, nil
	case "biometric":
		return MethodBiometric, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
	}
}

// MethodState is the lifecycle position of an MFAMethod.
type MethodState uint8

const (
	StateProvisioned MethodState = iota + 1
	StateEnabled
	StateDisabled
)

func (s MethodState) String() string {
	switch s {
	case StateProvisioned:
		return "provisioned"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MFAMethod is one enrolled second factor. There is at most one per
// (UserID, Type). Secret holds the sealed TOTP secret and is never returned
// by [Engine.ListMethods].
type MFAMethod struct {
	ID          string
	UserID      string
	Type        MethodType
	State       MethodState
	Verified    bool
	Secret      []byte
	Destination string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// Enabled reports whether the method may be used for verification.
func (m MFAMethod) Enabled() bool {
	return m.State == StateEnabled
}

// SetupResult is returned once by [Engine.SetupMethod]. Secret, QR code and
// backup codes are plaintext and are not retrievable later.
type SetupResult struct {
	MethodID        string
	Type            MethodType
	State           MethodState
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
	BackupCodes     []string
	Channel         *ChannelCode
}

// ChannelCode describes an issued SMS/email code. Code is empty when a
// Deliverer accepted it; otherwise the caller must deliver it.
type ChannelCode struct {
	MethodID    string
	Type        MethodType
	Code        string
	Destination string
	ExpiresAt   time.Time
	Delivered   bool
}

// ChannelDelivery is handed to a Deliverer.
type ChannelDelivery struct {
	UserID      string
	Type        MethodType
	Destination string
	Code        string
	ExpiresAt   time.Time
}

// ChannelOTPRecord is the persisted form of an issued channel code. Only the
// code digest is stored. A record belongs to exactly one method and is
// discarded with it.
type ChannelOTPRecord struct {
	MethodID  string
	UserID    string
	Type      MethodType
	CodeHash  [32]byte
	IssuedAt  time.Time
	ExpiresAt time.Time
	Used      bool
}

// Deliverer transmits channel codes. Implementations live outside this module.
type Deliverer interface {
	Deliver(ctx context.Context, d ChannelDelivery) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, d ChannelDelivery) error

func (f DelivererFunc) Deliver(ctx context.Context, d ChannelDelivery) error { return f(ctx, d) }

// BiometricVerifier checks a platform assertion for a registered credential.
type BiometricVerifier interface {
	VerifyAssertion(ctx context.Context, userID, credential, assertion string) (bool, error)
}

// Precheck runs before any verification. A non-nil error denies the attempt.
// Prechecks carry host policy such as "the acting user may verify for
// userID"; they are composed in registration order.
type Precheck func(ctx context.Context, userID string, t MethodType) error
