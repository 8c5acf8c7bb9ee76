package channel

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"hash"
	"math/big"
	"strings"
	"time"
)

// Kind is the delivery channel of a code.
type Kind uint8

const (
	KindSMS Kind = iota + 1
	KindEmail
)

func (k Kind) String() string {
	switch k {
	case KindSMS:
		return "sms"
	case KindEmail:
		return "email"
	default:
		return "unknown"
	}
}

const (
	DefaultLength = 6
	DefaultTTL    = 5 * time.Minute
	maxLength     = 10
)

var (
	ErrExpired       = errors.New("channel code expired")
	ErrAlreadyUsed   = errors.New("channel code already used")
	ErrInvalidKind   = errors.New("invalid channel kind")
	ErrInvalidLength = errors.New("channel code length must be between 4 and 10")
	ErrInvalidTTL    = errors.New("channel code ttl must be > 0")
)

// Record is one freshly issued code. It carries the plaintext for delivery
// and is never persisted as-is.
type Record struct {
	Code      string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue creates a random numeric code of length digits valid for ttl from now.
func Issue(kind Kind, length int, ttl time.Duration, now time.Time) (*Record, error) {
	if kind != KindSMS && kind != KindEmail {
		return nil, ErrInvalidKind
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	code, err := NewCode(length)
	if err != nil {
		return nil, err
	}
	return &Record{
		Code:      code,
		Kind:      kind,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// NewCode returns a uniformly random numeric string of length digits.
func NewCode(length int) (string, error) {
	if length < 4 || length > maxLength {
		return "", ErrInvalidLength
	}
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	s := n.String()
	if len(s) < length {
		s = strings.Repeat("0", length-len(s)) + s
	}
	return s, nil
}

// Classify reports the state of a stored code at now. Expiry is reported
// before reuse; a nil result means the code may be consumed.
func Classify(expiresAt time.Time, used bool, now time.Time) error {
	if now.After(expiresAt) {
		return ErrExpired
	}
	if used {
		return ErrAlreadyUsed
	}
	return nil
}

// Hasher digests codes for persistence. With a key it computes
// HMAC-SHA256, so a leaked digest cannot be matched against the small code
// space without the key. The zero value computes plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key. An empty key yields the
// unkeyed Hasher.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	return Hasher{key: append([]byte(nil), key...)}
}

// Keyed reports whether digests are HMACs.
func (h Hasher) Keyed() bool {
	return len(h.key) > 0
}

// Sum returns the persisted digest of code issued for the method identified
// by methodID.
func (h Hasher) Sum(methodID string, kind Kind, code string) [32]byte {
	code = strings.TrimSpace(code)
	var d hash.Hash
	if h.Keyed() {
		d = hmac.New(sha256.New, h.key)
	} else {
		d = sha256.New()
	}
	d.Write([]byte(methodID))
	d.Write([]byte{0, byte(kind), 0})
	d.Write([]byte(code))

	var out [32]byte
	copy(out[:], d.Sum(nil))
	return out
}
