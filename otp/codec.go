package otp

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"
)

// DefaultSecretSize is the RFC 4226 recommended secret length in bytes.
const DefaultSecretSize = 20

var (
	// ErrInvalidSecret is returned when a shared secret cannot be decoded or is empty.
	ErrInvalidSecret = errors.New("invalid otp secret")
	// ErrInvalidDigits is returned for a code length outside 1..10.
	ErrInvalidDigits = errors.New("invalid otp digits")
	// ErrUnsupportedAlgorithm is returned for an unknown HMAC algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported otp algorithm")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// DecodeSecret decodes a base32 shared secret. Input is case-insensitive;
// spaces, dashes and trailing '=' padding are ignored.
func DecodeSecret(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimRight(strings.ToUpper(cleaned), "=")
	if cleaned == "" {
		return nil, ErrInvalidSecret
	}

	raw, err := secretEncoding.DecodeString(cleaned)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

// EncodeSecret returns the unpadded upper-case base32 form of secret.
func EncodeSecret(secret []byte) string {
	return secretEncoding.EncodeToString(secret)
}

// GenerateSecret returns size random bytes from crypto/rand and their base32
// encoding. A non-positive size selects DefaultSecretSize.
func GenerateSecret(size int) ([]byte, string, error) {
	if size <= 0 {
		size = DefaultSecretSize
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, EncodeSecret(raw), nil
}
