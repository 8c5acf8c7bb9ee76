// Package sealing encrypts TOTP shared secrets at rest.
//
// A sealed value is a version byte followed by the payload. Version 0 holds
// the secret as-is and is only produced and accepted when no key is
// configured. Version 1 is nonce || XChaCha20-Poly1305 ciphertext, with the
// owning method ID bound as additional data so a sealed secret cannot be
// moved between methods.
package sealing

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	versionPlain  byte = 0
	versionSealed byte = 1
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	ErrInvalidKey    = errors.New("sealing key must be 32 bytes")
	ErrMalformed     = errors.New("sealed value malformed")
	ErrOpenFailed    = errors.New("sealed value failed authentication")
	ErrPlainRejected = errors.New("unsealed value rejected while a key is configured")
)

// Sealer seals and opens secrets. The zero value stores secrets unsealed.
type Sealer struct {
	aead cipher.AEAD
}

// New returns a Sealer. An empty key yields a pass-through Sealer.
func New(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return &Sealer{}, nil
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return &Sealer{aead: aead}, nil
}

// Enabled reports whether values are encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil && s.aead != nil
}

// Seal protects secret for the owner identified by bind.
func (s *Sealer) Seal(secret []byte, bind string) ([]byte, error) {
	if !s.Enabled() {
		out := make([]byte, 0, len(secret)+1)
		out = append(out, versionPlain)
		return append(out, secret...), nil
	}

	nonce := make([]byte, s.aead.NonceSize(), 1+s.aead.NonceSize()+len(secret)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := append([]byte{versionSealed}, nonce...)
	return s.aead.Seal(out, nonce, secret, []byte(bind)), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte, bind string) ([]byte, error) {
	if len(sealed) < 2 {
		return nil, ErrMalformed
	}

	switch sealed[0] {
	case versionPlain:
		if s.Enabled() {
			return nil, ErrPlainRejected
		}
		out := make([]byte, len(sealed)-1)
		copy(out, sealed[1:])
		return out, nil
	case versionSealed:
		if !s.Enabled() {
			return nil, ErrMalformed
		}
		body := sealed[1:]
		ns := s.aead.NonceSize()
		if len(body) < ns+s.aead.Overhead() {
			return nil, ErrMalformed
		}
		plain, err := s.aead.Open(nil, body[:ns], body[ns:], []byte(bind))
		if err != nil {
			return nil, ErrOpenFailed
		}
		return plain, nil
	default:
		return nil, ErrMalformed
	}
}

// DeriveKey expands key into an independent KeySize subkey labelled by
// purpose, using HKDF-SHA256. An empty key yields a nil subkey.
func DeriveKey(key []byte, purpose string) ([]byte, error) {
	if len(key) == 0 {
		return nil, nil
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(purpose)), out); err != nil {
		return nil, err
	}
	return out, nil
}
