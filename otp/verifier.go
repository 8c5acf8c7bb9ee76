package otp

import (
	"crypto/subtle"
	"strings"
	"time"
)

// DefaultDigits is the code length used when a Verifier leaves Digits unset.
const DefaultDigits = 6

// Verifier checks submitted TOTP codes against a shared secret.
//
// Window is the number of time steps accepted on each side of the current
// step. Candidates are tried in the order 0, -1, +1, -2, +2, ... and each
// candidate uses its own counter.
type Verifier struct {
	Digits    int
	Period    uint32
	Window    int
	Algorithm Algorithm
}

// Verify reports whether code is valid for secret at now.
func (v Verifier) Verify(secret []byte, code string, now time.Time) (bool, error) {
	_, ok, err := v.Match(secret, code, now)
	return ok, err
}

// Match is Verify that also returns the counter the code matched. A
// malformed code is a mismatch, not an error; errors are reserved for a
// broken secret or verifier configuration.
func (v Verifier) Match(secret []byte, code string, now time.Time) (uint64, bool, error) {
	digits := v.Digits
	if digits == 0 {
		digits = DefaultDigits
	}
	if len(secret) == 0 {
		return 0, false, ErrInvalidSecret
	}
	if digits < 1 || digits > maxDigits {
		return 0, false, ErrInvalidDigits
	}
	if _, err := v.Algorithm.hashFunc(); err != nil {
		return 0, false, err
	}

	submitted := strings.TrimSpace(code)
	if len(submitted) != digits || !isDigits(submitted) {
		return 0, false, nil
	}

	unix := now.Unix()
	if unix < 0 {
		return 0, false, nil
	}
	base := CounterFromTime(uint64(unix), v.Period)

	window := v.Window
	if window < 0 {
		window = 0
	}
	for i := 0; i <= 2*window; i++ {
		offset := (i + 1) / 2
		var counter uint64
		if i%2 == 1 {
			if base < uint64(offset) {
				continue
			}
			counter = base - uint64(offset)
		} else {
			counter = base + uint64(offset)
		}

		candidate, err := GenerateWithAlgorithm(secret, counter, digits, v.Algorithm)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(submitted)) == 1 {
			return counter, true, nil
		}
	}
	return 0, false, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
