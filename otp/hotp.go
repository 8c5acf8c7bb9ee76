package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"
	"strings"
)

// Algorithm names the HMAC hash used for code generation.
type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
)

const maxDigits = 10

// ParseAlgorithm maps a case-insensitive name to an Algorithm. The empty
// string selects SHA1.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "SHA1":
		return AlgorithmSHA1, nil
	case "SHA256":
		return AlgorithmSHA256, nil
	case "SHA512":
		return AlgorithmSHA512, nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}

func (a Algorithm) hashFunc() (func() hash.Hash, error) {
	switch a {
	case "", AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// Generate returns the HMAC-SHA1 HOTP code for counter.
func Generate(secret []byte, counter uint64, digits int) (string, error) {
	return GenerateWithAlgorithm(secret, counter, digits, AlgorithmSHA1)
}

// GenerateWithAlgorithm returns the HOTP code for counter using the given
// HMAC algorithm, left-padded with zeros to digits characters.
func GenerateWithAlgorithm(secret []byte, counter uint64, digits int, alg Algorithm) (string, error) {
	if len(secret) == 0 {
		return "", ErrInvalidSecret
	}
	if digits < 1 || digits > maxDigits {
		return "", ErrInvalidDigits
	}
	hf, err := alg.hashFunc()
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := uint64(sum[offset]&0x7f)<<24 |
		uint64(sum[offset+1])<<16 |
		uint64(sum[offset+2])<<8 |
		uint64(sum[offset+3])

	return formatCode(bin%pow10(digits), digits), nil
}

func pow10(n int) uint64 {
	out := uint64(1)
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}

func formatCode(v uint64, digits int) string {
	buf := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf)
}
