package backup

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"
)

// Alphabet is the symbol set backup codes are drawn from.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultCount  = 10
	DefaultLength = 10
	// MinLength keeps each code at or above 40 bits of entropy.
	MinLength = 8
)

var (
	ErrInvalidCount  = errors.New("backup code count must be > 0")
	ErrInvalidLength = errors.New("backup code length must be >= 8")
)

// RandomIndex returns a uniformly distributed integer in [0, max).
type RandomIndex func(max int) (int, error)

// Generate returns count unique, formatted backup codes of length symbols
// each, using crypto/rand.
func Generate(count, length int) ([]string, error) {
	return GenerateWith(count, length, cryptoRandomIndex)
}

// GenerateWith is Generate with an explicit randomness source.
func GenerateWith(count, length int, random RandomIndex) ([]string, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}
	if length < MinLength {
		return nil, ErrInvalidLength
	}
	if random == nil {
		random = cryptoRandomIndex
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		raw, err := newCode(length, random)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, Format(raw))
	}
	return codes, nil
}

func newCode(length int, random RandomIndex) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := random(len(Alphabet))
		if err != nil {
			return "", err
		}
		if n < 0 || n >= len(Alphabet) {
			return "", errors.New("random index out of range")
		}
		b.WriteByte(Alphabet[n])
	}
	return b.String(), nil
}

// Format inserts a dash in the middle of codes of eight or more symbols.
func Format(code string) string {
	n := len(code)
	if n < MinLength {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// Canonicalize upper-cases code and strips dashes and whitespace so user
// input matches the generated form.
func Canonicalize(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// Hash returns the persisted digest of a canonical code. salt binds the
// digest to its owner so identical codes of different owners never collide.
func Hash(salt, canonical string) [32]byte {
	data := make([]byte, 0, len(salt)+1+len(canonical))
	data = append(data, salt...)
	data = append(data, 0)
	data = append(data, canonical...)
	return sha256.Sum256(data)
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
