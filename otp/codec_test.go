package otp

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeSecretRoundTrip(t *testing.T) {
	raw, encoded, err := GenerateSecret(20)
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(raw) != 20 {
		t.Fatalf("expected 20 byte secret, got %d", len(raw))
	}

	for _, in := range []string{encoded, "  " + encoded + " ", toLower(encoded), encoded + "===="} {
		decoded, err := DecodeSecret(in)
		if err != nil {
			t.Fatalf("DecodeSecret(%q) failed: %v", in, err)
		}
		if !bytes.Equal(decoded, raw) {
			t.Fatalf("DecodeSecret(%q) mismatch", in)
		}
	}
}

func TestDecodeSecretKnownValue(t *testing.T) {
	decoded, err := DecodeSecret("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ")
	if err != nil {
		t.Fatalf("DecodeSecret failed: %v", err)
	}
	if string(decoded) != "12345678901234567890" {
		t.Fatalf("unexpected decode %q", decoded)
	}
}

func TestDecodeSecretRejectsInvalidInput(t *testing.T) {
	for _, in := range []string{"", "   ", "====", "ABC1", "JBSWY3DP!", "JBSWY3DP0"} {
		if _, err := DecodeSecret(in); !errors.Is(err, ErrInvalidSecret) {
			t.Fatalf("DecodeSecret(%q): expected ErrInvalidSecret, got %v", in, err)
		}
	}
}

func TestGenerateSecretIsRandom(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		_, encoded, err := GenerateSecret(0)
		if err != nil {
			t.Fatalf("GenerateSecret failed: %v", err)
		}
		if _, dup := seen[encoded]; dup {
			t.Fatalf("duplicate secret generated: %s", encoded)
		}
		seen[encoded] = struct{}{}
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
