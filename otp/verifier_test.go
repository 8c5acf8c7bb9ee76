package otp

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyRFC6238Vectors(t *testing.T) {
	cases := []struct {
		name   string
		alg    Algorithm
		secret []byte
		codes  map[int64]string
	}{
		{
			name:   "SHA1",
			alg:    AlgorithmSHA1,
			secret: []byte("12345678901234567890"),
			codes: map[int64]string{
				59:          "94287082",
				1111111109:  "07081804",
				1111111111:  "14050471",
				1234567890:  "89005924",
				2000000000:  "69279037",
				20000000000: "65353130",
			},
		},
		{
			name:   "SHA256",
			alg:    AlgorithmSHA256,
			secret: []byte("12345678901234567890123456789012"),
			codes: map[int64]string{
				59:          "46119246",
				1111111109:  "68084774",
				1111111111:  "67062674",
				1234567890:  "91819424",
				2000000000:  "90698825",
				20000000000: "77737706",
			},
		},
		{
			name:   "SHA512",
			alg:    AlgorithmSHA512,
			secret: []byte("1234567890123456789012345678901234567890123456789012345678901234"),
			codes: map[int64]string{
				59:          "90693936",
				1111111109:  "25091201",
				1111111111:  "99943326",
				1234567890:  "93441116",
				2000000000:  "38618901",
				20000000000: "47863826",
			},
		},
	}

	for _, tc := range cases {
		v := Verifier{Digits: 8, Period: 30, Window: 0, Algorithm: tc.alg}
		for ts, code := range tc.codes {
			ok, err := v.Verify(tc.secret, code, time.Unix(ts, 0))
			if err != nil || !ok {
				t.Fatalf("%s vector failed at t=%d, ok=%v err=%v", tc.name, ts, ok, err)
			}
		}
	}
}

func TestVerifyWindowScenario(t *testing.T) {
	v := Verifier{Digits: 6, Period: 30, Window: 1}
	now := time.Unix(1700000000, 0)

	accepted := map[uint64]bool{56666666: true, 56666665: true, 56666667: true, 56666664: false, 56666668: false}
	for counter, want := range accepted {
		code, err := Generate(rfcSecret, counter, 6)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		matched, ok, err := v.Match(rfcSecret, code, now)
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if ok != want {
			t.Fatalf("counter %d: expected accepted=%v, got %v", counter, want, ok)
		}
		if ok && matched != counter {
			t.Fatalf("counter %d: matched wrong counter %d", counter, matched)
		}
	}
}

func TestVerifyWindowBoundaries(t *testing.T) {
	secret, _, err := GenerateSecret(0)
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	now := time.Unix(1234567890, 0)
	base := CounterFromTime(uint64(now.Unix()), 30)

	for window := 0; window <= 3; window++ {
		v := Verifier{Digits: 8, Period: 30, Window: window}
		for k := 0; k <= window; k++ {
			for _, counter := range []uint64{base - uint64(k), base + uint64(k)} {
				code, _ := Generate(secret, counter, 8)
				if ok, err := v.Verify(secret, code, now); err != nil || !ok {
					t.Fatalf("window=%d k=%d: expected accept, ok=%v err=%v", window, k, ok, err)
				}
			}
		}
		for _, counter := range []uint64{base - uint64(window+1), base + uint64(window+1)} {
			code, _ := Generate(secret, counter, 8)
			if ok, _ := v.Verify(secret, code, now); ok {
				t.Fatalf("window=%d: expected reject for counter %d", window, counter)
			}
		}
	}
}

func TestVerifyPrefersCurrentStep(t *testing.T) {
	v := Verifier{Digits: 6, Period: 30, Window: 2}
	now := time.Unix(1700000000, 0)
	code, _ := Generate(rfcSecret, 56666666, 6)

	counter, ok, err := v.Match(rfcSecret, code, now)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	if counter != 56666666 {
		t.Fatalf("expected current counter, got %d", counter)
	}
}

func TestVerifySkipsNegativeCounters(t *testing.T) {
	v := Verifier{Digits: 6, Period: 30, Window: 2}
	code, _ := Generate(rfcSecret, 0, 6)

	counter, ok, err := v.Match(rfcSecret, code, time.Unix(10, 0))
	if err != nil || !ok {
		t.Fatalf("expected counter 0 accepted near epoch, ok=%v err=%v", ok, err)
	}
	if counter != 0 {
		t.Fatalf("expected counter 0, got %d", counter)
	}
}

func TestVerifyMalformedCodeIsMismatch(t *testing.T) {
	v := Verifier{Digits: 6, Period: 30, Window: 1}
	for _, code := range []string{"", "12345", "1234567", "12a456", "      "} {
		ok, err := v.Verify(rfcSecret, code, time.Now())
		if err != nil {
			t.Fatalf("code %q: unexpected error %v", code, err)
		}
		if ok {
			t.Fatalf("code %q: expected rejection", code)
		}
	}
}

func TestVerifyTrimsWhitespace(t *testing.T) {
	v := Verifier{Digits: 6, Period: 30}
	now := time.Unix(1700000000, 0)
	code, _ := Generate(rfcSecret, 56666666, 6)
	if ok, err := v.Verify(rfcSecret, " "+code+"\n", now); err != nil || !ok {
		t.Fatalf("expected padded code accepted, ok=%v err=%v", ok, err)
	}
}

func TestVerifyEmptySecretIsError(t *testing.T) {
	v := Verifier{Digits: 6, Period: 30}
	if _, err := v.Verify(nil, "123456", time.Now()); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrInvalidSecret, got %v", err)
	}
}

func TestVerifySelfConsistency(t *testing.T) {
	v := Verifier{Digits: 6, Period: 30, Window: 1}
	for i := 0; i < 50; i++ {
		secret, _, err := GenerateSecret(0)
		if err != nil {
			t.Fatalf("GenerateSecret failed: %v", err)
		}
		now := time.Unix(1600000000+int64(i)*7919, 0)
		code, err := Generate(secret, CounterFromTime(uint64(now.Unix()), 30), 6)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if ok, err := v.Verify(secret, code, now); err != nil || !ok {
			t.Fatalf("iteration %d: self-generated code rejected", i)
		}
	}
}
