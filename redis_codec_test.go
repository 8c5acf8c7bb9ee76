package goMFA

import (
	"bytes"
	"testing"
	"time"
)

func TestMethodCodecRoundTrip(t *testing.T) {
	lastUsed := testEpoch.Add(90 * time.Second)
	cases := []MFAMethod{
		{
			ID:          "m1",
			UserID:      "u1",
			Type:        MethodTOTP,
			State:       StateEnabled,
			Verified:    true,
			Secret:      []byte{1, 0, 255, 7},
			CreatedAt:   testEpoch,
			LastUsedAt:  &lastUsed,
			Destination: "",
		},
		{
			ID:          "m2",
			UserID:      "user with spaces",
			Type:        MethodSMS,
			State:       StateDisabled,
			Destination: "+15550102030",
		},
	}

	for _, in := range cases {
		data, err := encodeMethod(in)
		if err != nil {
			t.Fatalf("encodeMethod(%s) failed: %v", in.ID, err)
		}
		out, err := decodeMethod(data)
		if err != nil {
			t.Fatalf("decodeMethod(%s) failed: %v", in.ID, err)
		}

		if out.ID != in.ID || out.UserID != in.UserID || out.Type != in.Type || out.State != in.State ||
			out.Verified != in.Verified || out.Destination != in.Destination || !bytes.Equal(out.Secret, in.Secret) {
			t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
		}
		if !out.CreatedAt.Equal(in.CreatedAt) {
			t.Fatalf("created at mismatch: %v vs %v", out.CreatedAt, in.CreatedAt)
		}
		if (in.LastUsedAt == nil) != (out.LastUsedAt == nil) {
			t.Fatalf("last used presence mismatch for %s", in.ID)
		}
		if in.LastUsedAt != nil && !out.LastUsedAt.Equal(*in.LastUsedAt) {
			t.Fatalf("last used mismatch: %v vs %v", out.LastUsedAt, in.LastUsedAt)
		}
	}
}

func TestMethodCodecRejectsCorruptData(t *testing.T) {
	valid, err := encodeMethod(MFAMethod{ID: "m1", UserID: "u1", Type: MethodEmail, State: StateProvisioned})
	if err != nil {
		t.Fatalf("encodeMethod failed: %v", err)
	}

	badVersion := append([]byte(nil), valid...)
	badVersion[0] = 9
	badType := append([]byte(nil), valid...)
	badType[1] = 0
	badState := append([]byte(nil), valid...)
	badState[2] = 7

	for name, data := range map[string][]byte{
		"empty":     nil,
		"truncated": valid[:len(valid)-1],
		"version":   badVersion,
		"type":      badType,
		"state":     badState,
	} {
		if _, err := decodeMethod(data); err != errMethodRecordCorrupt {
			t.Fatalf("%s: expected errMethodRecordCorrupt, got %v", name, err)
		}
	}
}

func TestChannelRecordLayout(t *testing.T) {
	rec := ChannelOTPRecord{
		CodeHash:  digest("123456"),
		IssuedAt:  testEpoch,
		ExpiresAt: testEpoch.Add(5 * time.Minute),
		Used:      true,
	}
	data := encodeChannelRecord(rec)
	if len(data) != channelRecordSize {
		t.Fatalf("expected %d bytes, got %d", channelRecordSize, len(data))
	}
	// The consume script reads the used flag at offset 1 and expiry at 10..17.
	if data[1] != 1 {
		t.Fatal("used flag not at offset 1")
	}

	out, err := decodeChannelRecord(data)
	if err != nil {
		t.Fatalf("decodeChannelRecord failed: %v", err)
	}
	if !out.Used || !out.IssuedAt.Equal(rec.IssuedAt) || !out.ExpiresAt.Equal(rec.ExpiresAt) || out.CodeHash != rec.CodeHash {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if _, err := decodeChannelRecord(data[:10]); err == nil {
		t.Fatal("expected error for short record")
	}
}

func TestMethodRecordStateOffset(t *testing.T) {
	m := testMethod("m1", "u1", MethodSMS)
	m.State = StateDisabled
	data, err := encodeMethod(m)
	if err != nil {
		t.Fatalf("encodeMethod failed: %v", err)
	}
	// The consume scripts read the state at offset 2.
	if data[2] != byte(StateDisabled) || disabledStateArg != "3" {
		t.Fatalf("state not at offset 2: %v", data[:4])
	}
}
