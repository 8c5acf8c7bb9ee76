package goMFA

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	methodRecordVersionV1  = 1
	channelRecordVersionV1 = 1
	channelRecordSize      = 1 + 1 + 8 + 8 + 32
)

var errMethodRecordCorrupt = errors.New("invalid mfa method record")

// encodeMethod writes m as:
// version(1) type(1) state(1) verified(1) createdAt(8) lastUsedAt(8)
// id, userID, destination, secret (each uint16 length + bytes).
// Times are unix nanoseconds; 0 is the zero time or, for lastUsedAt, never.
func encodeMethod(m MFAMethod) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(methodRecordVersionV1)
	buf.WriteByte(byte(m.Type))
	buf.WriteByte(byte(m.State))
	if m.Verified {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	var createdAt int64
	if !m.CreatedAt.IsZero() {
		createdAt = m.CreatedAt.UnixNano()
	}
	if err := binary.Write(&buf, binary.BigEndian, createdAt); err != nil {
		return nil, err
	}
	var lastUsed int64
	if m.LastUsedAt != nil {
		lastUsed = m.LastUsedAt.UnixNano()
	}
	if err := binary.Write(&buf, binary.BigEndian, lastUsed); err != nil {
		return nil, err
	}

	for _, field := range [][]byte{[]byte(m.ID), []byte(m.UserID), []byte(m.Destination), m.Secret} {
		if len(field) > 65535 {
			return nil, errors.New("mfa method field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.Write(field)
	}
	return buf.Bytes(), nil
}

func decodeMethod(data []byte) (MFAMethod, error) {
	reader := bytes.NewReader(data)

	var header [4]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return MFAMethod{}, errMethodRecordCorrupt
	}
	if header[0] != methodRecordVersionV1 {
		return MFAMethod{}, errMethodRecordCorrupt
	}

	m := MFAMethod{
		Type:     MethodType(header[1]),
		State:    MethodState(header[2]),
		Verified: header[3] == 1,
	}

	var createdAt, lastUsed int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return MFAMethod{}, errMethodRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &lastUsed); err != nil {
		return MFAMethod{}, errMethodRecordCorrupt
	}
	if createdAt != 0 {
		m.CreatedAt = time.Unix(0, createdAt).UTC()
	}
	if lastUsed != 0 {
		at := time.Unix(0, lastUsed).UTC()
		m.LastUsedAt = &at
	}

	fields := make([][]byte, 4)
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return MFAMethod{}, errMethodRecordCorrupt
		}
		fields[i] = make([]byte, n)
		if _, err := io.ReadFull(reader, fields[i]); err != nil {
			return MFAMethod{}, errMethodRecordCorrupt
		}
	}
	m.ID = string(fields[0])
	m.UserID = string(fields[1])
	m.Destination = string(fields[2])
	if len(fields[3]) > 0 {
		m.Secret = fields[3]
	}

	if !m.Type.Valid() || m.State < StateProvisioned || m.State > StateDisabled {
		return MFAMethod{}, errMethodRecordCorrupt
	}
	return m, nil
}

// encodeChannelRecord matches the layout read by consumeChannelLua.
func encodeChannelRecord(rec ChannelOTPRecord) []byte {
	out := make([]byte, channelRecordSize)
	out[0] = channelRecordVersionV1
	if rec.Used {
		out[1] = 1
	}
	binary.BigEndian.PutUint64(out[2:10], uint64(rec.IssuedAt.UnixMilli()))
	binary.BigEndian.PutUint64(out[10:18], uint64(rec.ExpiresAt.UnixMilli()))
	copy(out[18:], rec.CodeHash[:])
	return out
}

func decodeChannelRecord(data []byte) (ChannelOTPRecord, error) {
	if len(data) != channelRecordSize || data[0] != channelRecordVersionV1 {
		return ChannelOTPRecord{}, errors.New("invalid channel code record")
	}
	rec := ChannelOTPRecord{
		Used:      data[1] == 1,
		IssuedAt:  time.UnixMilli(int64(binary.BigEndian.Uint64(data[2:10]))).UTC(),
		ExpiresAt: time.UnixMilli(int64(binary.BigEndian.Uint64(data[10:18]))).UTC(),
	}
	copy(rec.CodeHash[:], data[18:])
	return rec, nil
}
