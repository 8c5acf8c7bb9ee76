package goMFA

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrEthical07/goMFA/backup"
	"github.com/MrEthical07/goMFA/otp"
	"github.com/google/uuid"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// SetupMethod provisions a new method of type t for userID and returns the
// one-time enrolment material.
//
// destination depends on t: an E.164 phone number for MethodSMS, an email
// address for MethodEmail, the platform credential ID for MethodBiometric
// and an optional account label for MethodTOTP (defaults to userID).
//
// A Provisioned or Disabled method of the same type is replaced together
// with its backup codes. An Enabled one returns ErrMethodAlreadyEnabled; it
// must be disabled first. The new method is Provisioned until Enable.
func (e *Engine) SetupMethod(ctx context.Context, userID string, t MethodType, destination string) (*SetupResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	result, err := e.setupMethod(ctx, userID, t, destination)

	rec := auditRecord{
		eventType: auditEventSetup,
		userID:    userID,
		t:         t,
		success:   err == nil,
		err:       err,
	}
	if result != nil {
		rec.methodID = result.MethodID
		if len(result.BackupCodes) > 0 {
			rec.metadata = map[string]string{"backup_codes": strconv.Itoa(len(result.BackupCodes))}
		}
	}
	e.emitAudit(ctx, rec)

	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			e.logger.ErrorContext(ctx, "mfa setup failed", "user_id", userID, "method", t.String(), "error", err)
		}
		return nil, err
	}
	e.metricInc(MetricSetupStarted)
	return result, nil
}

func (e *Engine) setupMethod(ctx context.Context, userID string, t MethodType, destination string) (*SetupResult, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if !t.Valid() {
		return nil, ErrUnsupportedMethod
	}
	dest, err := normalizeDestination(t, destination)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.GetMethod(ctx, userID, t)
	switch {
	case err == nil && existing.Enabled():
		return nil, ErrMethodAlreadyEnabled
	case err != nil && !errors.Is(err, ErrMethodNotFound):
		return nil, err
	}

	m := MFAMethod{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      t,
		State:     StateProvisioned,
		CreatedAt: e.clock(),
	}
	result := &SetupResult{
		MethodID: m.ID,
		Type:     t,
		State:    m.State,
	}

	var hashes [][32]byte
	switch t {
	case MethodTOTP:
		account := dest
		if account == "" {
			account = userID
		}
		hashes, err = e.provisionTOTP(&m, account, result)
		if err != nil {
			return nil, err
		}
	default:
		m.Destination = dest
	}

	if err := e.store.SaveMethod(ctx, m); err != nil {
		return nil, err
	}
	if t == MethodTOTP {
		if err := e.store.ReplaceBackupCodes(ctx, m.ID, hashes); err != nil {
			return nil, err
		}
	}
	if t.isChannel() {
		code, err := e.issueChannelCode(ctx, m)
		if err != nil {
			return nil, err
		}
		result.Channel = code
	}
	return result, nil
}

// provisionTOTP fills m.Secret (sealed) and the enrolment material in
// result, and returns the backup code digests to persist.
func (e *Engine) provisionTOTP(m *MFAMethod, account string, result *SetupResult) ([][32]byte, error) {
	raw, encoded, err := otp.GenerateSecret(e.config.TOTP.SecretSize)
	if err != nil {
		return nil, err
	}
	sealed, err := e.sealer.Seal(raw, m.ID)
	clear(raw)
	if err != nil {
		return nil, err
	}
	m.Secret = sealed

	uri := otp.ProvisioningURI(otp.URIParams{
		Issuer:    e.config.TOTP.Issuer,
		Account:   account,
		Secret:    encoded,
		Digits:    e.verifier.Digits,
		Period:    e.verifier.Period,
		Algorithm: e.verifier.Algorithm,
	})
	result.Secret = encoded
	result.ProvisioningURI = uri

	if e.config.TOTP.QRCodeSize > 0 {
		png, err := otp.QRCodePNG(uri, e.config.TOTP.QRCodeSize)
		if err != nil {
			return nil, fmt.Errorf("render qr code: %w", err)
		}
		result.QRCodePNG = png
	}

	codes, err := backup.Generate(e.config.Backup.Count, e.config.Backup.Length)
	if err != nil {
		return nil, err
	}
	result.BackupCodes = codes
	return backupHashes(m.ID, codes), nil
}

func backupHashes(methodID string, codes []string) [][32]byte {
	hashes := make([][32]byte, 0, len(codes))
	for _, code := range codes {
		hashes = append(hashes, backup.Hash(methodID, backup.Canonicalize(code)))
	}
	return hashes
}

func normalizeDestination(t MethodType, destination string) (string, error) {
	destination = strings.TrimSpace(destination)

	switch t {
	case MethodTOTP:
		if len(destination) > 256 {
			return "", fmt.Errorf("%w: account label too long", ErrInvalidDestination)
		}
		return destination, nil
	case MethodSMS:
		phone := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '-', '(', ')', '.':
				return -1
			}
			return r
		}, destination)
		if !e164Pattern.MatchString(phone) {
			return "", fmt.Errorf("%w: phone number must be E.164", ErrInvalidDestination)
		}
		return phone, nil
	case MethodEmail:
		addr, err := mail.ParseAddress(destination)
		if err != nil || addr.Address != destination || addr.Name != "" {
			return "", fmt.Errorf("%w: malformed email address", ErrInvalidDestination)
		}
		return strings.ToLower(addr.Address), nil
	case MethodBiometric:
		if destination == "" {
			return "", fmt.Errorf("%w: credential id required", ErrInvalidDestination)
		}
		return destination, nil
	default:
		return "", ErrUnsupportedMethod
	}
}

// maskDestination hides most of a phone number or email address.
func maskDestination(t MethodType, dest string) string {
	switch t {
	case MethodSMS:
		if len(dest) <= 4 {
			return dest
		}
		return strings.Repeat("*", len(dest)-4) + dest[len(dest)-4:]
	case MethodEmail:
		at := strings.LastIndexByte(dest, '@')
		if at <= 0 {
			return dest
		}
		return dest[:1] + "***" + dest[at:]
	default:
		return dest
	}
}
