package otp

import (
	"bytes"
	"testing"

	pqotp "github.com/pquerna/otp"
)

func TestProvisioningURIParsesAsKey(t *testing.T) {
	_, secret, err := GenerateSecret(0)
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	uri := ProvisioningURI(URIParams{
		Issuer:    "Clinic Portal",
		Account:   "dr.smith@example.com",
		Secret:    secret,
		Digits:    6,
		Period:    30,
		Algorithm: AlgorithmSHA1,
	})

	key, err := pqotp.NewKeyFromURL(uri)
	if err != nil {
		t.Fatalf("NewKeyFromURL(%q) failed: %v", uri, err)
	}
	if key.Type() != "totp" {
		t.Fatalf("expected totp type, got %q", key.Type())
	}
	if key.Issuer() != "Clinic Portal" {
		t.Fatalf("unexpected issuer %q", key.Issuer())
	}
	if key.AccountName() != "dr.smith@example.com" {
		t.Fatalf("unexpected account %q", key.AccountName())
	}
	if key.Secret() != secret {
		t.Fatalf("secret mismatch: %q vs %q", key.Secret(), secret)
	}
}

func TestQRCodePNG(t *testing.T) {
	uri := ProvisioningURI(URIParams{Issuer: "Clinic", Account: "u1", Secret: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"})
	png, err := QRCodePNG(uri, 128)
	if err != nil {
		t.Fatalf("QRCodePNG failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("expected PNG signature")
	}
	if _, err := QRCodePNG("", 128); err == nil {
		t.Fatal("expected error for empty uri")
	}
}
