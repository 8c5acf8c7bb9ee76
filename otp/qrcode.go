package otp

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRCodeSize is the PNG edge length in pixels.
const DefaultQRCodeSize = 256

// QRCodePNG renders uri as a PNG QR code of the given pixel size.
func QRCodePNG(uri string, size int) ([]byte, error) {
	if uri == "" {
		return nil, errors.New("empty provisioning uri")
	}
	if size <= 0 {
		size = DefaultQRCodeSize
	}
	return qrcode.Encode(uri, qrcode.Medium, size)
}
