package gateway

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const pixQRSize = 256

// RenderPixQRCode encodes a PIX copy-and-paste payload as a base64 PNG.
func RenderPixQRCode(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("pix payload is empty")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, pixQRSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode pix qr code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
