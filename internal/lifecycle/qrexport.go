package lifecycle

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// qrSize is the rendered PNG's side length in pixels, large enough to scan
// comfortably from an admin-UI screenshot or a phone camera.
const qrSize = 256

// FingerprintQR renders a QR code PNG encoding id's session fingerprint, for
// out-of-band operator confirmation that a freshly imported session belongs
// to the expected account (spec.md §4.9's import boundary has no built-in
// display of who just got authorized; this gives the admin UI one).
func FingerprintQR(id Identity) ([]byte, error) {
	fingerprint := fmt.Sprintf("tgsentinel:session:%d:%s", id.ID, id.Username)
	png, err := qrcode.Encode(fingerprint, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: render session fingerprint qr: %w", err)
	}
	return png, nil
}
