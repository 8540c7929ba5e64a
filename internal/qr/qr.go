package qr

import (
	"github.com/skip2/go-qrcode"
)

// Render encodes an admission token as a 256x256 PNG for download and
// email attachments. The token string itself is the scannable content.
func Render(token string) ([]byte, error) {
	return qrcode.Encode(token, qrcode.Medium, 256)
}
