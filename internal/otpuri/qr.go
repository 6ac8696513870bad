package otpuri

import (
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"

	"github.com/starford/lightauth/internal/models"
)

// DefaultQRSize is the PNG edge length used when no size is given.
const DefaultQRSize = 256

// ErrQRCode is returned when the QR image cannot be generated.
var ErrQRCode = errors.New("failed to generate QR code")

// QRCode renders the provisioning URI of a as a PNG image.
func QRCode(a models.Account, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := skipqrcode.Encode(Build(a), skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrQRCode, err)
	}
	return png, nil
}

// QRText renders the provisioning URI of a as terminal text, two modules
// per character cell using half-block glyphs.
func QRText(a models.Account) (string, error) {
	q, err := skipqrcode.New(Build(a), skipqrcode.Medium)
	if err != nil {
		return "", errors.Join(ErrQRCode, err)
	}
	bits := q.Bitmap()

	var b strings.Builder
	for y := 0; y < len(bits); y += 2 {
		for x := range bits[y] {
			top := bits[y][x]
			bottom := y+1 < len(bits) && bits[y+1][x]
			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
