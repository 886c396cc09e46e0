package qrcode

import (
	"encoding/base64"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered image width in pixels.
const DefaultSize = 256

// PNG renders the Pix payment code as a PNG image.
func PNG(code string, size int) ([]byte, error) {
	if code == "" {
		return nil, fmt.Errorf("cannot render an empty payment code")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := goqrcode.Encode(code, goqrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return png, nil
}

// DataURL renders the code as an inline "data:image/png;base64,..." URL.
func DataURL(code string) (string, error) {
	png, err := PNG(code, DefaultSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
