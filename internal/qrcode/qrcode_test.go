package qrcode

import (
	"bytes"
	"strings"
	"testing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestPNG(t *testing.T) {
	img, err := PNG("00020126580014br.gov.bcb.pix0136123e4567-e12b-12d1-a456-4266554400005204000053039865802BR5913Fulano de Tal6008BRASILIA62070503***63041D3D", 0)
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if !bytes.HasPrefix(img, pngMagic) {
		t.Fatal("expected PNG signature")
	}
}

func TestPNGRejectsEmptyCode(t *testing.T) {
	if _, err := PNG("", 0); err == nil {
		t.Fatal("expected error for empty code")
	}
}

func TestDataURL(t *testing.T) {
	url, err := DataURL("000201")
	if err != nil {
		t.Fatalf("data url: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected data url prefix: %.40s", url)
	}
}
