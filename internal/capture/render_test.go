package capture

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/mhelsper/cr35cap/internal/cr35"
)

func testExposure() *cr35.Image {
	return &cr35.Image{
		Width:  3,
		Height: 2,
		Pix: []uint16{
			0x0000, 0x8000, 0xFFFF,
			0x1234, 0x4321, 0x0F0F,
		},
	}
}

func TestToGray16(t *testing.T) {
	img := ToGray16(testExposure())
	if got := img.Bounds(); got.Dx() != 3 || got.Dy() != 2 {
		t.Fatalf("bounds = %v, want 3x2", got)
	}
	tests := []struct {
		x, y int
		want uint16
	}{
		{0, 0, 0x0000},
		{1, 0, 0x8000},
		{2, 0, 0xFFFF},
		{0, 1, 0x1234},
		{2, 1, 0x0F0F},
	}
	for _, tt := range tests {
		if got := img.Gray16At(tt.x, tt.y).Y; got != tt.want {
			t.Errorf("(%d,%d) = 0x%04X, want 0x%04X", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	data, err := EncodePNG(testExposure())
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gray, ok := decoded.(*image.Gray16)
	if !ok {
		t.Fatalf("decoded type = %T, want *image.Gray16", decoded)
	}
	if got := gray.Gray16At(1, 1).Y; got != 0x4321 {
		t.Errorf("(1,1) = 0x%04X, want 0x4321", got)
	}
}

func TestEncodeTIFFRoundTrip(t *testing.T) {
	data, err := EncodeTIFF(testExposure())
	if err != nil {
		t.Fatalf("EncodeTIFF: %v", err)
	}
	decoded, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("bounds = %v, want 3x2", b)
	}
	r, _, _, _ := decoded.At(2, 0).RGBA()
	if uint16(r) != 0xFFFF {
		t.Errorf("(2,0) = 0x%04X, want 0xFFFF", r)
	}
}

func TestPreviewPNGIs8Bit(t *testing.T) {
	data, err := PreviewPNG(testExposure())
	if err != nil {
		t.Fatalf("PreviewPNG: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gray, ok := decoded.(*image.Gray)
	if !ok {
		t.Fatalf("decoded type = %T, want *image.Gray", decoded)
	}
	if got := gray.GrayAt(1, 0).Y; got != 0x80 {
		t.Errorf("(1,0) = 0x%02X, want 0x80", got)
	}
}
