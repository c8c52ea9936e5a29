package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/tiff"

	"github.com/mhelsper/cr35cap/internal/cr35"
)

// ToGray16 converts an assembled exposure to an image.Gray16. Samples
// are copied; the exposure buffer is not retained.
func ToGray16(img *cr35.Image) *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		row := img.Pix[y*img.Width : (y+1)*img.Width]
		off := y * out.Stride
		for x, v := range row {
			// Gray16 stores big-endian samples
			out.Pix[off+2*x] = byte(v >> 8)
			out.Pix[off+2*x+1] = byte(v)
		}
	}
	return out
}

// toGray8 downsamples an exposure to 8 bits for preview and PDF
// embedding.
func toGray8(img *cr35.Image) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		row := img.Pix[y*img.Width : (y+1)*img.Width]
		dst := out.Pix[y*out.Stride : y*out.Stride+img.Width]
		for x, v := range row {
			dst[x] = byte(v >> 8)
		}
	}
	return out
}

// EncodePNG encodes the exposure as a 16-bit grayscale PNG.
func EncodePNG(img *cr35.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, ToGray16(img)); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeTIFF encodes the exposure as a deflate-compressed 16-bit
// grayscale TIFF, the lossless interchange format for radiographs.
func EncodeTIFF(img *cr35.Image) ([]byte, error) {
	var buf bytes.Buffer
	opts := &tiff.Options{Compression: tiff.Deflate, Predictor: true}
	if err := tiff.Encode(&buf, ToGray16(img), opts); err != nil {
		return nil, fmt.Errorf("encode TIFF: %w", err)
	}
	return buf.Bytes(), nil
}

// PreviewPNG encodes an 8-bit preview of the exposure for web display.
func PreviewPNG(img *cr35.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, toGray8(img)); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePNG writes the exposure to path as a 16-bit grayscale PNG.
func WritePNG(img *cr35.Image, path string) error {
	data, err := EncodePNG(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// WriteTIFF writes the exposure to path as a 16-bit grayscale TIFF.
func WriteTIFF(img *cr35.Image, path string) error {
	data, err := EncodeTIFF(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
