package capture

import (
	"bytes"
	"fmt"
	"image/png"
	"os"

	"github.com/go-pdf/fpdf"

	"github.com/mhelsper/cr35cap/internal/cr35"
)

// defaultDPI is assumed when the caller does not know the plate
// resolution.
const defaultDPI = 300

// GeneratePDF renders the exposure into a single-page PDF in memory,
// page-sized from the pixel geometry at the given DPI.
func GeneratePDF(img *cr35.Image, dpi int) ([]byte, error) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("no exposure to write")
	}
	if dpi <= 0 {
		dpi = defaultDPI
	}

	widthMM := float64(img.Width) / float64(dpi) * 25.4
	heightMM := float64(img.Height) / float64(dpi) * 25.4

	pdf := fpdf.New("P", "mm", "", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: widthMM, Ht: heightMM})

	// PDF viewers handle 8-bit grayscale PNG universally; the 16-bit
	// original stays available via the TIFF/PNG writers.
	var buf bytes.Buffer
	if err := png.Encode(&buf, toGray8(img)); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	pdf.RegisterImageOptionsReader("exposure", fpdf.ImageOptions{ImageType: "PNG"}, &buf)
	pdf.ImageOptions("exposure", 0, 0, widthMM, heightMM, false, fpdf.ImageOptions{}, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("generate PDF: %w", err)
	}
	return out.Bytes(), nil
}

// WritePDF writes the exposure to path as a single-page PDF.
func WritePDF(img *cr35.Image, dpi int, path string) error {
	data, err := GeneratePDF(img, dpi)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
