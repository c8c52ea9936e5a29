package capture

import (
	"bytes"
	"testing"
)

func TestGeneratePDF(t *testing.T) {
	data, err := GeneratePDF(testExposure(), 300)
	if err != nil {
		t.Fatalf("GeneratePDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output does not start with a PDF header: %q", data[:min(len(data), 8)])
	}
}

func TestGeneratePDFDefaultsDPI(t *testing.T) {
	if _, err := GeneratePDF(testExposure(), 0); err != nil {
		t.Fatalf("GeneratePDF with dpi=0: %v", err)
	}
}

func TestGeneratePDFNoImage(t *testing.T) {
	if _, err := GeneratePDF(nil, 300); err == nil {
		t.Error("expected error for nil exposure")
	}
}
