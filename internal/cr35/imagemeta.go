package cr35

import (
	"encoding/json"
	"log/slog"

	"golang.org/x/text/encoding/charmap"
)

// decodeLatin1 re-encodes device text as UTF-8. Device strings may carry
// 8-bit characters that are not valid UTF-8 on their own.
func decodeLatin1(data []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// parseImageConfig extracts pixels-per-line from the JSON blob embedded
// in the image stream by the CONFIG marker. Returns -1 when the field is
// absent or the document does not parse. The remaining fields are read
// for logging only.
func parseImageConfig(data []byte) int {
	text := decodeLatin1(data)

	var meta struct {
		ManufacturerModelName string `json:"ManufacturerModelName"`
		BitsStored            int    `json:"BitsStored"`
		AdditionalScanInfo    *struct {
			PixLine   *int `json:"PixLine"`
			SlotCount *int `json:"SlotCount"`
		} `json:"AdditionalScanInfo"`
	}
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		slog.Warn("image config JSON parse failed", "err", err)
		return -1
	}

	pixLine, slotCount := -1, -1
	if asi := meta.AdditionalScanInfo; asi != nil {
		if asi.PixLine != nil {
			pixLine = *asi.PixLine
		}
		if asi.SlotCount != nil {
			slotCount = *asi.SlotCount
		}
	}
	slog.Debug("image header parsed",
		"model", meta.ManufacturerModelName,
		"bitsStored", meta.BitsStored,
		"pixLine", pixLine,
		"slotCount", slotCount,
	)
	return pixLine
}
