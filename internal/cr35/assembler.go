package cr35

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
)

// Image is a dense, cropped 16-bit grayscale raster assembled from the
// device's segmented pixel stream. Pix is row-major with Width*Height
// entries; cells not covered by any segment are 0xFFFF (white).
type Image struct {
	Pix    []uint16
	Width  int
	Height int
}

// pixelSegment is a horizontally contiguous run of device pixels. base
// is the byte offset of the first pixel word in the raw stream; the
// pixels are copied out of the stream only when the raster is rendered.
type pixelSegment struct {
	xStart int
	base   int
	count  int
}

// scanLine is one device line: its segments plus the logical line width
// including gaps.
type scanLine struct {
	segments []pixelSegment
	endX     int
}

// lineAssembler accumulates scan lines while walking the word stream.
type lineAssembler struct {
	image   []scanLine
	current scanLine
	seg     pixelSegment
	inLine  bool
	x       uint16
}

// flushSegment appends the open segment to the current line if it holds
// any pixels, then resets it.
func (a *lineAssembler) flushSegment() {
	if a.seg.count > 0 {
		a.current.segments = append(a.current.segments, a.seg)
	}
	a.seg = pixelSegment{}
}

// flushLine closes the open line: records its end x and appends it to
// the image if it holds any segment.
func (a *lineAssembler) flushLine() {
	if !a.inLine {
		return
	}
	a.flushSegment()
	a.current.endX = int(a.x)
	if len(a.current.segments) > 0 {
		a.image = append(a.image, a.current)
	}
	a.current = scanLine{}
	a.inLine = false
	a.x = 0
}

// assembleImage walks the little-endian 16-bit word stream in data,
// interpreting control markers and pixel runs, and renders the cropped
// raster. Returns nil when the stream holds no pixels.
func assembleImage(data []byte) *Image {
	var asm lineAssembler
	parsingPixels := false
	pixLine := 0 // expected line width from the embedded config, 0 = unknown
	pos := 0

	readWord := func() (uint16, bool) {
		w, err := readLE16(data[pos:])
		if err != nil {
			return 0, false
		}
		pos += 2
		return w, true
	}

	for {
		word, ok := readWord()
		if !ok {
			break
		}

		if word >= markerFloor {
			switch word {
			case markerLineStart:
				x, ok := readWord()
				if !ok {
					break
				}
				// New line begins. Flush any previously open line now.
				asm.flushLine()
				asm.current = scanLine{}
				asm.seg = pixelSegment{}
				asm.inLine = true
				asm.x = x
				parsingPixels = true

			case markerGap:
				gap, ok := readWord()
				if !ok {
					break
				}
				if asm.inLine {
					asm.flushSegment()
					asm.x += gap
					parsingPixels = true
				}

			case markerConfig:
				size, ok := readWord()
				if !ok {
					break
				}
				if pos+int(size) <= len(data) {
					if size > 0 {
						// Drop the trailing NUL before parsing.
						pixLine = parseImageConfig(data[pos : pos+int(size)-1])
					}
					pos += int(size)
				} else {
					pos = len(data) // skip incomplete data
				}

			case markerNOP:
				// padding

			case markerImageEnd:
				asm.flushLine()
				parsingPixels = false

			default:
				slog.Warn("unknown data marker", "marker", fmt.Sprintf("0x%04X", word))
			}
		} else if parsingPixels {
			if !asm.inLine {
				continue
			}
			if asm.seg.count == 0 {
				asm.seg.xStart = int(asm.x)
				asm.seg.base = pos - 2
			}
			asm.seg.count++
			asm.x++
		}
	}

	// Stream may end without an explicit IMAGE_END; flush what we have.
	asm.flushLine()

	slog.Debug("image stream parsed", "lines", len(asm.image))
	if len(asm.image) == 0 {
		return nil
	}

	// Crop window over all non-empty segments.
	minLeft := math.MaxInt
	maxRight := 0
	for _, line := range asm.image {
		for _, seg := range line.segments {
			if seg.count <= 0 {
				continue
			}
			minLeft = min(minLeft, seg.xStart)
			maxRight = max(maxRight, seg.xStart+seg.count)
		}
	}
	if maxRight == 0 {
		return nil
	}

	width := maxRight - minLeft
	height := len(asm.image)
	pix := make([]uint16, width*height)
	for i := range pix {
		pix[i] = 0xFFFF
	}

	for y, line := range asm.image {
		if pixLine > 0 && line.endX != pixLine {
			slog.Warn("scanline width mismatch",
				"line", y, "endX", line.endX, "pixLine", pixLine,
				"segments", len(line.segments))
		}
		row := pix[y*width : (y+1)*width]
		for _, seg := range line.segments {
			if seg.count <= 0 {
				continue
			}
			offset := seg.xStart - minLeft
			if offset < 0 {
				continue
			}
			n := min(seg.count, width-offset)
			for i := 0; i < n; i++ {
				row[offset+i] = binary.LittleEndian.Uint16(data[seg.base+2*i:])
			}
		}
	}

	return &Image{Pix: pix, Width: width, Height: height}
}
