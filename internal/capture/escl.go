package capture

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/OpenPrinting/go-mfp/abstract"
	"github.com/OpenPrinting/go-mfp/util/generic"
	"github.com/OpenPrinting/go-mfp/util/uuid"

	"github.com/mhelsper/cr35cap/internal/cr35"
)

// ESCLAdapter implements abstract.Scanner for the CR35, so standard
// AirScan clients can pull plate exposures. The device reads one image
// plate per cycle and only produces grayscale, which the capabilities
// advertise accordingly.
type ESCLAdapter struct {
	ctrl *Controller
	mode uint32
	dpi  int
	caps *abstract.ScannerCapabilities
}

// NewESCLAdapter creates an eSCL adapter wrapping the given Controller.
// mode selects the device acquisition mode used for every scan request;
// dpi is the nominal plate resolution reported to clients.
func NewESCLAdapter(ctrl *Controller, mode uint32, dpi int) *ESCLAdapter {
	if dpi <= 0 {
		dpi = defaultDPI
	}
	a := &ESCLAdapter{ctrl: ctrl, mode: mode, dpi: dpi}
	a.caps = a.buildCapabilities()
	return a
}

func (a *ESCLAdapter) buildCapabilities() *abstract.ScannerCapabilities {
	profile := abstract.SettingsProfile{
		ColorModes: generic.MakeBitset(abstract.ColorModeMono),
		Depths:     generic.MakeBitset(abstract.ColorDepth8),
		Resolutions: []abstract.Resolution{
			{XResolution: a.dpi, YResolution: a.dpi},
		},
	}

	plateCaps := &abstract.InputCapabilities{
		MinWidth:              20 * abstract.Millimeter,
		MaxWidth:              360 * abstract.Millimeter,
		MinHeight:             20 * abstract.Millimeter,
		MaxHeight:             430 * abstract.Millimeter,
		MaxOpticalXResolution: a.dpi,
		MaxOpticalYResolution: a.dpi,
		Intents: generic.MakeBitset(
			abstract.IntentDocument,
			abstract.IntentPhoto,
		),
		Profiles: []abstract.SettingsProfile{profile},
	}

	// Deterministic UUID from the device host
	deviceUUID := uuid.SHA1(uuid.NameSpaceDNS, "cr35cap."+a.ctrl.Host())

	return &abstract.ScannerCapabilities{
		UUID:            deviceUUID,
		MakeAndModel:    "CR35 NDT",
		Manufacturer:    "DÜRR NDT",
		SerialNumber:    a.ctrl.Host(),
		DocumentFormats: []string{"image/png", "application/pdf"},
		// The plate slot takes one imaging plate per cycle; modelled as
		// a single-sheet feeder.
		ADFCapacity: 1,
		ADFSimplex:  plateCaps,
	}
}

// Capabilities returns the advertised scanner capabilities.
func (a *ESCLAdapter) Capabilities() *abstract.ScannerCapabilities {
	return a.caps
}

// Ready reports whether the device is connected and idle.
func (a *ESCLAdapter) Ready() bool {
	return a.ctrl.Connected() && a.ctrl.State() == cr35.StateReady
}

// Scan runs one plate acquisition and returns the exposure as a
// single-page document.
func (a *ESCLAdapter) Scan(ctx context.Context, req abstract.ScannerRequest) (abstract.Document, error) {
	if err := req.Validate(a.caps); err != nil {
		return nil, err
	}

	slog.Info("eSCL scan requested",
		"colorMode", req.ColorMode,
		"resolution", req.Resolution,
		"format", req.DocumentFormat,
		"mode", a.mode,
	)

	img, err := a.ctrl.Acquire(ctx, a.mode)
	if err != nil {
		return nil, err
	}

	page, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	res := req.Resolution
	if res.IsZero() {
		res = abstract.Resolution{XResolution: a.dpi, YResolution: a.dpi}
	}

	doc := &pngDocument{res: res, pages: [][]byte{page}}

	// Apply filter for format conversion if needed
	if req.DocumentFormat != "" && req.DocumentFormat != "image/png" {
		return abstract.NewFilter(doc, abstract.FilterOptions{
			OutputFormat: req.DocumentFormat,
		}), nil
	}
	return doc, nil
}

// Close shuts the device session down.
func (a *ESCLAdapter) Close() error {
	a.ctrl.Disconnect()
	return nil
}

// --------------------------------------------------------------------------
// Document / DocumentFile implementation for PNG exposures
// --------------------------------------------------------------------------

// pngDocument wraps rendered exposures as an abstract.Document.
type pngDocument struct {
	res   abstract.Resolution
	pages [][]byte
	idx   int
}

func (d *pngDocument) Resolution() abstract.Resolution { return d.res }

func (d *pngDocument) Next() (abstract.DocumentFile, error) {
	if d.idx >= len(d.pages) {
		return nil, io.EOF
	}
	f := &pngFile{Reader: bytes.NewReader(d.pages[d.idx])}
	d.idx++
	return f, nil
}

func (d *pngDocument) Close() error { return nil }

// pngFile wraps a single rendered page as an abstract.DocumentFile.
type pngFile struct {
	*bytes.Reader
}

func (f *pngFile) Format() string { return "image/png" }
