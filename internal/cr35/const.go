package cr35

import "time"

// Protocol timings.
const (
	commandTimeout    = 2000 * time.Millisecond // per-command response timeout
	queueTickInterval = 10 * time.Millisecond   // command queue drain tick
	imagePollInterval = 300 * time.Millisecond  // SystemState/ImageData poll, single-shot
	dialTimeout       = 5 * time.Second
)

// Device operational states, as reported by SystemState.
const (
	StateUnknown  uint32 = 0
	StateReady    uint32 = 2
	StateScanning uint32 = 4
	StateStopping uint32 = 5
	StateWaiting  uint32 = 6
)

// Outgoing packet kinds (first BE16 of every host→device packet).
const (
	packetUnknown   uint16 = 0x0000
	packetReadToken uint16 = 0x0003 // request a session token for a command name
	packetReadData  uint16 = 0x0010 // request streamed data for a resolved token
	packetCommand   uint16 = 0x0011 // typed command write
)

// Command payload type ids.
const (
	typeNone   uint16 = 0x0000
	typeU32    uint16 = 0x0002
	typeString uint16 = 0x0007
	typeBlob   uint16 = 0x0008
	typeU16    uint16 = 0x000B
)

// Wire mode field values in the server header.
const (
	modeSinglePacket uint16 = 0x0007
	modeFragmented   uint16 = 0x0008
)

// Control markers in the image word stream. Any word >= markerFloor is a
// marker; everything below is pixel data.
const (
	markerFloor     uint16 = 0xFFF9
	markerImageEnd  uint16 = 0xFFFB // end of image data block
	markerConfig    uint16 = 0xFFFC // next word = byte size, then JSON blob
	markerNOP       uint16 = 0xFFFD // padding, ignore
	markerLineStart uint16 = 0xFFFE // next word = initial x of the new line
	markerGap       uint16 = 0xFFFF // next word = number of missing pixels
)

// StateName returns a printable name for a device state value.
func StateName(state uint32) string {
	switch state {
	case StateReady:
		return "ready"
	case StateScanning:
		return "scanning"
	case StateStopping:
		return "stopping"
	case StateWaiting:
		return "waiting"
	}
	return "unknown"
}

// tokenNotFound is the id used for names missing from the token table.
// The device tolerates it on the bootstrap packets whose responses
// populate the table.
const tokenNotFound uint32 = 0xFFFFFFFF

// clientIDSize is the length of the per-connection random client id.
const clientIDSize = 6

// tokenNames are resolved to session tokens during bootstrap, in order.
var tokenNames = []string{
	"Connect",
	"Disconnect",
	"UserId",
	"SystemDate",
	"ImageData",
	"Start",
	"Stop",
	"Mode",
	"PollingOnly",
	"StopRequest",
	"SystemState",
	"DeviceId",
	"Erasor",
	"Version",
	"ModeList",
}
