package cr35

import (
	"encoding/binary"
	"errors"
)

// errShortBuffer is returned by the read helpers when the slice does not
// hold the requested field.
var errShortBuffer = errors.New("cr35: short buffer")

func readBE16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, errShortBuffer
	}
	return binary.BigEndian.Uint16(b), nil
}

func readBE32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, errShortBuffer
	}
	return binary.BigEndian.Uint32(b), nil
}

func readLE16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, errShortBuffer
	}
	return binary.LittleEndian.Uint16(b), nil
}

func appendBE16(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

func appendBE32(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}
