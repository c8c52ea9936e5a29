package cr35

import "encoding/binary"

// headerSize is the size of the server packet header in bytes.
const headerSize = 14

// ServerHeader is the 14-byte header preceding every device→host message.
// The same layout, with flags/type/block zeroed, terminates a message as
// its footer.
type ServerHeader struct {
	Flags      uint8  // 0x01 = more fragments follow, 0x00 = last fragment or footer
	PacketType uint8  // 0x11 = data payload, 0x00 = footer/control
	Block      uint16 // sequence counter, starts at 0
	Token      uint32 // session id / stream identifier
	Size       uint32 // logical payload size in bytes
	Mode       uint16 // 0x0008 = fragmented stream, 0x0007 = single packet
}

// parseHeader decodes a server header from the start of data. Fewer than
// headerSize bytes yields a zeroed header, the reassembler's cue to wait
// for more bytes.
func parseHeader(data []byte) ServerHeader {
	var h ServerHeader
	if len(data) < headerSize {
		return h
	}
	h.Flags = data[0]
	h.PacketType = data[1]
	h.Block = binary.BigEndian.Uint16(data[2:4])
	h.Token = binary.BigEndian.Uint32(data[4:8])
	h.Size = binary.BigEndian.Uint32(data[8:12])
	h.Mode = binary.BigEndian.Uint16(data[12:14])
	return h
}

// appendHeader serialises h in wire order. The driver itself never emits
// this header; it exists for round-trip tests and protocol simulators.
func appendHeader(dst []byte, h ServerHeader) []byte {
	dst = append(dst, h.Flags, h.PacketType)
	dst = appendBE16(dst, h.Block)
	dst = appendBE32(dst, h.Token)
	dst = appendBE32(dst, h.Size)
	dst = appendBE16(dst, h.Mode)
	return dst
}
