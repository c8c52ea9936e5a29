package cr35

import "log/slog"

// createTokenRequestPacket builds a token request:
// BE16 0x0003 | BE16 0 | BE16 len | BE16 0 | clientID(6) | utf8(name) | 0x00
func createTokenRequestPacket(clientID []byte, name string) []byte {
	payload := append([]byte(name), 0x00)
	buf := make([]byte, 0, 8+len(clientID)+len(payload))
	buf = appendBE16(buf, packetReadToken)
	buf = appendBE16(buf, 0)
	buf = appendBE16(buf, uint16(len(payload)))
	buf = appendBE16(buf, 0)
	buf = append(buf, clientID...)
	buf = append(buf, payload...)
	return buf
}

// createReadDataPacket builds a read-data request:
// BE16 0x0010 | BE16 0 | BE32 tokenID | clientID(6)
func createReadDataPacket(clientID []byte, tokenID uint32) []byte {
	buf := make([]byte, 0, 8+len(clientID))
	buf = appendBE16(buf, packetReadData)
	buf = appendBE16(buf, 0)
	buf = appendBE32(buf, tokenID)
	buf = append(buf, clientID...)
	return buf
}

// createCommandPacket builds a typed command write:
// BE16 0x0011 | BE16 0 | BE32 tokenID | BE32 payloadLen | BE16 typeID | payload
func createCommandPacket(tokenID uint32, cmd Command) []byte {
	payload := cmd.encodePayload()
	buf := make([]byte, 0, 14+len(payload))
	buf = appendBE16(buf, packetCommand)
	buf = appendBE16(buf, 0)
	buf = appendBE32(buf, tokenID)
	buf = appendBE32(buf, uint32(len(payload)))
	buf = appendBE16(buf, cmd.Type)
	buf = append(buf, payload...)
	return buf
}

// maxFragmentChunk is the payload run between injected headers in a
// fragmented stream: the device emits a 14-byte header every 64 KiB.
const maxFragmentChunk = 0x10000 - headerSize

// extractPayload pulls one logical message payload out of buf, whose
// leading header is h. ok=false means the message is incomplete and the
// caller should keep buffering.
//
// A complete message carries a trailing footer header whose flags, type
// and block are zero and whose token matches h. In fragmented mode
// (0x0008) the device injects an intermediate header every 64 KiB, which
// is stripped during reassembly; a reconstructed size that disagrees
// with h.Size is logged and the truncated payload delivered anyway.
func extractPayload(buf []byte, h ServerHeader) (payload []byte, ok bool) {
	if uint64(len(buf)) < headerSize+uint64(h.Size) {
		return nil, false
	}

	footer := parseHeader(buf[len(buf)-headerSize:])
	if footer.Flags != 0 || footer.PacketType != 0 || footer.Block != 0 || footer.Token != h.Token {
		return nil, false
	}

	if h.Mode == modeFragmented {
		payload = make([]byte, 0, h.Size)
		end := len(buf) - headerSize // stop before the footer
		offset := headerSize
		for offset < end {
			chunk := min(end-offset, maxFragmentChunk)
			payload = append(payload, buf[offset:offset+chunk]...)
			offset += chunk
			// Skip the injected header after each full chunk.
			if chunk == maxFragmentChunk && offset < end {
				offset += headerSize
			}
		}
		if uint32(len(payload)) != h.Size {
			slog.Warn("fragmented payload size mismatch", "got", len(payload), "want", h.Size)
		}
		return payload, true
	}

	if n := len(buf) - 2*headerSize; n > 0 {
		payload = buf[headerSize : headerSize+n]
	}
	if uint32(len(payload)) != h.Size {
		slog.Warn("single packet size mismatch", "got", len(payload), "want", h.Size)
	}
	return payload, true
}
