package cr35

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	want := ServerHeader{
		Flags:      0x01,
		PacketType: 0x11,
		Block:      0x0203,
		Token:      0x00001234,
		Size:       0x0001FFE4,
		Mode:       modeFragmented,
	}

	data := appendHeader(nil, want)
	if len(data) != headerSize {
		t.Fatalf("encoded header size = %d, want %d", len(data), headerSize)
	}

	got := parseHeader(data)
	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestParseHeaderWireLayout(t *testing.T) {
	// Offsets: flags=0, type=1, block=2 (BE16), token=4 (BE32),
	// size=8 (BE32), mode=12 (BE16).
	data := []byte{
		0x01,                   // flags: more fragments
		0x11,                   // packet type: data
		0x00, 0x05,             // block
		0x00, 0x00, 0x12, 0x34, // token
		0x00, 0x00, 0x00, 0x40, // size
		0x00, 0x07,             // mode: single packet
	}

	h := parseHeader(data)
	if h.Flags != 0x01 {
		t.Errorf("Flags = 0x%02X, want 0x01", h.Flags)
	}
	if h.PacketType != 0x11 {
		t.Errorf("PacketType = 0x%02X, want 0x11", h.PacketType)
	}
	if h.Block != 5 {
		t.Errorf("Block = %d, want 5", h.Block)
	}
	if h.Token != 0x1234 {
		t.Errorf("Token = 0x%X, want 0x1234", h.Token)
	}
	if h.Size != 64 {
		t.Errorf("Size = %d, want 64", h.Size)
	}
	if h.Mode != modeSinglePacket {
		t.Errorf("Mode = 0x%04X, want 0x%04X", h.Mode, modeSinglePacket)
	}
}

func TestParseHeaderShortInput(t *testing.T) {
	// Fewer than 14 bytes must yield a zeroed header, the reassembler's
	// cue to keep buffering.
	h := parseHeader(make([]byte, headerSize-1))
	if h != (ServerHeader{}) {
		t.Errorf("short input: got %+v, want zeroed header", h)
	}
}
