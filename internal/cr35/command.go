package cr35

import "bytes"

// Command is one queued request to the device: a token request, a
// read-data request, or a typed command write. Commands compare
// field-wise; the queue uses equality to drop duplicates.
type Command struct {
	Name   string
	Packet uint16 // packetReadToken, packetReadData or packetCommand
	Type   uint16 // payload type id, packetCommand only
	U32    uint32
	U16    uint16
	Str    string
	Blob   []byte
}

func readTokenCommand(name string) Command {
	return Command{Name: name, Packet: packetReadToken}
}

func readDataCommand(name string) Command {
	return Command{Name: name, Packet: packetReadData}
}

func commandU32(name string, v uint32) Command {
	return Command{Name: name, Packet: packetCommand, Type: typeU32, U32: v}
}

func commandU16(name string, v uint16) Command {
	return Command{Name: name, Packet: packetCommand, Type: typeU16, U16: v}
}

func commandString(name, v string) Command {
	return Command{Name: name, Packet: packetCommand, Type: typeString, Str: v}
}

func commandBlob(name string, v []byte) Command {
	return Command{Name: name, Packet: packetCommand, Type: typeBlob, Blob: v}
}

func (c Command) equal(other Command) bool {
	return c.Name == other.Name && c.Packet == other.Packet &&
		c.Type == other.Type && c.U32 == other.U32 && c.U16 == other.U16 &&
		c.Str == other.Str && bytes.Equal(c.Blob, other.Blob)
}

// encodePayload serialises the command value per its type id.
func (c Command) encodePayload() []byte {
	switch c.Type {
	case typeU32:
		return appendBE32(nil, c.U32)
	case typeU16:
		return appendBE16(nil, c.U16)
	case typeString:
		return append([]byte(c.Str), 0x00)
	case typeBlob:
		return c.Blob
	}
	return nil
}

// commandQueue is an ordered FIFO with dedup-on-enqueue. It is owned by
// the session loop and needs no locking.
type commandQueue struct {
	items []Command
}

// enqueue appends cmd unless an equal command is already queued.
func (q *commandQueue) enqueue(cmd Command) bool {
	for _, c := range q.items {
		if c.equal(cmd) {
			return false
		}
	}
	q.items = append(q.items, cmd)
	return true
}

func (q *commandQueue) pop() (Command, bool) {
	if len(q.items) == 0 {
		return Command{}, false
	}
	cmd := q.items[0]
	q.items = q.items[1:]
	return cmd, true
}

func (q *commandQueue) len() int { return len(q.items) }

func (q *commandQueue) clear() { q.items = nil }
