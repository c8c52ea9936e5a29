package cr35

import "testing"

func TestQueueDedup(t *testing.T) {
	var q commandQueue

	if !q.enqueue(readDataCommand("SystemState")) {
		t.Fatal("first enqueue rejected")
	}
	if q.enqueue(readDataCommand("SystemState")) {
		t.Error("duplicate enqueue accepted")
	}
	if q.len() != 1 {
		t.Errorf("queue length = %d, want 1", q.len())
	}

	// A different value for the same name is a distinct command.
	if !q.enqueue(commandU32("Mode", 5)) {
		t.Fatal("Mode=5 rejected")
	}
	if !q.enqueue(commandU32("Mode", 6)) {
		t.Error("Mode=6 rejected despite a different value")
	}
	if q.enqueue(commandU32("Mode", 5)) {
		t.Error("duplicate Mode=5 accepted")
	}
	if q.len() != 3 {
		t.Errorf("queue length = %d, want 3", q.len())
	}
}

func TestQueueOrder(t *testing.T) {
	var q commandQueue
	q.enqueue(commandU16("Connect", 1))
	q.enqueue(commandString("UserId", "user@BACKUP"))
	q.enqueue(readDataCommand("ModeList"))

	for _, want := range []string{"Connect", "UserId", "ModeList"} {
		cmd, ok := q.pop()
		if !ok || cmd.Name != want {
			t.Fatalf("pop = %q (%v), want %q", cmd.Name, ok, want)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop on empty queue reported ok")
	}
}

func TestCommandEquality(t *testing.T) {
	tests := []struct {
		name string
		a, b Command
		want bool
	}{
		{"identical read", readDataCommand("SystemState"), readDataCommand("SystemState"), true},
		{"different name", readDataCommand("SystemState"), readDataCommand("ImageData"), false},
		{"read vs token request", readDataCommand("Start"), readTokenCommand("Start"), false},
		{"same typed command", commandU16("Start", 1), commandU16("Start", 1), true},
		{"different value", commandU16("Start", 1), commandU16("Start", 2), false},
		{"different type", commandU16("Start", 1), commandU32("Start", 1), false},
		{"blob equality", commandBlob("X", []byte{1, 2}), commandBlob("X", []byte{1, 2}), true},
		{"blob mismatch", commandBlob("X", []byte{1, 2}), commandBlob("X", []byte{1, 3}), false},
	}
	for _, tt := range tests {
		if got := tt.a.equal(tt.b); got != tt.want {
			t.Errorf("%s: equal = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCommandPayloadEncoding(t *testing.T) {
	if got := commandU32("Mode", 0x01020304).encodePayload(); len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Errorf("U32 payload = %X", got)
	}
	if got := commandU16("Start", 0x0102).encodePayload(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("U16 payload = %X", got)
	}
	if got := commandString("UserId", "ab").encodePayload(); string(got) != "ab\x00" {
		t.Errorf("string payload = %q", got)
	}
	if got := readDataCommand("ModeList").encodePayload(); got != nil {
		t.Errorf("read-data payload = %X, want none", got)
	}
}
