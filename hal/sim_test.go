package hal

import "testing"

func TestSimMMIOWordRoundTrip(t *testing.T) {
	m := NewSimMMIO()
	m.WriteWord(0x100, 0xDEADBEEF)
	if got := m.ReadWord(0x100); got != 0xDEADBEEF {
		t.Fatalf("ReadWord = %#x, want 0xDEADBEEF", got)
	}
}

func TestSimMMIOFloatRoundTrip(t *testing.T) {
	m := NewSimMMIO()
	m.WriteFloat32(0x200, 3.25)
	if got := m.ReadFloat32(0x200); got != 3.25 {
		t.Fatalf("ReadFloat32 = %v, want 3.25", got)
	}
}

func TestSimI2CSendRecv(t *testing.T) {
	bus := NewSimI2C()
	bus.OnRecv(0x42, func(n int) []byte {
		resp := make([]byte, n)
		resp[0] = 0x00 // header byte
		return resp
	})

	if err := bus.Send(0x42, []byte{0x08, 0x00, 0x10, 4}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := bus.LastSendTo(0x42); len(got) != 4 {
		t.Fatalf("LastSendTo length = %d, want 4", len(got))
	}

	resp := make([]byte, 5)
	if err := bus.Recv(0x42, resp); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if resp[0] != 0x00 {
		t.Fatalf("Recv header = %#x, want 0x00", resp[0])
	}
}

func TestMustMMIOPanicsUnconfigured(t *testing.T) {
	globalMMIO = nil
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unconfigured MMIO")
		}
	}()
	MustMMIO()
}
