package serialbuf

import "testing"

func TestFifoBufferWriteRead(t *testing.T) {
	f := NewFifoBuffer(8)

	n := f.Write([]byte("abc"))
	if n != 3 {
		t.Fatalf("Write returned %d, want 3", n)
	}
	if f.Available() != 3 {
		t.Fatalf("Available() = %d, want 3", f.Available())
	}

	out := make([]byte, 3)
	n = f.Read(out)
	if n != 3 || string(out) != "abc" {
		t.Fatalf("Read() = %q (%d), want abc (3)", out, n)
	}
	if !f.IsEmpty() {
		t.Fatalf("expected buffer to be empty")
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	f := NewFifoBuffer(4) // usable capacity 3

	f.Write([]byte("ab"))
	buf := make([]byte, 1)
	f.Read(buf) // drop 'a', read=1 write=2

	n := f.Write([]byte("cd")) // wraps: write goes 2->3->0
	if n != 2 {
		t.Fatalf("Write wrapped returned %d, want 2", n)
	}

	data := f.Data()
	if string(data) != "bcd" {
		t.Fatalf("Data() = %q, want bcd", data)
	}
}

func TestFifoBufferFullDropsExcess(t *testing.T) {
	f := NewFifoBuffer(4) // usable capacity 3

	n := f.Write([]byte("abcd"))
	if n != 3 {
		t.Fatalf("Write into full buffer returned %d, want 3", n)
	}
	if f.Free() != 0 {
		t.Fatalf("Free() = %d, want 0", f.Free())
	}
}

func TestFifoBufferIndexByte(t *testing.T) {
	f := NewFifoBuffer(16)
	f.Write([]byte("rsc i v 1.25\r\n"[:13]))

	idx := f.IndexByte('\r')
	if idx != 12 {
		t.Fatalf("IndexByte('\\r') = %d, want 12", idx)
	}

	if f.IndexByte('\x00') != -1 {
		t.Fatalf("IndexByte for absent byte should return -1")
	}
}

func TestFifoBufferPop(t *testing.T) {
	f := NewFifoBuffer(8)
	f.Write([]byte("hello"))
	f.Pop(3)
	if string(f.Data()) != "lo" {
		t.Fatalf("Data() after Pop(3) = %q, want lo", f.Data())
	}
}
