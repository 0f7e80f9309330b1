package ipc

import (
	"testing"

	"defs"
	"mem"
)

func addTestArena(t *testing.T, base mem.Pa_t, npages int) {
	t.Helper()
	if err := mem.Phys.AddArena(mem.ArenaInfo{
		Name: t.Name(), Base: base, NPages: npages, Priority: 0, Flags: mem.ArenaHighMem,
	}); !err.Ok() {
		t.Fatalf("AddArena: %v", err)
	}
}

func TestFifoWriteReadPartial(t *testing.T) {
	addTestArena(t, 0x800000, 4)
	a, b, err := NewFifoPair(4, 2)
	if err != defs.Ok {
		t.Fatalf("NewFifoPair: %v", err)
	}
	elems := [][]byte{[]byte("abcd"), []byte("efgh"), []byte("ijkl")}
	n, err := a.Write(elems)
	if err != defs.Ok || n != 2 {
		t.Fatalf("expected a partial write of 2 (capacity), got n=%d err=%v", n, err)
	}

	out := make([][]byte, 3)
	n, err = b.Read(out)
	if err != defs.Ok || n != 2 {
		t.Fatalf("expected to read back 2 elements, got n=%d err=%v", n, err)
	}
	if string(out[0]) != "abcd" || string(out[1]) != "efgh" {
		t.Fatalf("expected FIFO order, got %q %q", out[0], out[1])
	}
}

func TestFifoReadEmptyReturnsZeroNotBlocking(t *testing.T) {
	addTestArena(t, 0x810000, 4)
	_, b, _ := NewFifoPair(4, 2)
	out := make([][]byte, 1)
	n, err := b.Read(out)
	if err != defs.Ok || n != 0 {
		t.Fatalf("expected a non-blocking empty read to return 0, Ok; got n=%d err=%v", n, err)
	}
}

func TestFifoWriteRejectsWrongElementSize(t *testing.T) {
	addTestArena(t, 0x820000, 4)
	a, _, _ := NewFifoPair(4, 2)
	n, err := a.Write([][]byte{[]byte("toolong")})
	if err != defs.Ok || n != 0 {
		t.Fatalf("expected a mis-sized element to write nothing, got n=%d err=%v", n, err)
	}
}

func TestFifoCloseSignalsPeerClosed(t *testing.T) {
	a, b, _ := NewFifoPair(4, 2)
	a.Close()
	if !b.Signals().Has(defs.SigPeerClosed) {
		t.Fatalf("expected PeerClosed on b after a.Close()")
	}
	out := make([][]byte, 1)
	n, err := b.Read(out)
	if n != 0 || err != defs.PeerClosed {
		t.Fatalf("expected an empty read on a closed peer to return PeerClosed, got n=%d err=%v", n, err)
	}
}
