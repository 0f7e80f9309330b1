package vm

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
	if mem.Zeropg == nil {
		if err := mem.Phys.Init(); !err.Ok() {
			t.Fatalf("Init: %v", err)
		}
	}
}

func TestVmoReadWriteRoundtrip(t *testing.T) {
	addTestArena(t, 0x500000, 8)
	v := CreateVmo(int64(3*PGSIZE), nil)
	src := []byte("hello, vmo")
	if n, err := v.Write(10, src); err != defs.Ok || n != len(src) {
		t.Fatalf("write failed: n=%d err=%v", n, err)
	}
	dst := make([]byte, len(src))
	if n, err := v.Read(10, dst); err != defs.Ok || n != len(src) {
		t.Fatalf("read failed: n=%d err=%v", n, err)
	}
	if string(dst) != string(src) {
		t.Fatalf("roundtrip mismatch: got %q", dst)
	}
}

func TestVmoResizeShrinkReleasesPages(t *testing.T) {
	addTestArena(t, 0x510000, 8)
	v := CreateVmo(int64(4*PGSIZE), nil)
	v.Write(0, []byte{1})
	v.Write(int64(3*PGSIZE), []byte{1})
	before := mem.Phys.CountFreePages()
	v.Resize(int64(PGSIZE))
	after := mem.Phys.CountFreePages()
	if after <= before {
		t.Fatalf("shrink should release at least one page: before=%d after=%d", before, after)
	}
}

type stubPager struct {
	fill byte
}

func (s stubPager) Fill(off int64) (*mem.Pg_t, defs.Err_t) {
	pg := &mem.Pg_t{}
	b := mem.Pg2bytes(pg)
	for i := range b {
		b[i] = s.fill
	}
	return pg, defs.Ok
}

func TestVmoCloneIsCOWIsolated(t *testing.T) {
	addTestArena(t, 0x530000, 8)
	parent := CreateVmo(int64(PGSIZE), nil)

	ones := make([]byte, PGSIZE)
	for i := range ones {
		ones[i] = 0x01
	}
	if n, err := parent.Write(0, ones); err != defs.Ok || n != len(ones) {
		t.Fatalf("parent write failed: n=%d err=%v", n, err)
	}

	child, err := parent.Clone(0, int64(PGSIZE))
	if err != defs.Ok {
		t.Fatalf("Clone: %v", err)
	}

	// Before either side writes again, the child reads the parent's
	// content through the shared page.
	shared := make([]byte, 4)
	if n, err := child.Read(0, shared); err != defs.Ok || n != 4 {
		t.Fatalf("child read before fork: n=%d err=%v", n, err)
	}
	for _, b := range shared {
		if b != 0x01 {
			t.Fatalf("expected child to see the parent's page before any write, got %x", b)
		}
	}

	twos := []byte{0x02, 0x02, 0x02, 0x02}
	if n, err := child.Write(0, twos); err != defs.Ok || n != 4 {
		t.Fatalf("child write failed: n=%d err=%v", n, err)
	}

	parentBack := make([]byte, 4)
	if n, err := parent.Read(0, parentBack); err != defs.Ok || n != 4 {
		t.Fatalf("parent read failed: n=%d err=%v", n, err)
	}
	for _, b := range parentBack {
		if b != 0x01 {
			t.Fatalf("child write must not be visible in parent, got %x", b)
		}
	}

	childBack := make([]byte, 4)
	if n, err := child.Read(0, childBack); err != defs.Ok || n != 4 {
		t.Fatalf("child read failed: n=%d err=%v", n, err)
	}
	for _, b := range childBack {
		if b != 0x02 {
			t.Fatalf("expected the child's private write to stick, got %x", b)
		}
	}
}

func TestVmoCloneOutOfRangeRejected(t *testing.T) {
	addTestArena(t, 0x540000, 4)
	parent := CreateVmo(int64(PGSIZE), nil)
	if _, err := parent.Clone(int64(PGSIZE), int64(PGSIZE)); err != defs.OutOfRange {
		t.Fatalf("expected OutOfRange cloning past the parent's size, got %v", err)
	}
}

func TestVmoPagerFillsUncommittedPages(t *testing.T) {
	addTestArena(t, 0x520000, 4)
	v := CreateVmo(int64(PGSIZE), stubPager{fill: 0x42})
	dst := make([]byte, 4)
	if n, err := v.Read(0, dst); err != defs.Ok || n != len(dst) {
		t.Fatalf("read failed: n=%d err=%v", n, err)
	}
	for _, b := range dst {
		if b != 0x42 {
			t.Fatalf("expected pager fill byte, got %x", b)
		}
	}
}
