package vm

import (
	"testing"

	"mem"
)

func TestAnonMapReadFaultSharesZeroPage(t *testing.T) {
	addTestArena(t, 0x600000, 8)
	as := NewAddressSpace()
	as.VmarMapAnon(0x1000, PGSIZE, uint(PTE_U|PTE_W))

	buf, err := as.Userdmap8r(0x1000)
	if err != 0 {
		t.Fatalf("read fault failed: %v", err)
	}
	if len(buf) != PGSIZE {
		t.Fatalf("expected a full page slice, got %d bytes", len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("freshly mapped anon page should read as zero")
		}
	}
}

func TestAnonMapWriteFaultAllocatesRealPage(t *testing.T) {
	addTestArena(t, 0x610000, 8)
	as := NewAddressSpace()
	as.VmarMapAnon(0x2000, PGSIZE, uint(PTE_U|PTE_W))

	if err := as.Userwriten(0x2000, 4, 0xdeadbeef); err != 0 {
		t.Fatalf("write fault failed: %v", err)
	}
	got, err := as.Userreadn(0x2000, 4)
	if err != 0 {
		t.Fatalf("readback failed: %v", err)
	}
	if got != 0xdeadbeef {
		t.Fatalf("expected 0xdeadbeef, got %x", got)
	}
}

func TestPrivateMappingWritesAreNotShared(t *testing.T) {
	addTestArena(t, 0x620000, 16)
	vmo := CreateVmo(int64(PGSIZE), nil)

	one := NewAddressSpace()
	one.VmarMap(0x3000, PGSIZE, uint(PTE_U|PTE_W), vmo, 0, false)
	two := NewAddressSpace()
	two.VmarMap(0x3000, PGSIZE, uint(PTE_U|PTE_W), vmo, 0, false)

	if err := one.Userwriten(0x3000, 4, 111); err != 0 {
		t.Fatalf("first mapping's write failed: %v", err)
	}
	if v, err := two.Userreadn(0x3000, 4); err != 0 || v != 0 {
		t.Fatalf("a private mapping must not observe another private mapping's write, got %d", v)
	}
}

func TestSharedMappingWritesAreVisibleAcrossAddressSpaces(t *testing.T) {
	addTestArena(t, 0x660000, 16)
	vmo := CreateVmo(int64(PGSIZE), nil)

	one := NewAddressSpace()
	one.VmarMap(0x3000, PGSIZE, uint(PTE_U|PTE_W), vmo, 0, true)
	two := NewAddressSpace()
	two.VmarMap(0x3000, PGSIZE, uint(PTE_U|PTE_W), vmo, 0, true)

	if err := one.Userwriten(0x3000, 4, 111); err != 0 {
		t.Fatalf("first mapping's write failed: %v", err)
	}
	if v, err := two.Userreadn(0x3000, 4); err != 0 || v != 111 {
		t.Fatalf("a shared mapping must observe the other mapper's write, got %d err=%v", v, err)
	}
}

func TestPageRemoveUnmapsAndDropsReference(t *testing.T) {
	addTestArena(t, 0x630000, 8)
	as := NewAddressSpace()
	as.VmarMapAnon(0x4000, PGSIZE, uint(PTE_U|PTE_W))
	as.Userwriten(0x4000, 4, 1)

	as.Lock_pmap()
	defer as.Unlock_pmap()
	if !as.Page_remove(0x4000) {
		t.Fatalf("expected a mapping to be removed")
	}
	if as.Page_remove(0x4000) {
		t.Fatalf("second remove of the same va should report nothing removed")
	}
}

func TestUserstrReadsNulTerminated(t *testing.T) {
	addTestArena(t, 0x640000, 8)
	as := NewAddressSpace()
	as.VmarMapAnon(0x5000, PGSIZE, uint(PTE_U|PTE_W))

	msg := append([]byte("hi there"), 0)
	as.K2user(msg, 0x5000)

	s, err := as.Userstr(0x5000, 64)
	if err != 0 {
		t.Fatalf("Userstr failed: %v", err)
	}
	if s.String() != "hi there" {
		t.Fatalf("expected %q, got %q", "hi there", s.String())
	}
}

func TestUnusedvaFindsGap(t *testing.T) {
	addTestArena(t, 0x650000, 8)
	as := NewAddressSpace()
	as.VmarMapAnon(mem.PGSIZE, mem.PGSIZE, uint(PTE_U|PTE_W))

	as.Lock_pmap()
	va := as.Unusedva_inner(mem.PGSIZE, mem.PGSIZE)
	as.Unlock_pmap()
	if va < 2*mem.PGSIZE {
		t.Fatalf("expected a gap past the existing mapping, got %x", va)
	}
}
