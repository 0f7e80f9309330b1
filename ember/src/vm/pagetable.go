package vm

import (
	"sync"

	"defs"
	"mem"
)

// PageTable_t is a simulated page table: a sparse map from virtual
// page number to a PTE, rather than the hardware's 4-level (amd64) or
// 3-level (riscv64 Sv39) radix tree. The mapping semantics -- present
// bit, permission bits, COW bits -- are identical to the real thing;
// only the storage is different, since there is no MMU underneath
// this kernel to walk.
type PageTable_t struct {
	mu      sync.Mutex
	entries map[uintptr]*mem.Pa_t
}

func newPageTable() *PageTable_t {
	return &PageTable_t{entries: make(map[uintptr]*mem.Pa_t)}
}

func vpn(va int) uintptr {
	return uintptr(va) &^ uintptr(PGOFFSET)
}

// pmap_walk returns the PTE slot for va, allocating it (as a zeroed,
// not-present entry) if absent. perms is accepted for symmetry with a
// real walker that must allocate intermediate page-table pages with
// particular permissions; this simulation has no intermediate levels
// to allocate, so perms is unused beyond documenting intent.
func pmap_walk(pm *PageTable_t, va int, perms mem.Pa_t) (*mem.Pa_t, defs.Err_t) {
	_ = perms
	n := vpn(va)
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pte, ok := pm.entries[n]
	if !ok {
		pte = new(mem.Pa_t)
		pm.entries[n] = pte
	}
	return pte, defs.Ok
}

// Pmap_lookup returns the existing PTE for va, or nil if no entry has
// ever been allocated at this address (distinct from an entry that is
// allocated but not present).
func Pmap_lookup(pm *PageTable_t, va int) *mem.Pa_t {
	n := vpn(va)
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.entries[n]
}

// Uvmfree_inner drops the reference on every present, user-mapped
// page in pm and discards the table itself.
func Uvmfree_inner(pm *PageTable_t) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, pte := range pm.entries {
		if *pte&PTE_P != 0 && *pte&PTE_U != 0 {
			mem.Phys.Refdown(*pte & PTE_ADDR)
		}
		*pte = 0
	}
	pm.entries = make(map[uintptr]*mem.Pa_t)
}
