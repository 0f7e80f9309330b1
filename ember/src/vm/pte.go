package vm

import "mem"

// PTE bit layout. The present/writable/user/global/cacheable/pagesize
// bits are mem's (shared with the page-table walker in every other
// package that inspects a raw PTE); the three below are this package's
// own, carved out of the hardware-available bits that real x86/ARM64
// page tables reserve for software use.
const (
	PGSHIFT  = mem.PGSHIFT
	PGSIZE   = mem.PGSIZE
	PGOFFSET = mem.PGOFFSET
	PTE_P    = mem.PTE_P
	PTE_W    = mem.PTE_W
	PTE_U    = mem.PTE_U
	PTE_G    = mem.PTE_G
	PTE_PCD  = mem.PTE_PCD
	PTE_PS   = mem.PTE_PS
	PTE_ADDR = mem.PTE_ADDR

	/// PTE_A marks a page as accessed.
	PTE_A mem.Pa_t = 1 << 5
	/// PTE_D marks a page as dirty (written since last clean).
	PTE_D mem.Pa_t = 1 << 6
	/// PTE_COW marks a page as copy-on-write: present and read-only
	/// (or read-write in the PTE but enforced read-only by the fault
	/// handler), shared with at least one other address space.
	PTE_COW mem.Pa_t = 1 << 9
	/// PTE_WASCOW marks a page that used to be COW but was claimed
	/// outright because this mapping turned out to be the last
	/// reference -- kept only as a diagnostic breadcrumb.
	PTE_WASCOW mem.Pa_t = 1 << 10
)
