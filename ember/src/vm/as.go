// Package vm implements VMOs, VMARs, and the per-process address
// space that ties them together: the demand-paging and copy-on-write
// fault handler, and the kernel<->user memory copy helpers every
// syscall argument marshaler depends on. The control flow is the
// teacher's vm/as.go Sys_pgfault, generalized from its file/anon-page
// distinction to VMO-backed mappings, and with every
// forked-Go-runtime call (runtime.Condflush, runtime.CPUHint) replaced
// by the simulated page table in pagetable.go and a software TLB
// shootdown hook that a higher layer (sched.InstallShootdown) supplies.
package vm

import (
	"sync"
	"sync/atomic"
	"time"

	"defs"
	"mem"
	"ustr"
	"util"
)

/// AddressSpace_t represents one process's virtual memory: the VMAR
/// mapping list and the page table that realizes it. The mutex
/// protects both together, matching the teacher's single-lock
/// Vm_t -- a narrower per-mapping lock would let one thread observe
/// Vmregion and Pmap out of sync mid-fault.
type AddressSpace_t struct {
	sync.Mutex

	Vmregion Vmregion_t
	Pmap     *PageTable_t

	pgfltaken bool
}

/// NewAddressSpace allocates an empty address space with a fresh,
/// empty page table.
func NewAddressSpace() *AddressSpace_t {
	return &AddressSpace_t{Pmap: newPageTable()}
}

/// Lock_pmap acquires the address space mutex and marks that a page
/// fault is being handled.
func (as *AddressSpace_t) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

/// Unlock_pmap releases the address space mutex after page table
/// manipulation is complete.
func (as *AddressSpace_t) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

/// Lockassert_pmap panics if the address space mutex is not held.
func (as *AddressSpace_t) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("pgfl lock must be held")
	}
}

/// Userdmap8_inner returns a slice mapping of the user address at va.
/// When k2u is true the memory is prepared for a kernel write.
func (as *AddressSpace_t) Userdmap8_inner(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lockassert_pmap()

	voff := va & int(PGOFFSET)
	uva := uintptr(va)
	vmi, ok := as.Vmregion.Lookup(uva)
	if !ok {
		return nil, defs.AccessDenied
	}
	pte, ok := vmi.Ptefor(as.Pmap, uva)
	if !ok {
		return nil, defs.NoMemory
	}
	ecode := mem.PTE_U
	needfault := true
	isp := *pte&PTE_P != 0
	if k2u {
		ecode |= mem.PTE_W
		iscow := *pte&PTE_COW != 0
		if isp && !iscow {
			needfault = false
		}
	} else if isp {
		needfault = false
	}

	if needfault {
		if err := Sys_pgfault(as, vmi, mem.Pa_t(uva), ecode); err != defs.Ok {
			return nil, err
		}
	}

	pg := mem.Phys.Dmap(*pte & PTE_ADDR)
	bpg := mem.Pg2bytes(pg)
	return bpg[voff:], defs.Ok
}

func (as *AddressSpace_t) _userdmap8(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lock_pmap()
	ret, err := as.Userdmap8_inner(va, k2u)
	as.Unlock_pmap()
	return ret, err
}

/// Userdmap8r maps the user address for reading.
func (as *AddressSpace_t) Userdmap8r(va int) ([]uint8, defs.Err_t) {
	return as._userdmap8(va, false)
}

func (as *AddressSpace_t) usermapped(va int) bool {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	_, ok := as.Vmregion.Lookup(uintptr(va))
	return ok
}

/// Userreadn reads n (<= 8) bytes from user address va as a little
/// endian integer.
func (as *AddressSpace_t) Userreadn(va, n int) (int, defs.Err_t) {
	as.Lock_pmap()
	a, b := as.userreadn_inner(va, n)
	as.Unlock_pmap()
	return a, b
}

func (as *AddressSpace_t) userreadn_inner(va, n int) (int, defs.Err_t) {
	as.Lockassert_pmap()
	if n > 8 {
		panic("large n")
	}
	var ret int
	var src []uint8
	var err defs.Err_t
	for i := 0; i < n; i += len(src) {
		src, err = as.Userdmap8_inner(va+i, false)
		if err != defs.Ok {
			return 0, err
		}
		l := n - i
		if len(src) < l {
			l = len(src)
		}
		v := util.Readn(src, l, 0)
		ret |= v << (8 * uint(i))
	}
	return ret, defs.Ok
}

/// Userwriten writes the low n bytes of val to user address va.
func (as *AddressSpace_t) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("large n")
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	var dst []uint8
	for i := 0; i < n; i += len(dst) {
		v := val >> (8 * uint(i))
		t, err := as.Userdmap8_inner(va+i, true)
		dst = t
		if err != defs.Ok {
			return err
		}
		util.Writen(dst, n-i, 0, v)
	}
	return defs.Ok
}

/// Userstr copies a NUL-terminated string from user space up to
/// lenmax bytes.
func (as *AddressSpace_t) Userstr(uva, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, defs.Ok
	}
	as.Lock_pmap()
	i := 0
	s := ustr.MkUstr()
	for {
		str, err := as.Userdmap8_inner(uva+i, false)
		if err != defs.Ok {
			as.Unlock_pmap()
			return s, err
		}
		for j, c := range str {
			if c == 0 {
				s = append(s, str[:j]...)
				as.Unlock_pmap()
				return s, defs.Ok
			}
		}
		s = append(s, str...)
		i += len(str)
		if len(s) >= lenmax {
			as.Unlock_pmap()
			return nil, defs.OutOfRange
		}
	}
}

/// Usertimespec reads a {seconds, nanoseconds} pair from user memory
/// at va.
func (as *AddressSpace_t) Usertimespec(va int) (time.Duration, time.Time, defs.Err_t) {
	var zt time.Time
	secs, err := as.Userreadn(va, 8)
	if err != defs.Ok {
		return 0, zt, err
	}
	nsecs, err := as.Userreadn(va+8, 8)
	if err != defs.Ok {
		return 0, zt, err
	}
	if secs < 0 || nsecs < 0 {
		return 0, zt, defs.InvalidArgs
	}
	tot := time.Duration(secs)*time.Second + time.Duration(nsecs)*time.Nanosecond
	t := time.Unix(int64(secs), int64(nsecs))
	return tot, t, defs.Ok
}

/// K2user copies src into the user address space starting at uva.
func (as *AddressSpace_t) K2user(src []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.K2user_inner(src, uva)
	as.Unlock_pmap()
	return ret
}

func (as *AddressSpace_t) K2user_inner(src []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	l := len(src)
	for cnt != l {
		dst, err := as.Userdmap8_inner(uva+cnt, true)
		if err != defs.Ok {
			return err
		}
		ub := len(src) - cnt
		if ub > len(dst) {
			ub = len(dst)
		}
		copy(dst, src[cnt:])
		cnt += ub
	}
	return defs.Ok
}

/// User2k copies len(dst) bytes from user address uva into dst.
func (as *AddressSpace_t) User2k(dst []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.User2k_inner(dst, uva)
	as.Unlock_pmap()
	return ret
}

func (as *AddressSpace_t) User2k_inner(dst []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	for len(dst) != 0 {
		src, err := as.Userdmap8_inner(uva+cnt, false)
		if err != defs.Ok {
			return err
		}
		did := copy(dst, src)
		dst = dst[did:]
		cnt += did
	}
	return defs.Ok
}

/// Unusedva_inner finds an unmapped virtual address range of at least
/// `length` bytes at or after startva.
func (as *AddressSpace_t) Unusedva_inner(startva, length int) int {
	as.Lockassert_pmap()
	if length < 0 || length > 1<<48 {
		panic("weird len")
	}
	startva = util.Rounddown(startva, PGSIZE)
	ret, _ := as.Vmregion.empty(uintptr(startva), uintptr(length))
	return int(ret << PGSHIFT)
}

/// ShootdownFunc, if set, broadcasts a TLB invalidation for pgcount
/// pages starting at startva on every CPU that might have this
/// address space's page table active. The scheduler/AAL layer wires
/// this up; vm itself has no notion of CPUs.
var ShootdownFunc func(as *AddressSpace_t, startva uintptr, pgcount int)

/// Tlbshoot invalidates pgcount pages starting at startva. With no
/// hook installed (e.g. in tests, or a uniprocessor boot) it is a
/// no-op: this kernel's simulated page table has no hardware TLB to
/// go stale in the first place, so the only real effect of a
/// shootdown is invalidating another CPU's cached translation, which
/// ShootdownFunc alone is responsible for.
func (as *AddressSpace_t) Tlbshoot(startva uintptr, pgcount int) {
	if pgcount == 0 {
		return
	}
	as.Lockassert_pmap()
	if ShootdownFunc != nil {
		ShootdownFunc(as, startva, pgcount)
	}
}

/// Sys_pgfault resolves a page fault for the address space as at the
/// given fault address with the provided error code (the PTE_U/PTE_W
/// bits describe the access, matching the hardware page-fault error
/// code convention).
func Sys_pgfault(as *AddressSpace_t, vmi *Vminfo_t, faultaddr, ecode mem.Pa_t) defs.Err_t {
	isguard := vmi.Perms == 0
	iswrite := ecode&PTE_W != 0
	writeok := vmi.Perms&uint(PTE_W) != 0
	if isguard || (iswrite && !writeok) {
		return defs.AccessDenied
	}
	if ecode&PTE_U == 0 {
		panic("kernel page fault")
	}

	pte, ok := vmi.Ptefor(as.Pmap, uintptr(faultaddr))
	if !ok {
		return defs.NoMemory
	}
	if (iswrite && *pte&PTE_WASCOW != 0) || (!iswrite && *pte&PTE_P != 0) {
		// two threads simultaneously faulted on the same page
		return defs.Ok
	}

	var p_pg mem.Pa_t
	perms := PTE_U | PTE_P
	isempty := true

	if vmi.Shared {
		var err defs.Err_t
		_, p_pg, err = vmi.Filepage(uintptr(faultaddr))
		if err != defs.Ok {
			return err
		}
		if vmi.Perms&uint(PTE_W) != 0 {
			perms |= PTE_W
		}
	} else if iswrite {
		if *pte&PTE_W != 0 {
			panic("bad state")
		}
		var pgsrc *mem.Pg_t
		cow := *pte&PTE_COW != 0
		if cow {
			phys := *pte & PTE_ADDR
			if atomic.LoadInt32(refcntOf(phys)) == 1 && phys != mem.ZeropgPa {
				tmp := *pte &^ PTE_COW
				tmp |= PTE_W | PTE_WASCOW
				*pte = tmp
				as.Tlbshoot(uintptr(faultaddr), 1)
				return defs.Ok
			}
			pgsrc = mem.Phys.Dmap(phys)
			isempty = false
		} else {
			if *pte != 0 {
				panic("pte should be empty before first fault")
			}
			var err defs.Err_t
			pgsrc, _, err = vmi.Filepage(uintptr(faultaddr))
			if err != defs.Ok {
				return err
			}
		}
		var newpg *mem.Pg_t
		var ok bool
		newpg, p_pg, ok = mem.Phys.Refpg_new_nozero()
		if !ok {
			return defs.NoMemory
		}
		*newpg = *pgsrc
		perms |= PTE_WASCOW | PTE_W
	} else {
		if *pte != 0 {
			panic("pte must be empty")
		}
		var err defs.Err_t
		_, p_pg, err = vmi.FilepageRO(uintptr(faultaddr))
		if err != defs.Ok {
			return err
		}
		if vmi.Perms&uint(PTE_W) != 0 {
			perms |= PTE_COW
		}
	}
	if perms&PTE_W != 0 {
		perms |= PTE_D
	}
	perms |= PTE_A

	tshoot, ok := as.Page_insert(int(faultaddr), p_pg, perms, isempty, pte)
	if !ok {
		mem.Phys.Refdown(p_pg)
		return defs.NoMemory
	}
	if tshoot {
		as.Tlbshoot(uintptr(faultaddr), 1)
	}
	return defs.Ok
}

func refcntOf(pa mem.Pa_t) *int32 {
	r, ok := mem.Phys.PaddrToPage(pa)
	if !ok {
		panic("refcntOf: page not in any arena")
	}
	return r
}

/// Page_insert maps p_pg at va with perms, taking a new reference on
/// p_pg. The first return value reports whether an existing present
/// mapping was replaced (TLB flush needed); the second is false only
/// if the insertion itself failed.
func (as *AddressSpace_t) Page_insert(va int, p_pg, perms mem.Pa_t, vempty bool, pte *mem.Pa_t) (bool, bool) {
	return as._page_insert(va, p_pg, perms, vempty, true, pte)
}

/// Blockpage_insert is Page_insert without taking a new reference on
/// p_pg, for callers (VMO-backed shared mappings) that already hold
/// one on the caller's behalf.
func (as *AddressSpace_t) Blockpage_insert(va int, p_pg, perms mem.Pa_t, vempty bool, pte *mem.Pa_t) (bool, bool) {
	return as._page_insert(va, p_pg, perms, vempty, false, pte)
}

func (as *AddressSpace_t) _page_insert(va int, p_pg, perms mem.Pa_t, vempty, refup bool, pte *mem.Pa_t) (bool, bool) {
	as.Lockassert_pmap()
	if refup {
		mem.Phys.Refup(p_pg)
	}
	if pte == nil {
		var err defs.Err_t
		pte, err = pmap_walk(as.Pmap, va, PTE_U|PTE_W)
		if err != defs.Ok {
			return false, false
		}
	}
	ninval := false
	var p_old mem.Pa_t
	if *pte&PTE_P != 0 {
		if vempty {
			panic("pte not empty")
		}
		if *pte&PTE_U == 0 {
			panic("replacing kernel page")
		}
		ninval = true
		p_old = *pte & PTE_ADDR
	}
	*pte = p_pg | perms | PTE_P
	if ninval {
		mem.Phys.Refdown(p_old)
	}
	return ninval, true
}

/// Page_remove unmaps the page at va, reports whether one was removed.
func (as *AddressSpace_t) Page_remove(va int) bool {
	as.Lockassert_pmap()
	pte := Pmap_lookup(as.Pmap, va)
	if pte == nil || *pte&PTE_P == 0 {
		return false
	}
	if *pte&PTE_U == 0 {
		panic("removing kernel page")
	}
	p_old := *pte & PTE_ADDR
	mem.Phys.Refdown(p_old)
	*pte = 0
	return true
}

/// Pgfault handles a page fault triggered by tid for the given fault
/// address and error code.
func (as *AddressSpace_t) Pgfault(tid defs.Tid_t, fa, ecode mem.Pa_t) defs.Err_t {
	as.Lock_pmap()
	vmi, ok := as.Vmregion.Lookup(uintptr(fa))
	if !ok {
		as.Unlock_pmap()
		return defs.AccessDenied
	}
	ret := Sys_pgfault(as, vmi, fa, ecode)
	as.Unlock_pmap()
	return ret
}

/// Uvmfree releases every user mapping and page table entry in as.
func (as *AddressSpace_t) Uvmfree() {
	Uvmfree_inner(as.Pmap)
	as.Vmregion.Clear()
}

/// VmarMapAnon creates a private, demand-zero mapping at [start,
/// start+length) with the given permissions.
func (as *AddressSpace_t) VmarMapAnon(start, length int, perms uint) {
	vmo := CreateVmo(int64(length), nil)
	as.VmarMap(start, length, perms, vmo, 0, false)
}

/// VmarMap creates a mapping of vmo at [start, start+length),
/// beginning at byte offset voff within vmo. shared makes writes
/// visible through every other mapping of the same vmo instead of
/// triggering copy-on-write.
func (as *AddressSpace_t) VmarMap(start, length int, perms uint, vmo *Vmo_t, voff int64, shared bool) *Vminfo_t {
	if length <= 0 {
		panic("bad vmar length")
	}
	if (mem.Pa_t(start|length) & PGOFFSET) != 0 {
		panic("start and length must be page aligned")
	}
	vmi := &Vminfo_t{
		Pgn:    uintptr(start) >> PGSHIFT,
		Pglen:  util.Roundup(length, PGSIZE) >> int(PGSHIFT),
		Perms:  perms,
		Vmo:    vmo,
		VmoOff: voff,
		Shared: shared,
	}
	as.Vmregion.insert(vmi)
	return vmi
}

/// VmarUnmap removes the mapping covering va, reporting whether one
/// existed.
func (as *AddressSpace_t) VmarUnmap(va int) bool {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	return as.Vmregion.Remove(uintptr(va))
}

/// PageFrame ensures va is backed by a physical frame (faulting it in
/// as a read if necessary) and returns that frame's base address. Two
/// virtual addresses in different address spaces that map the same
/// underlying frame -- a shared VMO -- return the same value, which is
/// exactly the identity a cross-process futex needs to key on;
/// comparing raw virtual addresses would let two unrelated mappings
/// collide, or let two views of the same shared memory fail to. A
/// writable private page still backed by the shared zero page is first
/// given a frame of its own (as a write fault would); a read-only one
/// reports the zero page's address.
func (as *AddressSpace_t) PageFrame(va uintptr) (mem.Pa_t, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	vmi, ok := as.Vmregion.Lookup(va)
	if !ok {
		return 0, defs.AccessDenied
	}
	pte, ok := vmi.Ptefor(as.Pmap, va)
	if !ok {
		return 0, defs.NoMemory
	}
	if *pte&PTE_P == 0 {
		if err := Sys_pgfault(as, vmi, mem.Pa_t(va), mem.PTE_U); err != defs.Ok {
			return 0, err
		}
	}
	if mem.Zeropg != nil && *pte&PTE_ADDR == mem.ZeropgPa && vmi.Perms&uint(PTE_W) != 0 {
		if err := Sys_pgfault(as, vmi, mem.Pa_t(va), mem.PTE_U|mem.PTE_W); err != defs.Ok {
			return 0, err
		}
	}
	return *pte & PTE_ADDR, defs.Ok
}

/// Mkuserbuf allocates and initializes a Userbuf_t referencing user
/// memory starting at userva.
func (as *AddressSpace_t) Mkuserbuf(userva, length int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.ub_init(as, userva, length)
	return ret
}
