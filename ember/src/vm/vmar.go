package vm

import (
	"sort"

	"defs"
	"mem"
)

/// Vminfo_t describes one mapped region of an address space: a VMAR
/// binding of a page range to a VMO offset with fixed permissions.
/// The shape (page-number + page-length, not byte addresses) and the
/// field names follow the teacher's vm/as.go Vminfo_t; Mfile_t's role
/// is now played directly by the Vmo_t/VmoOff pair.
type Vminfo_t struct {
	Pgn    uintptr // start, in pages
	Pglen  int     // length, in pages
	Perms  uint    // PTE_U/PTE_W, before the fault handler adds COW bits
	Vmo    *Vmo_t
	VmoOff int64 // byte offset into Vmo corresponding to Pgn
	Shared bool  // writes are visible to every mapper, not just this one
}

func (vmi *Vminfo_t) end() uintptr {
	return vmi.Pgn + uintptr(vmi.Pglen)
}

// Filepage returns the page backing faultaddr, committing it in the
// underlying VMO if this is the first touch.
func (vmi *Vminfo_t) Filepage(faultaddr uintptr) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	pgn := faultaddr >> PGSHIFT
	idx := (int64(pgn)-int64(vmi.Pgn))*int64(PGSIZE) + vmi.VmoOff
	idx /= int64(PGSIZE)
	pa, err := vmi.Vmo.Commit(idx)
	if err != 0 {
		return nil, 0, err
	}
	return mem.Phys.Dmap(pa), pa, 0
}

// FilepageRO returns the page to map for a read-only fault. Private,
// purely anonymous mappings (no pager, not Shared) read the shared
// zero page without committing real memory -- the first write still
// goes through the ordinary copy-on-write path in Sys_pgfault, since
// the PTE this installs is marked COW. Shared mappings and anything
// with a pager always commit, since their content must be durable and
// visible to every other mapper immediately.
func (vmi *Vminfo_t) FilepageRO(faultaddr uintptr) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	if !vmi.Shared && !vmi.Vmo.HasPager() {
		pgn := faultaddr >> PGSHIFT
		idx := (int64(pgn)-int64(vmi.Pgn))*int64(PGSIZE) + vmi.VmoOff
		idx /= int64(PGSIZE)
		if pa, ok := vmi.Vmo.CommittedLookup(idx); ok {
			return mem.Phys.Dmap(pa), pa, defs.Ok
		}
		return mem.Zeropg, mem.ZeropgPa, defs.Ok
	}
	return vmi.Filepage(faultaddr)
}

// Ptefor returns the PTE slot in pm for faultaddr, allocating
// intermediate structure as needed.
func (vmi *Vminfo_t) Ptefor(pm *PageTable_t, va uintptr) (*mem.Pa_t, bool) {
	pte, err := pmap_walk(pm, int(va), mem.PTE_U|mem.PTE_W)
	if err != 0 {
		return nil, false
	}
	return pte, true
}

/// Vmregion_t is the sorted set of Vminfo_t mappings that make up one
/// address space's VMAR tree, flattened to a slice and kept ordered
/// by start page number; lookups binary-search it. A real VMAR
/// hierarchy supports nested sub-regions with their own permission
/// ceilings -- this kernel models only the flat leaf mappings, which
/// is all the fault handler and the user-copy helpers ever consult.
type Vmregion_t struct {
	regions []*Vminfo_t
}

/// insert adds a mapping, keeping regions sorted by start page.
func (vr *Vmregion_t) insert(vmi *Vminfo_t) {
	if vmi.Vmo != nil {
		vmi.Vmo.Ref()
	}
	i := sort.Search(len(vr.regions), func(i int) bool {
		return vr.regions[i].Pgn >= vmi.Pgn
	})
	vr.regions = append(vr.regions, nil)
	copy(vr.regions[i+1:], vr.regions[i:])
	vr.regions[i] = vmi
}

/// Lookup returns the mapping covering virtual address va, if any.
func (vr *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	pgn := va >> PGSHIFT
	i := sort.Search(len(vr.regions), func(i int) bool {
		return vr.regions[i].end() > pgn
	})
	if i >= len(vr.regions) {
		return nil, false
	}
	r := vr.regions[i]
	if pgn < r.Pgn || pgn >= r.end() {
		return nil, false
	}
	return r, true
}

// empty finds an unused range of at least length bytes (rounded up to
// whole pages) at or after byte address startva, returning its start
// page number and the requested length in pages.
func (vr *Vmregion_t) empty(startva, length uintptr) (uintptr, uintptr) {
	startpg := startva >> PGSHIFT
	npages := (length + uintptr(PGOFFSET)) >> PGSHIFT
	if npages == 0 {
		npages = 1
	}
	cur := startpg
	for _, r := range vr.regions {
		if r.Pgn >= cur+npages {
			break
		}
		if r.end() > cur {
			cur = r.end()
		}
	}
	return cur, npages
}

/// Remove drops the mapping covering va, unreferencing its VMO.
func (vr *Vmregion_t) Remove(va uintptr) bool {
	pgn := va >> PGSHIFT
	for i, r := range vr.regions {
		if pgn >= r.Pgn && pgn < r.end() {
			vr.regions = append(vr.regions[:i], vr.regions[i+1:]...)
			if r.Vmo != nil {
				r.Vmo.Unref()
			}
			return true
		}
	}
	return false
}

/// Clear drops every mapping, unreferencing every VMO.
func (vr *Vmregion_t) Clear() {
	for _, r := range vr.regions {
		if r.Vmo != nil {
			r.Vmo.Unref()
		}
	}
	vr.regions = nil
}
