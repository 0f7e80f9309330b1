package vm

import (
	"sync"
	"sync/atomic"

	"defs"
	"mem"
)

// Pager_i supplies the initial content of a page not yet committed
// to a Vmo_t, e.g. a backing store outside the kernel reached via a
// port round-trip. A nil Pager means every uncommitted page reads as
// zero, the common case for anonymous memory.
type Pager_i interface {
	// Fill returns the bytes for the page at byte offset off (rounded
	// down to a page boundary), or an error if the page cannot be
	// produced.
	Fill(off int64) (*mem.Pg_t, defs.Err_t)
}

// vmoFlags records the COW/resizable attributes a VMO was created
// with; a plain anonymous or pager-backed VMO carries neither.
type vmoFlags uint32

const (
	// VmoResizable permits Resize to change the VMO's size after
	// creation. A clone is never resizable: its size is fixed to
	// whatever window of the parent it was cloned over.
	VmoResizable vmoFlags = 1 << iota
	// VmoCOW marks a VMO as a copy-on-write child: pages not yet
	// privately written fall back to the parent's committed content.
	VmoCOW
)

// Vmo_t is a Virtual Memory Object: a resizable bag of pages that may
// be mapped into zero, one, or many address spaces simultaneously
// (zero until the first Map, at which point its lifetime is pinned by
// the handle/mapping refcount). Pages are committed lazily -- a fresh
// Vmo_t holds no physical memory until something faults it in.
//
// A COW clone (see Clone) shares its parent's already-committed pages
// read-only; a write to a page the clone hasn't privately committed
// yet allocates the clone's own frame and copies the parent's content
// into it before the write proceeds, exactly once. The parent holds a
// Ref for each live child so it cannot be destroyed (its pages freed)
// while a child might still read from them.
type Vmo_t struct {
	mu     sync.Mutex
	size   int64
	pages  map[int64]mem.Pa_t // page index -> committed frame
	pager  Pager_i
	refcnt int32

	flags         vmoFlags
	parent        *Vmo_t
	parentPageOff int64 // parent page index corresponding to this VMO's page 0
	children      map[*Vmo_t]bool
}

// CreateVmo allocates a new VMO of the given byte size, rounded up to
// a whole number of pages. A nil pager makes every page anonymous
// (zero-filled on first touch).
func CreateVmo(size int64, pager Pager_i) *Vmo_t {
	if size < 0 {
		size = 0
	}
	return &Vmo_t{
		size:  roundupPages(size),
		pages: make(map[int64]mem.Pa_t),
		pager: pager,
		flags: VmoResizable,
	}
}

func roundupPages(n int64) int64 {
	ps := int64(PGSIZE)
	return (n + ps - 1) / ps * ps
}

/// Size returns the VMO's current size in bytes.
func (v *Vmo_t) Size() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

/// Ref bumps the VMO's reference count, called whenever a new handle
/// or VMAR mapping is created for it.
func (v *Vmo_t) Ref() {
	atomic.AddInt32(&v.refcnt, 1)
}

/// Unref drops the VMO's reference count and releases every committed
/// page once it reaches zero, returning true in that case. A clone's
/// last Unref also detaches it from its parent and drops the pinning
/// reference the clone held on the parent since creation, which may
/// in turn let the parent release its own pages.
func (v *Vmo_t) Unref() bool {
	if atomic.AddInt32(&v.refcnt, -1) > 0 {
		return false
	}
	v.mu.Lock()
	for _, pa := range v.pages {
		mem.Phys.Refdown(pa)
	}
	v.pages = nil
	parent := v.parent
	v.parent = nil
	v.mu.Unlock()

	if parent != nil {
		parent.removeChild(v)
		parent.Unref()
	}
	return true
}

// Clone creates a copy-on-write child covering [offset, offset+size)
// of v's current address range. The child starts with no pages of its
// own; reads fall through to whatever the parent has committed at the
// corresponding offset, and the first write to any page allocates a
// private copy (see commitForWrite). offset must be page-aligned and
// the requested range must lie within v's current size.
func (v *Vmo_t) Clone(offset, size int64) (*Vmo_t, defs.Err_t) {
	if offset < 0 || size < 0 || offset%int64(PGSIZE) != 0 {
		return nil, defs.InvalidArgs
	}
	v.mu.Lock()
	if offset > v.size || offset+roundupPages(size) > v.size {
		v.mu.Unlock()
		return nil, defs.OutOfRange
	}
	v.mu.Unlock()

	child := &Vmo_t{
		size:          roundupPages(size),
		pages:         make(map[int64]mem.Pa_t),
		flags:         VmoCOW,
		parent:        v,
		parentPageOff: offset / int64(PGSIZE),
	}
	v.Ref()
	v.addChild(child)
	return child, defs.Ok
}

func (v *Vmo_t) addChild(c *Vmo_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.children == nil {
		v.children = make(map[*Vmo_t]bool)
	}
	v.children[c] = true
}

func (v *Vmo_t) removeChild(c *Vmo_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.children, c)
}

// Resize grows or shrinks the VMO. Shrinking releases every page
// beyond the new size; growing commits nothing (pages beyond the old
// size remain uncommitted until faulted or explicitly written). Not
// permitted on a COW clone, whose extent is fixed by Clone.
func (v *Vmo_t) Resize(newSize int64) defs.Err_t {
	if newSize < 0 {
		return defs.InvalidArgs
	}
	newSize = roundupPages(newSize)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.flags&VmoResizable == 0 {
		return defs.NotSupported
	}
	if newSize < v.size {
		firstGone := newSize / int64(PGSIZE)
		for idx, pa := range v.pages {
			if idx >= firstGone {
				mem.Phys.Refdown(pa)
				delete(v.pages, idx)
			}
		}
	}
	v.size = newSize
	return defs.Ok
}

// pageIndex returns which page of the VMO byte offset off falls in.
func pageIndex(off int64) int64 {
	return off / int64(PGSIZE)
}

// commit returns the frame backing page index idx for a read: the
// VMO's own committed frame if it has one, else (for a COW clone) the
// parent's committed frame at the corresponding offset, without
// copying or caching it locally, else a freshly allocated/filled
// frame exactly as before. The caller must hold v.mu.
func (v *Vmo_t) commit(idx int64) (mem.Pa_t, defs.Err_t) {
	if pa, ok := v.pages[idx]; ok {
		return pa, defs.Ok
	}
	if v.flags&VmoCOW != 0 && v.parent != nil {
		if pa, ok := v.parent.CommittedLookup(idx + v.parentPageOff); ok {
			return pa, defs.Ok
		}
	}
	return v.commitFresh(idx)
}

// commitForWrite returns the frame backing page index idx for a
// write, always a frame private to v: if v already has one, that; if
// v is a COW clone falling through to a parent page, a fresh frame is
// allocated and the parent's content copied into it (the actual
// copy-on-write fork, performed exactly once per page); otherwise the
// same fresh-allocation path commit uses. The caller must hold v.mu.
func (v *Vmo_t) commitForWrite(idx int64) (mem.Pa_t, defs.Err_t) {
	if pa, ok := v.pages[idx]; ok {
		return pa, defs.Ok
	}
	if v.flags&VmoCOW != 0 && v.parent != nil {
		if parentPa, ok := v.parent.CommittedLookup(idx + v.parentPageOff); ok {
			pa, ok := mem.Phys.AllocPageNoZero(0)
			if !ok {
				return 0, defs.NoMemory
			}
			mem.Phys.Refup(pa)
			*mem.Phys.Dmap(pa) = *mem.Phys.Dmap(parentPa)
			v.pages[idx] = pa
			return pa, defs.Ok
		}
	}
	return v.commitFresh(idx)
}

// commitFresh allocates and fills page idx from the pager (or zeroed)
// on first touch, with no COW fallback. The caller must hold v.mu.
func (v *Vmo_t) commitFresh(idx int64) (mem.Pa_t, defs.Err_t) {
	if v.pager != nil {
		pg, err := v.pager.Fill(idx * int64(PGSIZE))
		if err != defs.Ok {
			return 0, err
		}
		pa, ok := mem.Phys.AllocPageNoZero(0)
		if !ok {
			return 0, defs.NoMemory
		}
		mem.Phys.Refup(pa)
		*mem.Phys.Dmap(pa) = *pg
		v.pages[idx] = pa
		return pa, defs.Ok
	}
	pa, ok := mem.Phys.AllocPage(0)
	if !ok {
		return 0, defs.NoMemory
	}
	mem.Phys.Refup(pa)
	v.pages[idx] = pa
	return pa, defs.Ok
}

/// Commit forces page idx to be backed by a physical frame, returning
/// its address. Used by the page fault handler and by VMO.Read/Write.
func (v *Vmo_t) Commit(idx int64) (mem.Pa_t, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if int64(idx)*int64(PGSIZE) >= v.size {
		return 0, defs.OutOfRange
	}
	return v.commit(idx)
}

/// HasPager reports whether the VMO has a pager supplying initial
/// page content, as opposed to plain demand-zero anonymous memory.
func (v *Vmo_t) HasPager() bool {
	return v.pager != nil
}

/// CommittedLookup returns the frame backing page idx without
/// committing a new one; ok is false if the page has never been
/// touched.
func (v *Vmo_t) CommittedLookup(idx int64) (mem.Pa_t, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pa, ok := v.pages[idx]
	return pa, ok
}

/// Decommit releases the physical frame backing page idx, if any,
/// without shrinking the VMO -- the page simply reads as zero (or
/// refetches from the pager) the next time it is touched.
func (v *Vmo_t) Decommit(idx int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if pa, ok := v.pages[idx]; ok {
		mem.Phys.Refdown(pa)
		delete(v.pages, idx)
	}
}

// Read copies up to len(dst) bytes starting at byte offset off into
// dst, committing pages as it goes (falling through to a parent's
// page for a COW clone), and returns the number copied.
func (v *Vmo_t) Read(off int64, dst []byte) (int, defs.Err_t) {
	v.mu.Lock()
	sz := v.size
	v.mu.Unlock()
	n := 0
	for n < len(dst) && off+int64(n) < sz {
		idx := pageIndex(off + int64(n))
		pgoff := (off + int64(n)) % int64(PGSIZE)
		v.mu.Lock()
		pa, err := v.commit(idx)
		v.mu.Unlock()
		if err != defs.Ok {
			return n, err
		}
		bpg := mem.Pg2bytes(mem.Phys.Dmap(pa))
		c := copy(dst[n:], bpg[pgoff:])
		n += c
	}
	return n, defs.Ok
}

// Write copies src into the VMO starting at byte offset off,
// committing a private page as it goes (forking off the parent's
// content first if this is a COW clone's first touch of that page),
// and returns the number of bytes written.
func (v *Vmo_t) Write(off int64, src []byte) (int, defs.Err_t) {
	v.mu.Lock()
	sz := v.size
	v.mu.Unlock()
	n := 0
	for n < len(src) && off+int64(n) < sz {
		idx := pageIndex(off + int64(n))
		pgoff := (off + int64(n)) % int64(PGSIZE)
		v.mu.Lock()
		pa, err := v.commitForWrite(idx)
		v.mu.Unlock()
		if err != defs.Ok {
			return n, err
		}
		bpg := mem.Pg2bytes(mem.Phys.Dmap(pa))
		c := copy(bpg[pgoff:], src[n:])
		n += c
	}
	return n, defs.Ok
}
