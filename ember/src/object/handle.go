package object

import (
	"sync"

	"defs"
	"limits"
)

// Ref_i is the narrow interface a handle table needs from whatever a
// handle refers to: enough to release it on close and report its type
// for WrongType checks, without the table importing every concrete
// object package (which would make a cycle -- vm, ipc, sched all
// import object, not the reverse).
type Ref_i interface {
	ObjType() defs.ObjType_t
	Ref()
	Unref() (defs.Err_t, bool)
}

type slot struct {
	ref    Ref_i
	rights defs.Rights_t
	used   bool
}

// HandleTable_t is a single process's capability table: a fixed-size
// array of (object reference, rights) slots indexed by Handle_t, sized
// per limits.HandleTableSize. Unlike the teacher's Fd_t table (which
// indexes by small integer but has no notion of rights narrowing), a
// slot's rights are independent of every other handle's to the same
// object, since Duplicate/Replace can only narrow, never widen, what a
// derived handle carries.
type HandleTable_t struct {
	sync.Mutex
	slots [limits.HandleTableSize]slot
}

// Insert installs ref with the given rights, returning the freshly
// minted handle. NoResources is returned once the table is full; the
// caller must Unref the object itself in that case, since Insert only
// takes ownership on success.
func (ht *HandleTable_t) Insert(ref Ref_i, rights defs.Rights_t) (defs.Handle_t, defs.Err_t) {
	ht.Lock()
	defer ht.Unlock()
	for i := 1; i < len(ht.slots); i++ {
		if !ht.slots[i].used {
			ht.slots[i] = slot{ref: ref, rights: rights, used: true}
			return defs.Handle_t(i), defs.Ok
		}
	}
	return defs.InvalidHandle, defs.NoResources
}

// Lookup returns the object and rights behind h, without consuming the
// handle.
func (ht *HandleTable_t) Lookup(h defs.Handle_t) (Ref_i, defs.Rights_t, defs.Err_t) {
	if h == defs.InvalidHandle || int(h) >= len(ht.slots) {
		return nil, 0, defs.BadHandle
	}
	ht.Lock()
	defer ht.Unlock()
	s := &ht.slots[h]
	if !s.used {
		return nil, 0, defs.BadHandle
	}
	return s.ref, s.rights, defs.Ok
}

// Check is Lookup plus a rights check in one call, the shape every
// syscall handler needs: resolve the handle, confirm it names an
// object of the expected type, confirm it carries every right the
// operation requires.
func (ht *HandleTable_t) Check(h defs.Handle_t, wantType defs.ObjType_t, want defs.Rights_t) (Ref_i, defs.Err_t) {
	ref, rights, err := ht.Lookup(h)
	if err != defs.Ok {
		return nil, err
	}
	if ref.ObjType() != wantType {
		return nil, defs.WrongType
	}
	if !rights.Has(want) {
		return nil, defs.AccessDenied
	}
	return ref, defs.Ok
}

// Close drops h from the table and releases the underlying reference
// if this was the last handle to it.
func (ht *HandleTable_t) Close(h defs.Handle_t) defs.Err_t {
	if h == defs.InvalidHandle {
		return defs.Ok
	}
	ht.Lock()
	if int(h) >= len(ht.slots) || !ht.slots[h].used {
		ht.Unlock()
		return defs.BadHandle
	}
	s := ht.slots[h]
	ht.slots[h] = slot{}
	ht.Unlock()
	_, _ = s.ref.Unref()
	return defs.Ok
}

// Duplicate mints a new handle to the same object as h, with rights
// reduced by mask (defs.SameRights preserves h's current rights).
// DefaultRights-minted handles always carry RightDuplicate when
// duplication is meant to be possible; Duplicate itself enforces that
// h actually carries it.
func (ht *HandleTable_t) Duplicate(h defs.Handle_t, mask defs.Handle_t) (defs.Handle_t, defs.Err_t) {
	ref, rights, err := ht.Lookup(h)
	if err != defs.Ok {
		return defs.InvalidHandle, err
	}
	if !rights.Has(defs.RightDuplicate) {
		return defs.InvalidHandle, defs.AccessDenied
	}
	nrights := defs.Reduce(rights, mask)
	ref.Ref()
	nh, err := ht.Insert(ref, nrights)
	if err != defs.Ok {
		ref.Unref()
		return defs.InvalidHandle, err
	}
	return nh, defs.Ok
}

// Replace closes h and mints a new handle to the same object with
// rights reduced by mask, atomically from the caller's point of view
// (the underlying reference count is untouched, since this is a move,
// not a duplicate).
func (ht *HandleTable_t) Replace(h defs.Handle_t, mask defs.Handle_t) (defs.Handle_t, defs.Err_t) {
	ht.Lock()
	if int(h) == 0 || int(h) >= len(ht.slots) || !ht.slots[h].used {
		ht.Unlock()
		return defs.InvalidHandle, defs.BadHandle
	}
	s := ht.slots[h]
	nrights := defs.Reduce(s.rights, mask)
	for i := 1; i < len(ht.slots); i++ {
		if i != int(h) && !ht.slots[i].used {
			ht.slots[i] = slot{ref: s.ref, rights: nrights, used: true}
			ht.slots[h] = slot{}
			ht.Unlock()
			return defs.Handle_t(i), defs.Ok
		}
	}
	ht.slots[h] = slot{}
	ht.Unlock()
	s.ref.Unref()
	return defs.InvalidHandle, defs.NoResources
}

// Transfer removes h from this table entirely (without closing the
// underlying object) so a caller (the channel-write path) can install
// it in a different process's table via Insert. The rights carried
// over are whatever h had at the moment of transfer.
func (ht *HandleTable_t) Transfer(h defs.Handle_t) (Ref_i, defs.Rights_t, defs.Err_t) {
	ht.Lock()
	defer ht.Unlock()
	if h == defs.InvalidHandle || int(h) >= len(ht.slots) || !ht.slots[h].used {
		return nil, 0, defs.BadHandle
	}
	s := ht.slots[h]
	if !s.rights.Has(defs.RightTransfer) {
		return nil, 0, defs.AccessDenied
	}
	ht.slots[h] = slot{}
	return s.ref, s.rights, defs.Ok
}

// CloseAll releases every live handle, called when a process exits.
func (ht *HandleTable_t) CloseAll() {
	ht.Lock()
	live := make([]Ref_i, 0, len(ht.slots))
	for i := range ht.slots {
		if ht.slots[i].used {
			live = append(live, ht.slots[i].ref)
			ht.slots[i] = slot{}
		}
	}
	ht.Unlock()
	for _, r := range live {
		_, _ = r.Unref()
	}
}

// Count returns the number of live handles, for diagnostics and
// resource-limit accounting.
func (ht *HandleTable_t) Count() int {
	ht.Lock()
	defer ht.Unlock()
	n := 0
	for i := range ht.slots {
		if ht.slots[i].used {
			n++
		}
	}
	return n
}
