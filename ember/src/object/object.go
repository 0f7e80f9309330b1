// Package object implements the kernel object base and the per-process
// handle table: the capability layer every other subsystem's objects
// (VMOs, VMARs, channels, events, ports, processes, threads) plug into.
// A Koid_t uniquely names an object for its lifetime; a Handle_t is the
// small opaque integer a process holds that names one reference to one
// object, carrying its own independently-reducible rights mask.
package object

import (
	"sync"
	"sync/atomic"

	"defs"
)

// Koid_t is a kernel object ID: unique for the life of the boot,
// assigned once at object creation and never reused, so a debugger or
// a diagnostic syscall can name an object that has since been
// destroyed without ambiguity -- mirroring defs.Tid_t's rationale.
type Koid_t uint64

var koidNext uint64

// NextKoid hands out the next unique kernel object ID.
func NextKoid() Koid_t {
	return Koid_t(atomic.AddUint64(&koidNext, 1))
}

// Closer_i is implemented by an object's concrete payload to release
// whatever it owns (VMO pages, channel-queued messages, a waiter list)
// when its last handle closes.
type Closer_i interface {
	Close() defs.Err_t
}

// Signaler_i is implemented by objects that can report a signal state
// (readable, writable, peer-closed, signaled) for Wait to poll. Objects
// with no interesting signals (a bare VMAR, say) need not implement it;
// Wait then always blocks until the handle itself is closed.
type Signaler_i interface {
	Signals() defs.Signals_t
}

// Object_t is the common header embedded at the front of every
// concrete kernel object type (Vmo, Channel, Event, ...). It carries
// identity and the reference count of handles/mappings pointing at it;
// the concrete type supplies Closer_i/Signaler_i as needed.
type Object_t struct {
	Koid    Koid_t
	Type    defs.ObjType_t
	mu      sync.Mutex
	refcnt  int32
	payload Closer_i
}

// NewObject initializes an Object_t header for a freshly created object
// of the given type, backed by payload for Close.
func NewObject(t defs.ObjType_t, payload Closer_i) Object_t {
	return Object_t{Koid: NextKoid(), Type: t, refcnt: 1, payload: payload}
}

// Ref bumps the object's reference count, called whenever a new handle
// is minted for it (including Duplicate).
func (o *Object_t) Ref() {
	atomic.AddInt32(&o.refcnt, 1)
}

// Unref drops the reference count and, once it reaches zero, calls the
// payload's Close and returns its result. A caller that gets back
// defs.Ok with ok=false did not own the last reference and must not
// treat the object as destroyed.
func (o *Object_t) Unref() (defs.Err_t, bool) {
	if atomic.AddInt32(&o.refcnt, -1) > 0 {
		return defs.Ok, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.payload == nil {
		return defs.Ok, true
	}
	return o.payload.Close(), true
}

// Refcnt reports the current reference count, for diagnostics.
func (o *Object_t) Refcnt() int32 {
	return atomic.LoadInt32(&o.refcnt)
}

// ObjType reports the object's concrete kind, satisfying Ref_i so any
// type embedding Object_t can be installed directly in a HandleTable_t.
func (o *Object_t) ObjType() defs.ObjType_t {
	return o.Type
}
