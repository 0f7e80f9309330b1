package ksync

import (
	"sync"
	"time"

	"defs"
	"object"
	"sched"
)

// Event_t is a handle-backed signaling object: a bitmask of user
// signal bits (defs.SigUser0..7) set by Signal and cleared by Clear,
// plus the plumbing (a WaitQueue_t) that lets SysObjectWaitOne block a
// thread until the bits it cares about go high.
type Event_t struct {
	object.Object_t

	mu      sync.Mutex
	signals defs.Signals_t
	closed  bool
	wq      WaitQueue_t
}

// NewEvent allocates a fresh Event_t with every signal bit clear.
func NewEvent() *Event_t {
	e := &Event_t{}
	e.Object_t = object.NewObject(defs.ObjEvent, e)
	return e
}

// Close satisfies object.Closer_i; an event owns nothing beyond its
// own bookkeeping, so there's nothing to release besides waking
// anyone still parked on it with PeerClosed.
func (e *Event_t) Close() defs.Err_t {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wq.WakeAll()
	return defs.Ok
}

// Signals reports the event's current signal state, satisfying
// object.Signaler_i.
func (e *Event_t) Signals() defs.Signals_t {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signals
}

// Signal ORs set into the event's signal bits and wakes every waiter,
// since any of them might now have the bits they were waiting for.
func (e *Event_t) Signal(set defs.Signals_t) defs.Err_t {
	e.mu.Lock()
	e.signals |= set
	e.mu.Unlock()
	e.wq.WakeAll()
	return defs.Ok
}

// Clear ANDs out the bits in clear from the event's signal state.
func (e *Event_t) Clear(clear defs.Signals_t) defs.Err_t {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals &^= clear
	return defs.Ok
}

// Wait blocks t until every bit in want is set in the event's signal
// state, the event is closed, t is killed, or deadline passes (a zero
// deadline waits forever). It returns the signal state observed at
// wake time, which may carry more bits than want if something else
// got set concurrently. A closed event always returns
// defs.PeerClosed, even if want happened to already be satisfied at
// close time, since there is no one left who could signal it again.
//
// The bitmask check and the wait-queue registration happen in the
// same e.mu critical section (not two independently-locked ones): a
// Signal landing between "checked the bits" and "now waiting" would
// otherwise set the bits and call WakeAll against a queue that does
// not yet contain this waiter, losing the wakeup permanently. Signal
// and Close only ever touch e.mu before touching e.wq, never the
// reverse, so this ordering can't deadlock against them.
func (e *Event_t) Wait(t *sched.Thread_t, want defs.Signals_t, deadline time.Time) (defs.Signals_t, defs.Err_t) {
	for {
		e.mu.Lock()
		cur := e.signals
		closed := e.closed
		if closed {
			e.mu.Unlock()
			return cur, defs.PeerClosed
		}
		if cur.Has(want) {
			e.mu.Unlock()
			return cur, defs.Ok
		}
		done := e.wq.EnqueueAndBlock(t)
		e.mu.Unlock()

		if err := e.wq.Park(t, done, deadline); err != defs.Ok {
			return cur, err
		}
	}
}
