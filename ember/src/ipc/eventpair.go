package ipc

import (
	"sync"
	"time"

	"defs"
	"ksync"
	"object"
	"sched"
)

// eventpairShared is the pair-wide state two EventPair_t endpoints
// coordinate through: each side's own user signal bits plus the
// closed flag that drives the other side's PeerClosed.
type eventpairShared struct {
	mu      sync.Mutex
	signals [2]defs.Signals_t
	closed  [2]bool
}

// EventPair_t is one endpoint of a pair of signalable objects where
// signaling one side's peer-bits is observed as SigPeerSignal on the
// other, and closing one side sets SigPeerClosed on the other -- a
// rendezvous primitive distinct from Event_t (which has only one
// side) and from Channel_t (which carries a message queue rather than
// a bare signal state).
type EventPair_t struct {
	object.Object_t

	shared *eventpairShared
	index  int
	wq     *ksync.WaitQueue_t
}

// NewEventPair creates two connected EventPair endpoints.
func NewEventPair() (*EventPair_t, *EventPair_t, defs.Err_t) {
	shared := &eventpairShared{}
	wq := &ksync.WaitQueue_t{}
	a := &EventPair_t{shared: shared, index: 0, wq: wq}
	b := &EventPair_t{shared: shared, index: 1, wq: wq}
	a.Object_t = object.NewObject(defs.ObjEventPair, a)
	b.Object_t = object.NewObject(defs.ObjEventPair, b)
	return a, b, defs.Ok
}

func (e *EventPair_t) peerIndex() int { return 1 - e.index }

// Close marks this endpoint closed and wakes the peer so it observes
// PeerClosed on its next Signals()/Wait() check.
func (e *EventPair_t) Close() defs.Err_t {
	e.shared.mu.Lock()
	e.shared.closed[e.index] = true
	e.shared.mu.Unlock()
	e.wq.WakeAll()
	return defs.Ok
}

// Signals reports this endpoint's own user signal bits (set via
// Signal on this side) plus SigPeerSignal if the peer has signaled,
// and SigPeerClosed if the peer has closed.
func (e *EventPair_t) Signals() defs.Signals_t {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()
	s := e.shared.signals[e.index]
	if e.shared.signals[e.peerIndex()] != 0 {
		s |= defs.SigPeerSignal
	}
	if e.shared.closed[e.peerIndex()] {
		s |= defs.SigPeerClosed
	}
	return s
}

// Signal ORs set into this endpoint's own signal bits (observable via
// this side's Signals()) and wakes the peer, since that's who
// SigPeerSignal would be newly true for.
func (e *EventPair_t) Signal(set defs.Signals_t) defs.Err_t {
	e.shared.mu.Lock()
	e.shared.signals[e.index] |= set
	e.shared.mu.Unlock()
	e.wq.WakeAll()
	return defs.Ok
}

// Wait blocks t until every bit in want is observable via Signals(),
// the peer closes, t is killed, or deadline passes (a zero deadline
// waits forever). A peer close always returns PeerClosed, even if
// want was already satisfied by the time it happened, since there is
// no one left who could signal further.
//
// The signal/closed check and the wait-queue registration happen
// under the same shared.mu critical section, the same fix Event_t.Wait
// applies: Signal and Close both take shared.mu before ever touching
// wq, so a signal landing between an unlocked check and a separately
// locked wq.Wait would otherwise be lost.
func (e *EventPair_t) Wait(t *sched.Thread_t, want defs.Signals_t, deadline time.Time) (defs.Signals_t, defs.Err_t) {
	for {
		e.shared.mu.Lock()
		peerClosed := e.shared.closed[e.peerIndex()]
		cur := e.shared.signals[e.index]
		if e.shared.signals[e.peerIndex()] != 0 {
			cur |= defs.SigPeerSignal
		}
		if peerClosed {
			cur |= defs.SigPeerClosed
			e.shared.mu.Unlock()
			return cur, defs.PeerClosed
		}
		if cur.Has(want) {
			e.shared.mu.Unlock()
			return cur, defs.Ok
		}
		done := e.wq.EnqueueAndBlock(t)
		e.shared.mu.Unlock()

		if err := e.wq.Park(t, done, deadline); err != defs.Ok {
			return cur, err
		}
	}
}
