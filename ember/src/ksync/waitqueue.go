// Package ksync implements the kernel's blocking synchronization
// primitives: wait queues, signalable events, futexes keyed by the
// physical frame and in-page offset behind a user virtual address,
// deferred procedure calls, and one-shot/periodic
// timers. Every primitive here blocks by calling sched.Thread_t.Block
// on the caller-supplied thread (never an implicitly discovered
// "current thread" -- see the sched package doc comment) and wakes by
// calling Wake on the thread(s) it was holding.
package ksync

import (
	"sync"
	"time"

	"defs"
	"sched"
)

// WaitQueue_t is a FIFO queue of threads blocked on some condition --
// a channel with no ready message, a port with nothing queued, a
// join on a thread that hasn't exited. It is the one primitive every
// other wait mechanism in this package (and in ipc) is built from.
type WaitQueue_t struct {
	mu      sync.Mutex
	waiters []*sched.Thread_t
}

// EnqueueAndBlock transitions t to Blocked and appends it to the
// queue, in that order. Wake() is a no-op unless the target thread is
// already Blocked, so a WakeOne/WakeAll that popped t before Block ran
// would silently lose the wakeup; doing Block first closes that
// window entirely. Callers that need the enqueue to be atomic with
// respect to a condition check (so a concurrent signal can't land in
// the gap between "condition not yet met" and "now waiting for it")
// must call this while still holding whatever lock serializes against
// that signal -- see Event_t.Wait for the pattern.
func (wq *WaitQueue_t) EnqueueAndBlock(t *sched.Thread_t) <-chan struct{} {
	done := t.Block()
	wq.mu.Lock()
	wq.waiters = append(wq.waiters, t)
	wq.mu.Unlock()
	return done
}

// Park waits on done (as returned by EnqueueAndBlock) until it closes
// or deadline passes; a zero deadline waits forever. On timeout it
// removes t from the queue so a later Wake doesn't find a stale
// entry, and resets t's bookkeeping state back to Runnable the same
// way Kill does. Returns the thread's kill error if t was killed,
// defs.TimedOut on expiry, else defs.Ok.
func (wq *WaitQueue_t) Park(t *sched.Thread_t, done <-chan struct{}, deadline time.Time) defs.Err_t {
	if deadline.IsZero() {
		<-done
	} else {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			select {
			case <-done:
				// a genuine wake raced the timer; treat it as a wake.
			default:
				wq.remove(t)
				t.Wake()
				return defs.TimedOut
			}
		}
	}
	if killed, err := t.Killed(); killed {
		wq.remove(t)
		return err
	}
	return defs.Ok
}

// Wait parks t on the queue and blocks until Wake(Any|One) releases it
// or t is killed, returning the error the thread should unwind with
// (defs.Ok on an ordinary wake).
func (wq *WaitQueue_t) Wait(t *sched.Thread_t) defs.Err_t {
	done := wq.EnqueueAndBlock(t)
	return wq.Park(t, done, time.Time{})
}

// WaitDeadline is Wait with an absolute deadline; a zero deadline
// waits forever, identical to Wait.
func (wq *WaitQueue_t) WaitDeadline(t *sched.Thread_t, deadline time.Time) defs.Err_t {
	done := wq.EnqueueAndBlock(t)
	return wq.Park(t, done, deadline)
}

// WaitIf evaluates cond while holding the queue's own lock and, if it
// reports true, enqueues and blocks t before releasing that lock --
// the primitive futex_wait needs, since a futex has no lock of its
// own guarding the raw user-memory value it checks. wq.mu is the same
// lock WakeOne/WakeAll take to pop waiters, so evaluating cond under
// it makes the check-then-sleep atomic with respect to a racing wake.
// matched reports whether cond held (and t was therefore enqueued);
// if it didn't, err is always defs.Ok and the caller should treat the
// call as a non-blocking WouldBlock.
func (wq *WaitQueue_t) WaitIf(t *sched.Thread_t, deadline time.Time, cond func() bool) (matched bool, err defs.Err_t) {
	wq.mu.Lock()
	if !cond() {
		wq.mu.Unlock()
		return false, defs.Ok
	}
	done := t.Block()
	wq.waiters = append(wq.waiters, t)
	wq.mu.Unlock()
	return true, wq.Park(t, done, deadline)
}

func (wq *WaitQueue_t) remove(t *sched.Thread_t) {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	for i, w := range wq.waiters {
		if w == t {
			wq.waiters = append(wq.waiters[:i], wq.waiters[i+1:]...)
			return
		}
	}
}

// WakeOne wakes the longest-waiting thread, if any, reporting whether
// one was found.
func (wq *WaitQueue_t) WakeOne() bool {
	wq.mu.Lock()
	if len(wq.waiters) == 0 {
		wq.mu.Unlock()
		return false
	}
	t := wq.waiters[0]
	wq.waiters = wq.waiters[1:]
	wq.mu.Unlock()
	t.Wake()
	t.ResetPriority()
	return true
}

// WakeAll wakes every waiting thread, returning how many there were.
func (wq *WaitQueue_t) WakeAll() int {
	wq.mu.Lock()
	all := wq.waiters
	wq.waiters = nil
	wq.mu.Unlock()
	for _, t := range all {
		t.Wake()
		t.ResetPriority()
	}
	return len(all)
}

// Len reports the number of threads currently waiting.
func (wq *WaitQueue_t) Len() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return len(wq.waiters)
}
