package ksync

import (
	"sync"
	"time"

	"defs"
	"limits"
	"sched"
)

// Timer_t is a one-shot or periodic alarm that signals a WaitQueue_t
// when it fires, the same way a hardware deadline would wake a thread
// parked in a kernel wait. There is no APIC deadline register to
// program here, so time.Timer/time.AfterFunc stands in for it --
// accnt.Accnt_t already reaches for the same wall clock via
// time.Now().UnixNano() for CPU-time accounting, so this is the
// established way this tree touches time at all.
type Timer_t struct {
	mu        sync.Mutex
	wq        WaitQueue_t
	timer     *time.Timer
	period    time.Duration
	fireCount uint64
	stopped   bool
}

// NewTimer allocates an armed (if dur > 0) or disarmed (dur == 0)
// timer. A zero period one-shots; a positive period rearms itself
// after every fire until Stop is called.
func NewTimer(dur, period time.Duration) (*Timer_t, defs.Err_t) {
	if !limits.Syslimit.Timers.Take() {
		return nil, defs.NoResources
	}
	tm := &Timer_t{period: period}
	if dur > 0 {
		tm.timer = time.AfterFunc(dur, tm.fire)
	}
	return tm, defs.Ok
}

func (tm *Timer_t) fire() {
	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return
	}
	tm.fireCount++
	rearm := tm.period > 0
	if rearm {
		tm.timer = time.AfterFunc(tm.period, tm.fire)
	}
	tm.mu.Unlock()
	tm.wq.WakeAll()
}

// Wait blocks t until the timer next fires, or t is killed.
func (tm *Timer_t) Wait(t *sched.Thread_t) defs.Err_t {
	return tm.wq.Wait(t)
}

// Reset rearms the timer to fire after dur, replacing any pending
// fire. A dur of 0 disarms it without freeing its resource slot.
func (tm *Timer_t) Reset(dur time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.timer != nil {
		tm.timer.Stop()
		tm.timer = nil
	}
	if dur > 0 {
		tm.timer = time.AfterFunc(dur, tm.fire)
	}
}

// FireCount reports how many times the timer has fired so far.
func (tm *Timer_t) FireCount() uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.fireCount
}

// Stop disarms the timer permanently and releases its slot in
// limits.Syslimit.Timers. Threads already parked on it are left to be
// woken by a concurrent fire, if one is already in flight; no new wait
// should be started against a stopped timer.
func (tm *Timer_t) Stop() {
	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return
	}
	tm.stopped = true
	if tm.timer != nil {
		tm.timer.Stop()
		tm.timer = nil
	}
	tm.mu.Unlock()
	limits.Syslimit.Timers.Give()
}
