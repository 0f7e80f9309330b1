package ksync

import (
	"fmt"
	"sync"
	"time"

	"defs"
	"hashtable"
	"limits"
	"mem"
	"sched"
	"vm"
)

// futexBuckets sizes the backing hashtable.Hashtable_t; futexes come
// and go with process lifetime, so this is a rough capacity guess, not
// a hard ceiling -- limits.Syslimit.Futexes is the ceiling.
const futexBuckets = 1024

// futexEntry is one live futex's wait queue, reference counted by the
// number of threads currently blocked on it so the table can reclaim
// it the moment it empties -- mirroring limits.Syslimit.Futexes, which
// bounds how many of these may exist system-wide at once. owner
// records whoever last called wait/wake/requeue naming themselves the
// holder; it is stored for a future priority-inheritance scheme and
// never acted on here.
type futexEntry struct {
	wq    WaitQueue_t
	refs  int
	mu    sync.Mutex
	owner uint64
}

func (e *futexEntry) setOwner(o uint64) {
	e.mu.Lock()
	e.owner = o
	e.mu.Unlock()
}

// Owner reports the futex's last-recorded owner, for diagnostics.
func (e *futexEntry) Owner() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}

// Table_t maps a futex key -- the physical page and in-page offset
// backing a user virtual address, not the virtual address itself, so
// that a shared VMO mapped into two address spaces contends on the
// same futex -- to its wait queue. Storage is the teacher's
// hashtable.Hashtable_t; since it only hashes ustr.Ustr/int/int32/
// string keys, the (page, offset) pair is encoded as a string. A
// Table_t's own mutex serializes the get-or-create/delete sequence,
// since Hashtable_t itself offers no atomic get-or-insert.
type Table_t struct {
	mu sync.Mutex
	ht *hashtable.Hashtable_t
}

// NewTable allocates an empty futex table, one per address space.
func NewTable() *Table_t {
	return &Table_t{ht: hashtable.MkHash(futexBuckets)}
}

func futexKey(pa mem.Pa_t, off uintptr) string {
	return fmt.Sprintf("%x:%x", pa, off)
}

func (tb *Table_t) get(key string, create bool) *futexEntry {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if v, ok := tb.ht.Get(key); ok {
		e := v.(*futexEntry)
		e.refs++
		return e
	}
	if !create {
		return nil
	}
	if !limits.Syslimit.Futexes.Take() {
		return nil
	}
	e := &futexEntry{refs: 1}
	tb.ht.Set(key, e)
	return e
}

func (tb *Table_t) put(key string, e *futexEntry) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		tb.ht.Del(key)
		limits.Syslimit.Futexes.Give()
	}
}

// Wait atomically checks that the 32-bit word at uva still equals
// expected and, if so, blocks t on the futex at key until Wake or
// Requeue targets it, t is killed, or deadline passes (a zero
// deadline waits forever). If the word no longer matches, it returns
// defs.ShouldWait immediately without blocking -- the caller already
// missed whatever wake it was racing and must reread and retry. owner
// is recorded on the entry but never propagated (see futexEntry).
//
// The check and the enqueue happen under the futex entry's own
// wait-queue lock (via WaitIf), the only lock a concurrent Wake/
// Requeue also takes -- that is what makes "check *addr==expected,
// else WouldBlock" atomic with respect to a racing wake, since a
// futex has no lock of its own guarding the raw user-memory word.
func (tb *Table_t) Wait(t *sched.Thread_t, as *vm.AddressSpace_t, uva uintptr, expected uint32, owner uint64, deadline time.Time) defs.Err_t {
	key, err := keyFor(as, uva)
	if err != defs.Ok {
		return err
	}
	e := tb.get(key, true)
	if e == nil {
		return defs.NoResources
	}
	defer tb.put(key, e)
	e.setOwner(owner)

	var readErr defs.Err_t
	matched, werr := e.wq.WaitIf(t, deadline, func() bool {
		v, rerr := as.Userreadn(int(uva), 4)
		if rerr != defs.Ok {
			readErr = rerr
			return false
		}
		return uint32(v) == expected
	})
	if readErr != defs.Ok {
		return readErr
	}
	if !matched {
		return defs.ShouldWait
	}
	return werr
}

// Wake wakes up to n threads blocked on the futex at uva in as,
// returning how many were actually woken, and records newOwner on the
// entry. An unmapped or faulting uva simply wakes no one, rather than
// propagating an error -- there is no caller left to hand it to.
func (tb *Table_t) Wake(as *vm.AddressSpace_t, uva uintptr, n int, newOwner uint64) int {
	key, err := keyFor(as, uva)
	if err != defs.Ok {
		return 0
	}
	tb.mu.Lock()
	v, ok := tb.ht.Get(key)
	tb.mu.Unlock()
	if !ok {
		return 0
	}
	e := v.(*futexEntry)
	e.setOwner(newOwner)
	woken := 0
	for i := 0; i < n; i++ {
		if !e.wq.WakeOne() {
			break
		}
		woken++
	}
	return woken
}

// Requeue implements the two-phase FUTEX_REQUEUE operation: after
// atomically verifying the 32-bit word at fromUva still equals
// expected, it wakes up to wakeCount waiters directly at fromUva, then
// moves up to requeueCount of whatever remains to toUva's queue
// without waking them -- the classic optimization for
// condition-variable broadcasts that would otherwise thundering-herd
// on a single lock. Returns (woken, moved, Ok), or (0, 0, err) if the
// word didn't match or uva resolution failed.
func (tb *Table_t) Requeue(as *vm.AddressSpace_t, fromUva, toUva uintptr, expected uint32, wakeCount, requeueCount int, newOwner uint64) (int, int, defs.Err_t) {
	fromKey, err := keyFor(as, fromUva)
	if err != defs.Ok {
		return 0, 0, err
	}
	tb.mu.Lock()
	v, ok := tb.ht.Get(fromKey)
	tb.mu.Unlock()
	if !ok {
		return 0, 0, defs.Ok
	}
	from := v.(*futexEntry)

	var to *futexEntry
	var toKey string
	if requeueCount > 0 {
		toKey, err = keyFor(as, toUva)
		if err == defs.Ok {
			to = tb.get(toKey, true)
		}
	}

	from.wq.mu.Lock()
	cur, rerr := as.Userreadn(int(fromUva), 4)
	if rerr != defs.Ok {
		from.wq.mu.Unlock()
		if to != nil {
			tb.put(toKey, to)
		}
		return 0, 0, rerr
	}
	if uint32(cur) != expected {
		from.wq.mu.Unlock()
		if to != nil {
			tb.put(toKey, to)
		}
		return 0, 0, defs.ShouldWait
	}

	woken := 0
	for woken < wakeCount && len(from.wq.waiters) > 0 {
		w := from.wq.waiters[0]
		from.wq.waiters = from.wq.waiters[1:]
		w.Wake()
		w.ResetPriority()
		woken++
	}

	moved := 0
	if to != nil {
		for moved < requeueCount && len(from.wq.waiters) > 0 {
			w := from.wq.waiters[0]
			from.wq.waiters = from.wq.waiters[1:]
			to.wq.mu.Lock()
			to.wq.waiters = append(to.wq.waiters, w)
			to.wq.mu.Unlock()
			moved++
		}
	}
	from.wq.mu.Unlock()
	from.setOwner(newOwner)
	if to != nil {
		tb.put(toKey, to)
	}
	return woken, moved, defs.Ok
}

// keyFor resolves uva to the futex key for the physical frame backing
// it, faulting the page in if it isn't resident yet (see
// vm.AddressSpace_t.PageFrame). Two mappings of the same shared frame
// resolve to the same key; two unrelated writable mappings never
// collide, even at the same virtual address.
func keyFor(as *vm.AddressSpace_t, uva uintptr) (string, defs.Err_t) {
	pa, err := as.PageFrame(uva)
	if err != defs.Ok {
		return "", err
	}
	return futexKey(pa, uva&uintptr(vm.PGOFFSET)), defs.Ok
}
