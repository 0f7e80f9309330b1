// Package sched implements the preemptible thread scheduler: per-CPU
// run queues across 32 priority bands, the thread state machine, and
// the software interprocessor-interrupt bus that the vm package's TLB
// shootdown hook and the ksync package's cross-CPU wakeups both ride
// on. It generalizes the teacher's accnt/tinfo pairing (time
// accounting plus a per-thread "note") from a single-process, Unix-y
// scheduler into one that schedules arbitrary capability-kernel
// threads, none of which have an implicit notion of a current
// directory, signal mask, or any of the other Unix process state this
// kernel's objects replace with handles.
//
// The teacher locates the running thread's Tnote_t via
// runtime.Gptr/Setgptr, a pair of hooks only available in a runtime
// fork. Stock Go has no goroutine-local storage, so this package
// never tries to recover "the current thread" implicitly: every
// blocking call in ksync and ipc takes the calling *Thread_t as an
// explicit parameter, the same way context.Context is threaded
// explicitly through blocking calls elsewhere in this kernel.
package sched

import (
	"sync"
	"sync/atomic"

	"accnt"
	"caller"
	"defs"
	"vm"
)

// ThreadState_t is the thread state machine. A thread moves strictly
// Runnable -> Running -> {Runnable, Blocked, Dead}; Blocked always
// returns to Runnable, whether woken or killed while waiting (Kill
// also sets the killed flag).
type ThreadState_t int32

const (
	Runnable ThreadState_t = iota
	Running
	Blocked
	Dead
)

func (s ThreadState_t) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// NumPriorities is the number of run-queue bands a thread can occupy;
// 0 is highest priority. A thread's band only ever decreases
// (ages down) as it consumes quantum without blocking, and resets to
// PriorityDefault when it blocks and is later woken, favoring threads
// that block often (I/O- and IPC-bound) over CPU hogs.
const NumPriorities = 32

// PriorityDefault is the band a freshly created or just-woken thread
// starts in.
const PriorityDefault = NumPriorities / 2

// Thread_t is one schedulable thread of execution. Its address space
// is a *vm.AddressSpace_t shared by every thread of the same process;
// Pid ties sibling threads together for accounting and for the object
// layer's process-wide handle table.
type Thread_t struct {
	Tid defs.Tid_t
	Pid defs.Pid_t

	Accnt accnt.Accnt_t
	AS    *vm.AddressSpace_t

	mu       sync.Mutex
	state    ThreadState_t
	priority int
	killed   bool
	doomed   bool
	killErr  defs.Err_t
	waitDone chan struct{}

	// CPU the scheduler last ran this thread on, used to target an IPI
	// when another CPU needs this thread's TLB flushed or it needs
	// waking via a targeted doorbell instead of a broadcast.
	lastCPU int32
}

var tidNext int64

// NextTid hands out the next unique thread ID for the life of the
// boot; like defs.Pid_t, values are never reused so a reference to an
// exited thread is never ambiguous.
func NextTid() defs.Tid_t {
	return defs.Tid_t(atomic.AddInt64(&tidNext, 1))
}

// NewThread creates a thread in the Runnable state at the default
// priority, belonging to address space as.
func NewThread(pid defs.Pid_t, as *vm.AddressSpace_t) *Thread_t {
	return &Thread_t{
		Tid:      NextTid(),
		Pid:      pid,
		AS:       as,
		state:    Runnable,
		priority: PriorityDefault,
		lastCPU:  -1,
	}
}

// State returns the thread's current state.
func (t *Thread_t) State() ThreadState_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Priority returns the thread's current run-queue band.
func (t *Thread_t) Priority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// setState moves the thread to s, panicking on a transition the state
// machine doesn't allow -- these would all be kernel bugs, not
// recoverable user errors.
func (t *Thread_t) setState(s ThreadState_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.state == Dead:
		caller.PanicOnce("thread already dead")
	case s == Running && t.state != Runnable:
		caller.PanicOnce("only a runnable thread may run")
	case s == Blocked && t.state != Running:
		caller.PanicOnce("only a running thread may block")
	}
	t.state = s
}

// AgeDown lowers the thread's priority band by one (toward the least
// favored, NumPriorities-1), called each time its quantum expires
// without it blocking.
func (t *Thread_t) AgeDown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.priority < NumPriorities-1 {
		t.priority++
	}
}

// ResetPriority restores the thread to the default band, called when
// a blocked thread wakes.
func (t *Thread_t) ResetPriority() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.priority = PriorityDefault
}

// Block transitions the thread to Blocked and returns a channel that
// closes when the thread is later woken (by Wake) or killed. Callers
// in ksync use this as the rendezvous point for condition-variable
// style waits; the thread itself does not own a goroutine the
// scheduler suspends and resumes -- that model doesn't exist without
// runtime support, so "blocking" here means the calling goroutine
// parks on waitDone directly.
func (t *Thread_t) Block() <-chan struct{} {
	t.mu.Lock()
	if t.killed {
		t.mu.Unlock()
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	t.state = Blocked
	t.waitDone = make(chan struct{})
	ch := t.waitDone
	t.mu.Unlock()
	return ch
}

// Wake moves a Blocked thread back to Runnable and releases anyone
// parked on the channel Block returned.
func (t *Thread_t) Wake() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Blocked {
		return
	}
	t.state = Runnable
	if t.waitDone != nil {
		close(t.waitDone)
		t.waitDone = nil
	}
}

// Kill marks the thread doomed with err and, if it is currently
// blocked, wakes it immediately so it can observe Killed() and unwind.
func (t *Thread_t) Kill(err defs.Err_t) {
	t.mu.Lock()
	t.killed = true
	t.doomed = true
	t.killErr = err
	wasBlocked := t.state == Blocked
	if wasBlocked {
		t.state = Runnable
	}
	ch := t.waitDone
	t.waitDone = nil
	t.mu.Unlock()
	if wasBlocked && ch != nil {
		close(ch)
	}
}

// Killed reports whether the thread has been marked for death and, if
// so, the error it should unwind with.
func (t *Thread_t) Killed() (bool, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killed, t.killErr
}

// Doomed reports whether the thread is marked doomed, mirroring the
// teacher's Tnote_t.Doomed -- a thread observes this at its own
// preemption-check points rather than being asynchronously unwound.
func (t *Thread_t) Doomed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doomed
}

// SetRunning transitions a Runnable thread to Running, called by the
// scheduler when it dispatches the thread onto a CPU.
func (t *Thread_t) SetRunning() {
	t.setState(Running)
}

// SetRunnable transitions a Running thread back to Runnable, called by
// the scheduler when the thread's quantum expires.
func (t *Thread_t) SetRunnable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		caller.PanicOnce("only a running thread may yield")
	}
	t.state = Runnable
}

// Exit transitions the thread to Dead. A dead thread is never
// rescheduled; its *Thread_t lingers only as long as something still
// references it (a Wait handle, a debugger).
func (t *Thread_t) Exit() {
	t.setState(Dead)
}

// LastCPU returns the CPU ID this thread last ran on, or -1 if it has
// never run.
func (t *Thread_t) LastCPU() int {
	return int(atomic.LoadInt32(&t.lastCPU))
}

func (t *Thread_t) setLastCPU(id int) {
	atomic.StoreInt32(&t.lastCPU, int32(id))
}
