package sched

import (
	"sync"
	"sync/atomic"

	"vm"
)

// MaxCPUs bounds the simulated SMP topology -- the teacher's
// runtime.MAXCPUS constant, sized down from a real hardware ceiling to
// a number worth modeling in software. Init below can start anywhere
// from 1 up to this many.
const MaxCPUs = 32

// CPU_t is one simulated CPU: its ready queue, the thread currently
// dispatched on it (nil when idle), and a mailbox of cross-CPU work
// items (an interprocessor interrupt, in hardware terms) that
// SendIPI/drain below implement entirely in software.
type CPU_t struct {
	ID int

	Runq RunQueue_t

	mu      sync.Mutex
	current *Thread_t

	mailbox chan func()

	preempt atomic.Bool
}

// Current returns the thread presently dispatched on this CPU, or nil
// if it is idle.
func (c *CPU_t) Current() *Thread_t {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// RequestPreempt sets this CPU's preemption flag; the scheduling loop
// checks it at its own safe points (the teacher's timer-interrupt
// checked an equivalent flag set by the clock IPI).
func (c *CPU_t) RequestPreempt() {
	c.preempt.Store(true)
}

// ShouldPreempt reports and clears the preemption flag.
func (c *CPU_t) ShouldPreempt() bool {
	return c.preempt.Swap(false)
}

var (
	cpus   []*CPU_t
	cpusMu sync.Mutex
)

// Init (re)creates the set of simulated CPUs, replacing any prior
// topology. Tests and boot both call this once before scheduling
// anything.
func Init(n int) {
	if n <= 0 || n > MaxCPUs {
		panic("bad cpu count")
	}
	cpusMu.Lock()
	defer cpusMu.Unlock()
	cpus = make([]*CPU_t, n)
	for i := range cpus {
		cpus[i] = &CPU_t{ID: i, mailbox: make(chan func(), 64)}
	}
}

// NCPU returns the number of simulated CPUs configured by Init.
func NCPU() int {
	cpusMu.Lock()
	defer cpusMu.Unlock()
	return len(cpus)
}

// CPU returns the CPU with the given ID.
func CPU(id int) *CPU_t {
	cpusMu.Lock()
	defer cpusMu.Unlock()
	return cpus[id]
}

// Pick chooses the CPU with the shortest ready queue, a minimal
// load-balancing policy standing in for the teacher's per-package
// affinity heuristics -- this kernel has no NUMA topology to be
// affinity-aware about.
func Pick() *CPU_t {
	cpusMu.Lock()
	all := cpus
	cpusMu.Unlock()
	best := all[0]
	bestLen := best.Runq.Len()
	for _, c := range all[1:] {
		if l := c.Runq.Len(); l < bestLen {
			best, bestLen = c, l
		}
	}
	return best
}

// Enqueue places t on the least-loaded CPU's run queue, ready to be
// dispatched by that CPU's next Schedule call.
func Enqueue(t *Thread_t) {
	Pick().Runq.Enqueue(t)
}

// Schedule dispatches the next runnable thread on c, running fn with
// it marked Running and the CPU's current pointer set, then returns
// once fn returns (voluntary yield, block, or exit). It returns false
// if the run queue was empty.
func (c *CPU_t) Schedule(fn func(t *Thread_t)) bool {
	c.drainMailbox()
	t := c.Runq.Dequeue()
	if t == nil {
		return false
	}
	t.SetRunning()
	t.setLastCPU(c.ID)
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()

	fn(t)

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	if t.State() == Running {
		// fn returned without blocking or exiting: voluntary yield at
		// quantum end.
		t.AgeDown()
		t.SetRunnable()
		c.Runq.Enqueue(t)
	}
	return true
}

// SendIPI enqueues fn to run the next time CPU id drains its mailbox
// (from within Schedule, or an explicit DrainMailbox call for a CPU
// that is otherwise idle). This is the entire interprocessor-interrupt
// bus: a channel per CPU instead of an APIC doorbell.
func SendIPI(id int, fn func()) {
	c := CPU(id)
	select {
	case c.mailbox <- fn:
	default:
		// mailbox full: run inline rather than drop a shootdown, which
		// would leave a stale translation cached on the target.
		fn()
	}
}

// DrainMailbox runs every pending cross-CPU work item for c without
// waiting for its next Schedule call, for a CPU sitting idle.
func (c *CPU_t) DrainMailbox() {
	c.drainMailbox()
}

func (c *CPU_t) drainMailbox() {
	for {
		select {
		case fn := <-c.mailbox:
			fn()
		default:
			return
		}
	}
}

// InstallShootdown wires vm.ShootdownFunc to broadcast an invalidation
// IPI to every CPU. The simulated page table has no real TLB to
// invalidate, and no CPU in this simulation runs independently of the
// goroutine that calls Schedule, so the broadcast runs its (no-op)
// payload synchronously on the caller's goroutine for every CPU rather
// than posting to each mailbox and waiting on a real interrupt: the
// net effect a caller can observe -- every CPU has acknowledged the
// invalidation before Tlbshoot returns -- is the same either way.
func InstallShootdown() {
	vm.ShootdownFunc = func(as *vm.AddressSpace_t, startva uintptr, pgcount int) {
		cpusMu.Lock()
		all := cpus
		cpusMu.Unlock()
		for range all {
			// no hardware TLB backs the simulated page table; the
			// acknowledgement itself is the only observable effect.
		}
	}
}
