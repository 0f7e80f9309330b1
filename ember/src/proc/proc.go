// Package proc ties together the layers below it -- object,
// vm, sched, ksync, accnt -- into the two things a booted kernel
// actually schedules and accounts: a Process_t (one address space, one
// handle table, one futex table, any number of threads) and a Job_t
// (a named group of processes for bulk lifecycle operations). Nothing
// below this package knows about either type; proc is the first layer
// allowed to import
// sched, vm, ksync, and object all at once.
package proc

import (
	"sync"

	"accnt"
	"defs"
	"ksync"
	"object"
	"sched"
	"vm"
)

// Process_t is one address space's worth of kernel-visible state: its
// handle table, its futex table (keyed by physical frame within this
// address space, per ksync's package doc), and the set of threads
// currently running in it.
type Process_t struct {
	object.Object_t

	Pid     defs.Pid_t
	Name    string
	AS      *vm.AddressSpace_t
	Handles object.HandleTable_t
	Futexes *ksync.Table_t

	mu      sync.Mutex
	threads map[defs.Tid_t]*sched.Thread_t
	job     *Job_t
	exited  bool
	exitErr defs.Err_t
}

var pidNext int64
var pidMu sync.Mutex

func nextPid() defs.Pid_t {
	pidMu.Lock()
	defer pidMu.Unlock()
	pidNext++
	return defs.Pid_t(pidNext)
}

// NewProcess creates a process with a fresh address space and no
// threads yet, optionally belonging to job (nil for the root process).
func NewProcess(name string, job *Job_t) *Process_t {
	p := &Process_t{
		Pid:     nextPid(),
		Name:    name,
		AS:      vm.NewAddressSpace(),
		Futexes: ksync.NewTable(),
		threads: make(map[defs.Tid_t]*sched.Thread_t),
		job:     job,
	}
	p.Object_t = object.NewObject(defs.ObjProcess, p)
	if job != nil {
		job.addProcess(p)
	}
	return p
}

// Close implements object.Closer_i: it kills every thread, closes
// every handle, and detaches from its job. Called once the last handle
// to the process object itself closes, which is distinct from (and
// usually happens well after) the process having already exited.
func (p *Process_t) Close() defs.Err_t {
	p.mu.Lock()
	threads := make([]*sched.Thread_t, 0, len(p.threads))
	for _, t := range p.threads {
		threads = append(threads, t)
	}
	job := p.job
	p.mu.Unlock()
	for _, t := range threads {
		t.Kill(defs.PeerClosed)
	}
	p.Handles.CloseAll()
	if job != nil {
		job.removeProcess(p)
	}
	return defs.Ok
}

// Signals reports SigTaskTerm once the process has exited, the
// process-level analog of a thread's Doomed flag.
func (p *Process_t) Signals() defs.Signals_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return defs.SigTaskTerm
	}
	return 0
}

// SpawnThread creates a new thread in this process's address space and
// registers it so Exit/Close can find and kill it later.
func (p *Process_t) SpawnThread() *sched.Thread_t {
	t := sched.NewThread(p.Pid, p.AS)
	p.mu.Lock()
	p.threads[t.Tid] = t
	p.mu.Unlock()
	return t
}

// ThreadExited removes a thread from this process's live set once it
// reaches sched.Dead, called by whatever drives the thread's run loop
// to unwind. If it was the last thread, the process itself is marked
// exited.
func (p *Process_t) ThreadExited(tid defs.Tid_t, err defs.Err_t) {
	p.mu.Lock()
	delete(p.threads, tid)
	last := len(p.threads) == 0
	if last {
		p.exited = true
		p.exitErr = err
	}
	p.mu.Unlock()
}

// Exited reports whether every thread in the process has exited, and
// the error the last one exited with.
func (p *Process_t) Exited() (bool, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitErr
}

// ThreadCount reports the number of threads still alive in the
// process, for diagnostics and for job-wide accounting.
func (p *Process_t) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// Accounting sums every live thread's CPU-time accounting into a
// single snapshot -- there is no separate per-process counter of its
// own; a process's usage is always the sum of its threads'.
func (p *Process_t) Accounting() accnt.Accnt_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total accnt.Accnt_t
	for _, t := range p.threads {
		total.Add(&t.Accnt)
	}
	return total
}

// Job_t groups processes for bulk lifecycle operations (KillAll), the
// way a real capability kernel scopes "kill everything under this
// supervisor" without walking a process tree by PID.
type Job_t struct {
	object.Object_t

	Name string

	mu    sync.Mutex
	procs map[defs.Pid_t]*Process_t
	dead  bool
}

// NewJob creates an empty job.
func NewJob(name string) *Job_t {
	j := &Job_t{Name: name, procs: make(map[defs.Pid_t]*Process_t)}
	j.Object_t = object.NewObject(defs.ObjJob, j)
	return j
}

func (j *Job_t) addProcess(p *Process_t) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.procs[p.Pid] = p
}

func (j *Job_t) removeProcess(p *Process_t) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.procs, p.Pid)
}

// Close kills every process still in the job. Implements
// object.Closer_i.
func (j *Job_t) Close() defs.Err_t {
	j.mu.Lock()
	j.dead = true
	procs := make([]*Process_t, 0, len(j.procs))
	for _, p := range j.procs {
		procs = append(procs, p)
	}
	j.mu.Unlock()
	for _, p := range procs {
		p.Close()
	}
	return defs.Ok
}

// KillAll terminates every process currently in the job without
// closing the job object itself, so the job can still be reused to
// track whatever gets spawned into it next.
func (j *Job_t) KillAll(err defs.Err_t) {
	j.mu.Lock()
	procs := make([]*Process_t, 0, len(j.procs))
	for _, p := range j.procs {
		procs = append(procs, p)
	}
	j.mu.Unlock()
	for _, p := range procs {
		p.mu.Lock()
		threads := make([]*sched.Thread_t, 0, len(p.threads))
		for _, t := range p.threads {
			threads = append(threads, t)
		}
		p.mu.Unlock()
		for _, t := range threads {
			t.Kill(err)
		}
	}
}

// ProcessCount reports the number of live processes in the job.
func (j *Job_t) ProcessCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.procs)
}
