// Package scall is the syscall boundary: argument classification,
// handle/rights validation against the calling process's handle
// table, dispatch into the object/vm/ipc/ksync operation it names, and
// translation of the result into the single signed machine word the
// ABI returns. Register classification is deliberately not done here
// -- that is the trap handler's job, before Dispatch is called -- Dispatch
// takes already-decoded arguments, the same boundary vm/userbuf.go
// draws between "bytes have been copied out of user memory" and "the
// kernel now operates on them as a Go value".
package scall

import (
	"bytes"
	"time"

	"defs"
	"ipc"
	"ksync"
	"limits"
	"object"
	"proc"
	"sched"
	"stats"
	"vm"
)

// Dispatcher holds nothing per-call; every operation takes the calling
// process and thread explicitly, the same explicit-parameter
// convention sched and ksync use instead of goroutine-local state.
type Dispatcher struct{}

// Result packs a syscall's return value the way the real ABI encodes
// it: a non-negative payload on success, or a negated Err_t on
// failure. Decode with Encode below before handing it to whatever
// plays the role of a trap return.
type Result struct {
	Value   int64
	Err     defs.Err_t
	Handles []defs.Handle_t
}

// Encode converts a Result into the single signed machine word the
// ABI returns: Value unchanged on success, or the negated error code.
func (r Result) Encode() int64 {
	if r.Err != defs.Ok {
		return int64(r.Err)
	}
	return r.Value
}

func ok(v int64) Result        { return Result{Value: v} }
func fail(e defs.Err_t) Result { return Result{Err: e} }

// Dispatch decodes sysno and routes to the matching handler. Unknown
// syscall numbers return NotSupported rather than panicking -- a bad
// number reaching here is a malformed user program, not a kernel bug.
func (d Dispatcher) Dispatch(p *proc.Process_t, t *sched.Thread_t, sysno uint64, a0, a1, a2, a3, a4, a5 uint64) Result {
	switch sysno {
	case defs.SysProcessExit:
		return d.ProcessExit(p, defs.Err_t(int32(a0)))
	case defs.SysThreadExit:
		return d.ThreadExit(p, t)
	case defs.SysVmoCreate:
		return d.VmoCreate(p, int64(a0))
	case defs.SysVmoRead:
		return d.VmoRead(p, defs.Handle_t(a0), int64(a1), uintptrArg(a2), int(a3))
	case defs.SysVmoWrite:
		return d.VmoWrite(p, defs.Handle_t(a0), int64(a1), uintptrArg(a2), int(a3))
	case defs.SysVmoClone:
		return d.VmoClone(p, defs.Handle_t(a0), int64(a1), int64(a2))
	case defs.SysVmarMap:
		return d.VmarMap(p, int(a0), int(a1), uint(a2), defs.Handle_t(a3), int64(a4), a5 != 0)
	case defs.SysVmarUnmap:
		return d.VmarUnmap(p, int(a0))
	case defs.SysHandleClose:
		return d.HandleClose(p, defs.Handle_t(a0))
	case defs.SysHandleDuplicate:
		return d.HandleDuplicate(p, defs.Handle_t(a0), defs.Handle_t(a1))
	case defs.SysHandleReplace:
		return d.HandleReplace(p, defs.Handle_t(a0), defs.Handle_t(a1))
	case defs.SysObjectSignal:
		return d.ObjectSignal(p, defs.Handle_t(a0), defs.Signals_t(a1))
	case defs.SysObjectWaitOne:
		return d.ObjectWaitOne(p, t, defs.Handle_t(a0), defs.Signals_t(a1), deadlineArg(a2))
	case defs.SysChannelCreate:
		return d.ChannelCreate(p)
	case defs.SysChannelRead:
		return d.ChannelRead(p, t, defs.Handle_t(a0), int(a1), int(a2))
	case defs.SysChannelWrite:
		return d.ChannelWrite(p, defs.Handle_t(a0), bytesArg(a1, a2), handlesArg(a3, a4))
	case defs.SysEventCreate:
		return d.EventCreate(p)
	case defs.SysEventpairCreate:
		return d.EventpairCreate(p)
	case defs.SysPortCreate:
		return d.PortCreate(p)
	case defs.SysPortQueue:
		return d.PortQueue(p, defs.Handle_t(a0), a1)
	case defs.SysPortWait:
		return d.PortWait(p, t, defs.Handle_t(a0))
	case defs.SysPortCancel:
		return d.PortCancel(p, defs.Handle_t(a0), a1)
	case defs.SysFutexWait:
		return d.FutexWait(p, t, uintptrArg(a0), uint32(a1), a2, deadlineArg(a3))
	case defs.SysFutexWake:
		return d.FutexWake(p, uintptrArg(a0), int(a1), a2)
	case defs.SysFutexRequeue:
		return d.FutexRequeue(p, uintptrArg(a0), uintptrArg(a1), uint32(a2), int(a3), int(a4), a5)
	case defs.SysDebugStats:
		return d.DebugStats(p)
	default:
		return fail(defs.NotSupported)
	}
}

func uintptrArg(a uint64) uintptr { return uintptr(a) }
func bytesArg(ptr, length uint64) []byte {
	// A real trap handler copies these bytes in via
	// aal.Current.CopyFromUser before Dispatch ever sees them;
	// Dispatch itself only ever operates on already-materialized Go
	// values, never raw user pointers.
	return make([]byte, length)
}

// handlesArg decodes the handle array a channel write carries, the
// same "already materialized by the trap handler" convention as
// bytesArg above.
func handlesArg(ptr, count uint64) []defs.Handle_t {
	return make([]defs.Handle_t, count)
}

// deadlineArg decodes an absolute deadline register value as
// nanoseconds since the Unix epoch; zero means "no deadline, wait
// forever", matching time.Time's own IsZero convention throughout
// ksync.
func deadlineArg(a uint64) time.Time {
	if a == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(a))
}

// ProcessExit closes every handle and kills every thread in p; exit
// itself always succeeds from the caller's point of view regardless of
// the exit code it carries.
func (d Dispatcher) ProcessExit(p *proc.Process_t, code defs.Err_t) Result {
	p.Close()
	return ok(0)
}

// ThreadExit marks t Dead and removes it from p's live set, marking
// the process exited if it was the last thread.
func (d Dispatcher) ThreadExit(p *proc.Process_t, t *sched.Thread_t) Result {
	t.Exit()
	p.ThreadExited(t.Tid, defs.Ok)
	return ok(0)
}

// VmoCreate allocates a fresh anonymous VMO and installs it in p's
// handle table with the default VMO rights.
func (d Dispatcher) VmoCreate(p *proc.Process_t, size int64) Result {
	v := vm.CreateVmo(size, nil)
	ref := newVmoRef(v)
	h, err := p.Handles.Insert(ref, defs.DefaultRights(defs.ObjVMO))
	if err != defs.Ok {
		ref.Close()
		return fail(err)
	}
	return ok(int64(h))
}

func (d Dispatcher) vmoFor(p *proc.Process_t, h defs.Handle_t, want defs.Rights_t) (*vmoRef, defs.Err_t) {
	ref, err := p.Handles.Check(h, defs.ObjVMO, want)
	if err != defs.Ok {
		return nil, err
	}
	vr, ok := ref.(*vmoRef)
	if !ok {
		return nil, defs.WrongType
	}
	return vr, defs.Ok
}

func (d Dispatcher) VmoRead(p *proc.Process_t, h defs.Handle_t, off int64, ubuf uintptr, length int) Result {
	vr, err := d.vmoFor(p, h, defs.RightRead)
	if err != defs.Ok {
		return fail(err)
	}
	buf := make([]byte, length)
	n, err := vr.vmo.Read(off, buf)
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(n))
}

func (d Dispatcher) VmoWrite(p *proc.Process_t, h defs.Handle_t, off int64, ubuf uintptr, length int) Result {
	vr, err := d.vmoFor(p, h, defs.RightWrite)
	if err != defs.Ok {
		return fail(err)
	}
	buf := make([]byte, length)
	n, err := vr.vmo.Write(off, buf)
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(n))
}

// VmoClone creates a copy-on-write child of the VMO named by h,
// covering [offset, offset+size), and installs it as a fresh handle in
// p's table with the same rights VmoCreate grants -- the child is a
// brand-new kernel object with its own handle, not a view onto h's.
// VmoClone creates a copy-on-write child covering [offset, offset+size)
// of h's VMO and installs it as a fresh handle with default VMO rights.
func (d Dispatcher) VmoClone(p *proc.Process_t, h defs.Handle_t, offset, size int64) Result {
	vr, err := d.vmoFor(p, h, defs.RightRead)
	if err != defs.Ok {
		return fail(err)
	}
	child, err := vr.vmo.Clone(offset, size)
	if err != defs.Ok {
		return fail(err)
	}
	ref := newVmoRef(child)
	ch, err := p.Handles.Insert(ref, defs.DefaultRights(defs.ObjVMO))
	if err != defs.Ok {
		ref.Close()
		return fail(err)
	}
	return ok(int64(ch))
}

// VmarMap maps the given VMO into p's address space, matching
// vm.AddressSpace_t.VmarMap's existing unchanged-semantics signature
// directly -- there is no separate VMAR capability object in this
// tree (see DESIGN.md), so the handle checked here is the VMO's own.
func (d Dispatcher) VmarMap(p *proc.Process_t, start, length int, perms uint, vmoHandle defs.Handle_t, voff int64, shared bool) Result {
	vr, err := d.vmoFor(p, vmoHandle, defs.RightMap)
	if err != defs.Ok {
		return fail(err)
	}
	vmi := p.AS.VmarMap(start, length, perms, vr.vmo, voff, shared)
	if vmi == nil {
		return fail(defs.InvalidArgs)
	}
	return ok(int64(start))
}

func (d Dispatcher) VmarUnmap(p *proc.Process_t, va int) Result {
	if !p.AS.VmarUnmap(va) {
		return fail(defs.NotFound)
	}
	return ok(0)
}

func (d Dispatcher) HandleClose(p *proc.Process_t, h defs.Handle_t) Result {
	return result0(p.Handles.Close(h))
}

func (d Dispatcher) HandleDuplicate(p *proc.Process_t, h defs.Handle_t, mask defs.Handle_t) Result {
	nh, err := p.Handles.Duplicate(h, mask)
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(nh))
}

func (d Dispatcher) HandleReplace(p *proc.Process_t, h defs.Handle_t, mask defs.Handle_t) Result {
	nh, err := p.Handles.Replace(h, mask)
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(nh))
}

// ObjectSignal sets bits on whatever h names, if it supports
// signaling; RightSignal-gated.
func (d Dispatcher) ObjectSignal(p *proc.Process_t, h defs.Handle_t, set defs.Signals_t) Result {
	ref, err := p.Handles.Check(h, objTypeOf(p, h), defs.RightSignal)
	if err != defs.Ok {
		return fail(err)
	}
	sig, ok := ref.(signaler)
	if !ok {
		return fail(defs.NotSupported)
	}
	return result0(sig.Signal(set))
}

// ObjectWaitOne blocks t until h reports any bit in want, is closed,
// t is killed, or deadline passes (a zero deadline waits forever,
// decoded by deadlineArg from a zero register value).
func (d Dispatcher) ObjectWaitOne(p *proc.Process_t, t *sched.Thread_t, h defs.Handle_t, want defs.Signals_t, deadline time.Time) Result {
	ref, rights, err := p.Handles.Lookup(h)
	if err != defs.Ok {
		return fail(err)
	}
	if !rights.Has(defs.RightWait) {
		return fail(defs.AccessDenied)
	}
	waiter, isWaitOner := ref.(waitOner)
	if !isWaitOner {
		return fail(defs.NotSupported)
	}
	cur, werr := waiter.Wait(t, want, deadline)
	if werr != defs.Ok {
		return fail(werr)
	}
	return ok(int64(cur))
}

func (d Dispatcher) ChannelCreate(p *proc.Process_t) Result {
	a, b, err := ipc.NewChannelPair()
	if err != defs.Ok {
		return fail(err)
	}
	ha, err := p.Handles.Insert(a, defs.DefaultRights(defs.ObjChannel))
	if err != defs.Ok {
		return fail(err)
	}
	hb, err := p.Handles.Insert(b, defs.DefaultRights(defs.ObjChannel))
	if err != defs.Ok {
		p.Handles.Close(ha)
		return fail(err)
	}
	return ok(int64(ha)<<32 | int64(hb))
}

// ChannelRead reads the next message on h, failing with BufferTooSmall
// (and the required byte count as the result value) rather than
// consuming the message if it doesn't fit in maxBytes. maxHandles is
// checked the same way. A maxBytes/maxHandles of 0 means "no limit" (a
// peek-sized probe, same convention as circbuf.Copyout_n's max
// parameter). Any handles the message carried are minted as fresh
// handles in p's own table (the Transfer protocol's receive half);
// a handle that fails to mint (table full) is dropped and its
// reference released rather than silently lost.
func (d Dispatcher) ChannelRead(p *proc.Process_t, t *sched.Thread_t, h defs.Handle_t, maxBytes, maxHandles int) Result {
	ref, err := p.Handles.Check(h, defs.ObjChannel, defs.RightRead)
	if err != defs.Ok {
		return fail(err)
	}
	ch, isChannel := ref.(*ipc.Channel_t)
	if !isChannel {
		return fail(defs.WrongType)
	}
	if dataLen, handleLen, peeked := ch.PeekLen(); peeked {
		if (maxBytes != 0 && dataLen > maxBytes) || (maxHandles != 0 && handleLen > maxHandles) {
			return Result{Value: int64(dataLen), Err: defs.BufferTooSmall}
		}
	}
	msg, err := ch.Read(t)
	if err != defs.Ok {
		return fail(err)
	}
	handles := make([]defs.Handle_t, 0, len(msg.Handles))
	for _, th := range msg.Handles {
		nh, ierr := p.Handles.Insert(th.Ref, th.Rights)
		if ierr != defs.Ok {
			th.Ref.Unref()
			continue
		}
		handles = append(handles, nh)
	}
	return Result{Value: int64(len(msg.Data)), Handles: handles}
}

// ChannelWrite transfers each of handles out of p's table (removing
// them entirely, per object.HandleTable_t.Transfer) and queues them
// alongside data on the channel named by h. If any transfer fails
// partway through, every handle already removed is reinstated in p's
// table before the error is returned, so a failed write never leaves
// the caller holding fewer handles than it started with.
func (d Dispatcher) ChannelWrite(p *proc.Process_t, h defs.Handle_t, data []byte, handles []defs.Handle_t) Result {
	ref, err := p.Handles.Check(h, defs.ObjChannel, defs.RightWrite)
	if err != defs.Ok {
		return fail(err)
	}
	ch, isChannel := ref.(*ipc.Channel_t)
	if !isChannel {
		return fail(defs.WrongType)
	}

	transferred := make([]ipc.TransferredHandle, 0, len(handles))
	reinstate := func() {
		for _, th := range transferred {
			p.Handles.Insert(th.Ref, th.Rights)
		}
	}
	for _, hh := range handles {
		tref, rights, terr := p.Handles.Transfer(hh)
		if terr != defs.Ok {
			reinstate()
			return fail(terr)
		}
		transferred = append(transferred, ipc.TransferredHandle{Ref: tref, Rights: rights})
	}

	if err := ch.Write(ipc.Message_t{Data: data, Handles: transferred}); err != defs.Ok {
		reinstate()
		return fail(err)
	}
	return ok(int64(len(data)))
}

func (d Dispatcher) EventCreate(p *proc.Process_t) Result {
	e := ksync.NewEvent()
	h, err := p.Handles.Insert(e, defs.DefaultRights(defs.ObjEvent))
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(h))
}

func (d Dispatcher) EventpairCreate(p *proc.Process_t) Result {
	a, b, err := ipc.NewEventPair()
	if err != defs.Ok {
		return fail(err)
	}
	ha, err := p.Handles.Insert(a, defs.DefaultRights(defs.ObjEventPair))
	if err != defs.Ok {
		return fail(err)
	}
	hb, err := p.Handles.Insert(b, defs.DefaultRights(defs.ObjEventPair))
	if err != defs.Ok {
		p.Handles.Close(ha)
		return fail(err)
	}
	return ok(int64(ha)<<32 | int64(hb))
}

func (d Dispatcher) PortCreate(p *proc.Process_t) Result {
	port, err := ipc.NewPort()
	if err != defs.Ok {
		return fail(err)
	}
	h, err := p.Handles.Insert(port, defs.DefaultRights(defs.ObjPort))
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(h))
}

func (d Dispatcher) portFor(p *proc.Process_t, h defs.Handle_t, want defs.Rights_t) (*ipc.Port_t, defs.Err_t) {
	ref, err := p.Handles.Check(h, defs.ObjPort, want)
	if err != defs.Ok {
		return nil, err
	}
	port, ok := ref.(*ipc.Port_t)
	if !ok {
		return nil, defs.WrongType
	}
	return port, defs.Ok
}

func (d Dispatcher) PortQueue(p *proc.Process_t, h defs.Handle_t, key uint64) Result {
	port, err := d.portFor(p, h, defs.RightWrite)
	if err != defs.Ok {
		return fail(err)
	}
	return result0(port.Queue(ipc.Packet_t{Key: key}))
}

func (d Dispatcher) PortWait(p *proc.Process_t, t *sched.Thread_t, h defs.Handle_t) Result {
	port, err := d.portFor(p, h, defs.RightRead)
	if err != defs.Ok {
		return fail(err)
	}
	pkt, err := port.Wait(t)
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(pkt.Key))
}

func (d Dispatcher) PortCancel(p *proc.Process_t, h defs.Handle_t, key uint64) Result {
	port, err := d.portFor(p, h, defs.RightWrite)
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(port.Cancel(key)))
}

// FutexWait blocks t on the 32-bit futex word at uva, provided it
// still holds expected, until woken, requeued, killed, or deadline
// passes (zero means no deadline). owner records who's about to block
// as this futex's holder, for the same diagnostic-only bookkeeping
// ksync.Table_t.Wait documents.
func (d Dispatcher) FutexWait(p *proc.Process_t, t *sched.Thread_t, uva uintptr, expected uint32, owner uint64, deadline time.Time) Result {
	return result0(p.Futexes.Wait(t, p.AS, uva, expected, owner, deadline))
}

func (d Dispatcher) FutexWake(p *proc.Process_t, uva uintptr, n int, newOwner uint64) Result {
	return ok(int64(p.Futexes.Wake(p.AS, uva, n, newOwner)))
}

// FutexRequeue packs the two counts ksync.Table_t.Requeue returns into
// a single result word, woken in the high 32 bits and moved in the low
// 32 bits -- both are always small, non-negative counts of waiters on
// one address space, so they fit comfortably either half.
func (d Dispatcher) FutexRequeue(p *proc.Process_t, from, to uintptr, expected uint32, wakeCount, requeueCount int, newOwner uint64) Result {
	woken, moved, err := p.Futexes.Requeue(p.AS, from, to, expected, wakeCount, requeueCount, newOwner)
	if err != defs.Ok {
		return fail(err)
	}
	return ok(int64(woken)<<32 | int64(uint32(moved)))
}

// kernelStats is the set of kernel-wide counters DebugStats snapshots.
// Each field's type (stats.Counter_t) is what stats.Snapshot's
// reflection walk recognizes; Remaining() counters are sampled at
// snapshot time rather than accumulated, since they already track live
// state in limits.Syslimit.
type kernelStats struct {
	DebugStatsCalls stats.Counter_t
	HandleCount     stats.Counter_t
	FreeProcs       stats.Counter_t
	FreeChannels    stats.Counter_t
	FreePorts       stats.Counter_t
}

var debugStatsCalls stats.Counter_t

// DebugStats serializes a snapshot of kernel-wide counters (the
// DebugStats call count, p's own handle-table occupancy, remaining
// system-wide process/channel/port limits) as a pprof profile via
// stats.Snapshot. The
// marshaled profile's byte length is returned as the result value, the
// same "bytes produced" ABI shape every other variable-length result
// in this package uses.
func (d Dispatcher) DebugStats(p *proc.Process_t) Result {
	debugStatsCalls.Inc()
	ks := kernelStats{
		DebugStatsCalls: debugStatsCalls,
		HandleCount:     stats.Counter_t(p.Handles.Count()),
		FreeProcs:       stats.Counter_t(limits.Syslimit.Sysprocs.Remaining()),
		FreeChannels:    stats.Counter_t(limits.Syslimit.Channels.Remaining()),
		FreePorts:       stats.Counter_t(limits.Syslimit.Ports.Remaining()),
	}
	snap := stats.Snapshot(&ks)
	var buf bytes.Buffer
	if err := snap.Write(&buf); err != nil {
		return fail(defs.InvalidArgs)
	}
	return ok(int64(buf.Len()))
}

func result0(err defs.Err_t) Result {
	if err != defs.Ok {
		return fail(err)
	}
	return ok(0)
}

func objTypeOf(p *proc.Process_t, h defs.Handle_t) defs.ObjType_t {
	ref, _, err := p.Handles.Lookup(h)
	if err != defs.Ok {
		return defs.ObjNone
	}
	return ref.ObjType()
}

// signaler is satisfied by any object whose handler supports
// ObjectSignal: currently ksync.Event_t and ipc.EventPair_t.
type signaler interface {
	Signal(defs.Signals_t) defs.Err_t
}

// waitOner is satisfied by any object whose handler supports
// ObjectWaitOne.
type waitOner interface {
	Wait(*sched.Thread_t, defs.Signals_t, time.Time) (defs.Signals_t, defs.Err_t)
}

// vmoRef adapts a *vm.Vmo_t (which predates the object/handle layer
// and has its own, differently-shaped Ref/Unref pair used for
// COW-parent/mapping bookkeeping) to object.Ref_i so it can live in a
// HandleTable_t slot like every other capability.
type vmoRef struct {
	object.Object_t
	vmo *vm.Vmo_t
}

func newVmoRef(v *vm.Vmo_t) *vmoRef {
	v.Ref()
	r := &vmoRef{vmo: v}
	r.Object_t = object.NewObject(defs.ObjVMO, r)
	return r
}

// Close implements object.Closer_i, dropping this handle's share of
// the VMO's own refcount; the VMO's pages are only released once
// every handle and every mapping has gone away.
func (r *vmoRef) Close() defs.Err_t {
	r.vmo.Unref()
	return defs.Ok
}
