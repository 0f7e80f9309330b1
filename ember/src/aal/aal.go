// Package aal is the architecture abstraction layer: a fixed surface
// every other package programs against instead of touching any
// ISA-specific register or instruction directly. It is not a single
// generic interface with runtime dispatch -- each ISA gets its own
// file, selected at compile time by build tag, the same static
// preference the teacher's per-arch assembly stubs show. Every file
// in this package fulfils the same ISA interface with identical names
// and semantics; the rest of the kernel never imports an arch-specific
// type, only aal.ISA and aal.Current.
package aal

import (
	"defs"
)

// IrqState_t is the opaque token DisableInterrupts hands back, to be
// fed to RestoreInterrupts unchanged. Its concrete bits are
// ISA-specific; nothing outside this package inspects them.
type IrqState_t uint64

// MapFlags_t are the permission/caching bits MMU.Map and MMU.Protect
// take, ISA-independent even though their encoding differs per ISA.
type MapFlags_t uint32

const (
	MapRead MapFlags_t = 1 << iota
	MapWrite
	MapExec
	MapUser
	MapNoCache
)

// ISA is the fixed architecture abstraction contract, grouped exactly
// as Startup / Context / Timer / Interrupts / MMU / Cache / User
// boundary / Halt. Every ISA implementation in this package satisfies
// it identically; only the bodies differ.
type ISA interface {
	// Startup
	EarlyInit()
	InitMMU()
	InitExceptions()
	LateInit()

	// Context
	InitThread(t ThreadContext_i, entry func(arg uintptr), arg uintptr, stackTop uintptr)
	ContextSwitch(old, new ThreadContext_i)

	// Timer
	Now() uint64
	SetTimer(absoluteDeadline uint64)
	CancelTimer()
	Frequency() uint64

	// Interrupts
	EnableIRQ(n int)
	DisableIRQ(n int)
	EndOfInterrupt(n int)
	InterruptsEnabled() bool
	DisableInterrupts() IrqState_t
	RestoreInterrupts(state IrqState_t)
	SendIPI(cpu int, vector int)

	// MMU
	Map(pa, va uintptr, length int, flags MapFlags_t) defs.Err_t
	Unmap(va uintptr, length int)
	Protect(va uintptr, length int, flags MapFlags_t) defs.Err_t
	FlushTLB(va uintptr, length int)
	IsValidVA(va uintptr) bool
	VirtToPhys(va uintptr) uintptr
	PhysToVirt(pa uintptr) uintptr

	// Cache
	DCacheClean(va uintptr, length int)
	DCacheInvalidate(va uintptr, length int)
	DCacheCleanInvalidate(va uintptr, length int)
	ICacheSync(va uintptr, length int)
	CacheLineSize() int

	// User boundary
	CopyFromUser(kdst []byte, usrc uintptr, length int) (int, defs.Err_t)
	CopyToUser(udst uintptr, ksrc []byte, length int) (int, defs.Err_t)
	IsUserAddress(va uintptr) bool
	ValidateUserRange(va uintptr, length int, write bool) defs.Err_t

	// Halt / idle
	Halt()
	Pause()

	// Identity, for diagnostics only.
	Name() string
}

// ThreadContext_i is the minimal per-thread register-save area every
// ISA's InitThread/ContextSwitch manipulates. Each arch file supplies
// its own concrete context type satisfying it; sched.Thread_t carries
// no arch context.
type ThreadContext_i interface {
	// SP reports the current saved stack pointer, for diagnostics.
	SP() uintptr
}

// Current is the ISA implementation selected for this build, assigned
// by the arch-specific file compiled in (aal_amd64.go, aal_arm64.go,
// aal_riscv64.go). Code outside this package calls aal.Current.Foo(),
// never a concrete arch type.
var Current ISA
