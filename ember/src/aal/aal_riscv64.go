//go:build riscv64

package aal

import (
	"sync"
	"time"

	"defs"
)

// riscv64 has no instruction decoder in golang.org/x/arch (unlike
// x86asm/arm64asm for the other two ISAs), so the user-copy fault
// path below uses the access width the simulated trap frame already
// records instead of decoding a faulting instruction -- a dropped
// dependency, not a missing capability, recorded in DESIGN.md.

type riscv64Context struct {
	entry    func(arg uintptr)
	arg      uintptr
	stackTop uintptr
}

func (c *riscv64Context) SP() uintptr { return c.stackTop }

type riscv64ISA struct {
	Barrier_t

	mu          sync.Mutex
	irqsEnabled bool
	irqMask     map[int]bool
	timerDead   uint64
	timerArmed  bool
}

func init() {
	Current = &riscv64ISA{irqsEnabled: true, irqMask: make(map[int]bool)}
}

func (a *riscv64ISA) Name() string { return "riscv64" }

func (a *riscv64ISA) EarlyInit()      {}
func (a *riscv64ISA) InitMMU()        {}
func (a *riscv64ISA) InitExceptions() {}
func (a *riscv64ISA) LateInit()       {}

func (a *riscv64ISA) InitThread(t ThreadContext_i, entry func(arg uintptr), arg uintptr, stackTop uintptr) {
	if c, ok := t.(*riscv64Context); ok {
		c.entry = entry
		c.arg = arg
		c.stackTop = stackTop
	}
}

func (a *riscv64ISA) ContextSwitch(old, new ThreadContext_i) {}

var riscv64BootTime = time.Now()

func (a *riscv64ISA) Now() uint64 {
	return uint64(time.Since(riscv64BootTime).Nanoseconds())
}

func (a *riscv64ISA) SetTimer(absoluteDeadline uint64) {
	a.mu.Lock()
	a.timerDead = absoluteDeadline
	a.timerArmed = true
	a.mu.Unlock()
}

func (a *riscv64ISA) CancelTimer() {
	a.mu.Lock()
	a.timerArmed = false
	a.mu.Unlock()
}

func (a *riscv64ISA) Frequency() uint64 { return 1_000_000_000 }

func (a *riscv64ISA) EnableIRQ(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.irqMask, n)
}

func (a *riscv64ISA) DisableIRQ(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.irqMask[n] = true
}

func (a *riscv64ISA) EndOfInterrupt(n int) {}

func (a *riscv64ISA) InterruptsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.irqsEnabled
}

func (a *riscv64ISA) DisableInterrupts() IrqState_t {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.irqsEnabled
	a.irqsEnabled = false
	if prev {
		return 1
	}
	return 0
}

func (a *riscv64ISA) RestoreInterrupts(state IrqState_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.irqsEnabled = state != 0
}

func (a *riscv64ISA) SendIPI(cpuID int, vector int) {}

func (a *riscv64ISA) Map(pa, va uintptr, length int, flags MapFlags_t) defs.Err_t { return defs.Ok }
func (a *riscv64ISA) Unmap(va uintptr, length int)                               {}
func (a *riscv64ISA) Protect(va uintptr, length int, flags MapFlags_t) defs.Err_t { return defs.Ok }
func (a *riscv64ISA) FlushTLB(va uintptr, length int)                            {}
func (a *riscv64ISA) IsValidVA(va uintptr) bool                                  { return true }
func (a *riscv64ISA) VirtToPhys(va uintptr) uintptr                              { return va }
func (a *riscv64ISA) PhysToVirt(pa uintptr) uintptr                              { return pa }

const riscv64CacheLine = 64

func (a *riscv64ISA) DCacheClean(va uintptr, length int)           {}
func (a *riscv64ISA) DCacheInvalidate(va uintptr, length int)      {}
func (a *riscv64ISA) DCacheCleanInvalidate(va uintptr, length int) {}
func (a *riscv64ISA) ICacheSync(va uintptr, length int)            {}
func (a *riscv64ISA) CacheLineSize() int                           { return riscv64CacheLine }

func (a *riscv64ISA) CopyFromUser(kdst []byte, usrc uintptr, length int) (int, defs.Err_t) {
	return simulatedUserCopy(kdst, usrc, length)
}

func (a *riscv64ISA) CopyToUser(udst uintptr, ksrc []byte, length int) (int, defs.Err_t) {
	return simulatedUserCopy(ksrc, udst, length)
}

func (a *riscv64ISA) IsUserAddress(va uintptr) bool {
	return va != 0 && va < (uintptr(1)<<38)
}

func (a *riscv64ISA) ValidateUserRange(va uintptr, length int, write bool) defs.Err_t {
	if length < 0 || !a.IsUserAddress(va) || !a.IsUserAddress(va+uintptr(length)) {
		return defs.InvalidArgs
	}
	return defs.Ok
}

func (a *riscv64ISA) Halt()  {}
func (a *riscv64ISA) Pause() {}
