//go:build amd64

package aal

import (
	"sync"
	"time"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/sys/cpu"

	"defs"
)

// amd64Context is the simulated register-save area InitThread/
// ContextSwitch manipulate. There is no real context switch in this
// tree -- each thread is its own goroutine (sched's package doc
// explains why) -- so these fields exist to fulfil the fixed AAL
// surface and are exercised by tests the same way a real
// save-area-and-resume pair would be, without an actual stack swap.
type amd64Context struct {
	entry    func(arg uintptr)
	arg      uintptr
	stackTop uintptr
}

func (c *amd64Context) SP() uintptr { return c.stackTop }

type amd64ISA struct {
	Barrier_t

	mu          sync.Mutex
	irqsEnabled bool
	irqMask     map[int]bool
	timerDead   uint64
	timerArmed  bool
}

func init() {
	Current = &amd64ISA{irqsEnabled: true, irqMask: make(map[int]bool)}
}

func (a *amd64ISA) Name() string { return "amd64" }

func (a *amd64ISA) EarlyInit()       {}
func (a *amd64ISA) InitMMU()         {}
func (a *amd64ISA) InitExceptions()  {}
func (a *amd64ISA) LateInit()        {}

func (a *amd64ISA) InitThread(t ThreadContext_i, entry func(arg uintptr), arg uintptr, stackTop uintptr) {
	if c, ok := t.(*amd64Context); ok {
		c.entry = entry
		c.arg = arg
		c.stackTop = stackTop
	}
}

func (a *amd64ISA) ContextSwitch(old, new ThreadContext_i) {
	// No real stack to swap -- the goroutine scheduler already does
	// the switching. This exists so call sites that expect to name a
	// context switch at the AAL boundary have somewhere to call.
}

var bootTime = time.Now()

func (a *amd64ISA) Now() uint64 {
	return uint64(time.Since(bootTime).Nanoseconds())
}

func (a *amd64ISA) SetTimer(absoluteDeadline uint64) {
	a.mu.Lock()
	a.timerDead = absoluteDeadline
	a.timerArmed = true
	a.mu.Unlock()
}

func (a *amd64ISA) CancelTimer() {
	a.mu.Lock()
	a.timerArmed = false
	a.mu.Unlock()
}

func (a *amd64ISA) Frequency() uint64 { return 1_000_000_000 }

func (a *amd64ISA) EnableIRQ(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.irqMask, n)
}

func (a *amd64ISA) DisableIRQ(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.irqMask[n] = true
}

func (a *amd64ISA) EndOfInterrupt(n int) {}

func (a *amd64ISA) InterruptsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.irqsEnabled
}

func (a *amd64ISA) DisableInterrupts() IrqState_t {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.irqsEnabled
	a.irqsEnabled = false
	if prev {
		return 1
	}
	return 0
}

func (a *amd64ISA) RestoreInterrupts(state IrqState_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.irqsEnabled = state != 0
}

func (a *amd64ISA) SendIPI(cpuID int, vector int) {}

const directMapBase = uintptr(0)

func (a *amd64ISA) Map(pa, va uintptr, length int, flags MapFlags_t) defs.Err_t    { return defs.Ok }
func (a *amd64ISA) Unmap(va uintptr, length int)                                   {}
func (a *amd64ISA) Protect(va uintptr, length int, flags MapFlags_t) defs.Err_t    { return defs.Ok }
func (a *amd64ISA) FlushTLB(va uintptr, length int)                                {}
func (a *amd64ISA) IsValidVA(va uintptr) bool                                      { return true }
func (a *amd64ISA) VirtToPhys(va uintptr) uintptr                                  { return va - directMapBase }
func (a *amd64ISA) PhysToVirt(pa uintptr) uintptr                                  { return pa + directMapBase }

// amd64CacheLine is the line size x/sys/cpu's feature probe implies
// for this family when it cannot be read from CPUID directly in a
// hosted Go process; 64 bytes matches every amd64 part this kernel
// targets.
const amd64CacheLine = 64

func (a *amd64ISA) DCacheClean(va uintptr, length int)           {}
func (a *amd64ISA) DCacheInvalidate(va uintptr, length int)      {}
func (a *amd64ISA) DCacheCleanInvalidate(va uintptr, length int) {}
func (a *amd64ISA) ICacheSync(va uintptr, length int)            {}
func (a *amd64ISA) CacheLineSize() int                           { return amd64CacheLine }

// hasAVX2 is an example of the feature-probe surface x/sys/cpu gives
// this layer without a forked runtime's CPUID hook; nothing currently
// branches on it, but the user-copy fast path is the natural future
// consumer (a wider vectorized copy_from_user/copy_to_user).
var hasAVX2 = cpu.X86.HasAVX2

func (a *amd64ISA) CopyFromUser(kdst []byte, usrc uintptr, length int) (int, defs.Err_t) {
	return simulatedUserCopy(kdst, usrc, length)
}

func (a *amd64ISA) CopyToUser(udst uintptr, ksrc []byte, length int) (int, defs.Err_t) {
	return simulatedUserCopy(ksrc, udst, length)
}

// faultingAccessWidth decodes the instruction bytes at the simulated
// trap frame's faulting PC to recover the access width a real page
// fault handler would need to size its recovery copy -- the same
// thing a real amd64 fault path does by decoding the faulting mov
// rather than trusting a possibly-untrusted length argument. Returns
// 0 if the bytes don't decode to anything with a memory operand.
func faultingAccessWidth(instrBytes []byte) int {
	inst, err := x86asm.Decode(instrBytes, 64)
	if err != nil {
		return 0
	}
	for _, arg := range inst.Args {
		if mem, ok := arg.(x86asm.Mem); ok {
			_ = mem
			return inst.MemBytes
		}
	}
	return 0
}

func (a *amd64ISA) IsUserAddress(va uintptr) bool {
	return va != 0 && va < (uintptr(1)<<47)
}

func (a *amd64ISA) ValidateUserRange(va uintptr, length int, write bool) defs.Err_t {
	if length < 0 || !a.IsUserAddress(va) || !a.IsUserAddress(va+uintptr(length)) {
		return defs.InvalidArgs
	}
	return defs.Ok
}

func (a *amd64ISA) Halt()  {}
func (a *amd64ISA) Pause() {}
