package aal

import "sync/atomic"

// Barrier_t packages the six named fence primitives (mb, rmb, wmb,
// acquire, release, compiler_barrier) as methods rather than package
// functions, so a future ISA with a genuinely weaker ordering model
// than sync/atomic's sequential consistency can embed and override
// individual ones without every other ISA's barriers moving. Every ISA
// file in this package embeds the zero-value Barrier_t as-is: without
// a forked runtime there is no portable way to emit anything weaker
// than a sequentially consistent fence, so that is what every barrier
// here does.
type Barrier_t struct{}

var fenceWord atomic.Uint64

// Mb is a full (read+write) memory barrier.
func (Barrier_t) Mb() { fenceWord.Add(1) }

// Rmb orders prior loads before subsequent loads.
func (Barrier_t) Rmb() { fenceWord.Load() }

// Wmb orders prior stores before subsequent stores.
func (Barrier_t) Wmb() { fenceWord.Add(1) }

// Acquire pairs with a Release on another CPU to establish
// happens-before.
func (Barrier_t) Acquire() { fenceWord.Load() }

// Release pairs with an Acquire on another CPU.
func (Barrier_t) Release() { fenceWord.Add(1) }

// CompilerBarrier prevents the Go compiler from reordering memory
// accesses across it, without emitting a hardware fence.
func (Barrier_t) CompilerBarrier() { fenceWord.Load() }
