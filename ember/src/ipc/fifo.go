package ipc

import (
	"sync"

	"circbuf"
	"defs"
	"ksync"
	"mem"
	"object"
)

// sliceUio adapts a plain byte slice to circbuf.Userio_i, tracking its
// own offset so a copy that spans two calls -- the circular buffer's
// head or tail wrapping mid-element -- resumes where the previous
// call left off rather than rewriting from the start.
type sliceUio struct {
	buf []byte
	off int
}

func (s *sliceUio) Uioread(dst []byte) (int, defs.Err_t) {
	n := copy(dst, s.buf[s.off:])
	s.off += n
	return n, defs.Ok
}

func (s *sliceUio) Uiowrite(src []byte) (int, defs.Err_t) {
	n := copy(s.buf[s.off:], src)
	s.off += n
	return n, defs.Ok
}

// fifoShared is the fixed-size-element ring buffer and bookkeeping
// shared by both endpoints of one Fifo pair, backed by
// circbuf.Circbuf_t's page-backed wraparound byte buffer -- the same
// primitive Channel's byte-stream cousin would use if it queued a
// stream instead of discrete handle-carrying messages. Elements are
// fixed size, so the element count currently in flight is always
// Used()/elemSize; circbuf itself has no notion of element
// boundaries, only bytes.
type fifoShared struct {
	mu       sync.Mutex
	elemSize int
	capacity int
	cb       circbuf.Circbuf_t
	closed   [2]bool
}

// Fifo_t is one endpoint of a Fifo pair.
type Fifo_t struct {
	object.Object_t

	shared *fifoShared
	index  int
	wq     *ksync.WaitQueue_t
}

// NewFifoPair creates two connected Fifo endpoints, each element
// exactly elemSize bytes, holding up to capacity elements in flight.
// elemSize*capacity must fit in the single physical page
// circbuf.Circbuf_t backs itself with; NewFifoPair rejects anything
// larger rather than letting Cb_init panic on first use.
func NewFifoPair(elemSize, capacity int) (*Fifo_t, *Fifo_t, defs.Err_t) {
	if elemSize <= 0 || capacity <= 0 {
		return nil, nil, defs.InvalidArgs
	}
	if elemSize*capacity > mem.PGSIZE {
		return nil, nil, defs.InvalidArgs
	}
	shared := &fifoShared{elemSize: elemSize, capacity: capacity}
	shared.cb.Cb_init(elemSize*capacity, mem.Phys)
	wq := &ksync.WaitQueue_t{}
	a := &Fifo_t{shared: shared, index: 0, wq: wq}
	b := &Fifo_t{shared: shared, index: 1, wq: wq}
	a.Object_t = object.NewObject(defs.ObjFifo, a)
	b.Object_t = object.NewObject(defs.ObjFifo, b)
	return a, b, defs.Ok
}

func (f *Fifo_t) peerIndex() int { return 1 - f.index }

// Close marks this endpoint closed and wakes the peer so it observes
// PeerClosed; elements still queued stay in the buffer.
func (f *Fifo_t) Close() defs.Err_t {
	f.shared.mu.Lock()
	f.shared.closed[f.index] = true
	f.shared.mu.Unlock()
	f.wq.WakeAll()
	return defs.Ok
}

// Signals reports readable/writable/peer-closed state.
func (f *Fifo_t) Signals() defs.Signals_t {
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()
	var s defs.Signals_t
	count := f.shared.cb.Used() / f.shared.elemSize
	if count > 0 {
		s |= defs.SigReadable
	}
	if !f.shared.closed[f.peerIndex()] && count < f.shared.capacity {
		s |= defs.SigWritable
	}
	if f.shared.closed[f.peerIndex()] {
		s |= defs.SigPeerClosed
	}
	return s
}

// Write enqueues as many of elems as fit, a best-effort partial write
// with no blocking: it stops at the first element that isn't exactly
// elemSize bytes or that doesn't fit in the buffer's remaining
// capacity, returning the elements actually written.
func (f *Fifo_t) Write(elems [][]byte) (int, defs.Err_t) {
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()
	if f.shared.closed[f.peerIndex()] {
		return 0, defs.PeerClosed
	}
	n := 0
	for n < len(elems) {
		if len(elems[n]) != f.shared.elemSize || f.shared.cb.Left() < f.shared.elemSize {
			break
		}
		wrote, err := f.shared.cb.Copyin(&sliceUio{buf: elems[n]})
		if err != defs.Ok {
			return n, err
		}
		if wrote != f.shared.elemSize {
			return n, defs.Ok
		}
		n++
	}
	if n > 0 {
		f.wq.WakeAll()
	}
	return n, defs.Ok
}

// Read dequeues up to len(out) elements without blocking, a
// best-effort partial read exactly like Write; (0, Ok) is returned
// rather than blocking if nothing is queued yet, so the caller can
// wait on SigReadable itself if it wants to.
func (f *Fifo_t) Read(out [][]byte) (int, defs.Err_t) {
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()
	n := 0
	for n < len(out) && f.shared.cb.Used() >= f.shared.elemSize {
		buf := make([]byte, f.shared.elemSize)
		read, err := f.shared.cb.Copyout_n(&sliceUio{buf: buf}, f.shared.elemSize)
		if err != defs.Ok {
			return n, err
		}
		if read != f.shared.elemSize {
			return n, defs.Ok
		}
		out[n] = buf
		n++
	}
	if n == 0 && f.shared.closed[f.peerIndex()] {
		return 0, defs.PeerClosed
	}
	return n, defs.Ok
}
