// Package ipc implements the message-transport kernel objects built on
// top of object.Object_t and ksync.WaitQueue_t: paired Channel
// endpoints (byte payload plus transferred handles), Fifo (fixed-size
// element queues backed by circbuf.Circbuf_t, no handle transfer),
// Port (an unbounded, key-tagged packet queue), and EventPair (two
// objects each signaling the other's PeerClosed/PeerSignal bit).
// Channel queues discrete Message_t values rather than a byte stream,
// so it keeps a plain Go slice ring (see channelShared below) instead
// of circbuf.Circbuf_t, whose Copyin/Copyout_n contract is shaped for
// one fixed-capacity byte buffer, not a queue of independently-sized
// messages each carrying its own handle set.
package ipc

import (
	"sync"

	"defs"
	"ksync"
	"limits"
	"object"
	"sched"
)

// TransferredHandle is one handle in flight inside a Message_t: the
// object reference itself (already Ref'd by object.HandleTable_t.
// Transfer, not merely the integer that used to name it in the
// sender's table) plus the rights it carried. Carrying the live
// Ref_i, not a bare defs.Handle_t, is what lets Close release the
// underlying object rather than just forgetting an int.
type TransferredHandle struct {
	Ref    object.Ref_i
	Rights defs.Rights_t
}

// Message_t is one Channel payload: a byte buffer plus zero or more
// handles transferred to the reader. Transferred handles are removed
// from the sender's table by the syscall layer before Write is called
// and reinstated in the reader's table by Read's caller (the transfer
// protocol itself lives in object.HandleTable_t.Transfer/Insert).
type Message_t struct {
	Data    []byte
	Handles []TransferredHandle
}

// channelShared is the queue and bookkeeping shared by both endpoints
// of one Channel pair.
type channelShared struct {
	mu       sync.Mutex
	queue    []Message_t
	closed   [2]bool
	maxDepth int
}

// Channel_t is one endpoint of a Channel pair. Index selects which of
// the pair's two closed-flags/signal views this endpoint owns; the
// other index is the peer.
type Channel_t struct {
	object.Object_t

	shared *channelShared
	index  int
	wq     *ksync.WaitQueue_t
}

const channelDefaultDepth = 256

// NewChannelPair creates two connected Channel endpoints, the
// kernel-object equivalent of a Unix socketpair. Both sides start
// with SigWritable set and SigReadable clear until the other side
// writes.
func NewChannelPair() (*Channel_t, *Channel_t, defs.Err_t) {
	if !limits.Syslimit.Channels.Take() {
		return nil, nil, defs.NoResources
	}
	shared := &channelShared{maxDepth: channelDefaultDepth}
	wq := &ksync.WaitQueue_t{}
	a := &Channel_t{shared: shared, index: 0, wq: wq}
	b := &Channel_t{shared: shared, index: 1, wq: wq}
	a.Object_t = object.NewObject(defs.ObjChannel, a)
	b.Object_t = object.NewObject(defs.ObjChannel, b)
	return a, b, defs.Ok
}

func (c *Channel_t) peerIndex() int { return 1 - c.index }

// Close marks this endpoint closed, drops every message still queued
// in the pair (releasing the reference held by each handle those
// messages carry), and wakes the peer so it observes PeerClosed. The
// pair's limits.Syslimit.Channels slot is given back once both
// endpoints have closed.
func (c *Channel_t) Close() defs.Err_t {
	c.shared.mu.Lock()
	lastClose := !c.shared.closed[c.index] && c.shared.closed[c.peerIndex()]
	c.shared.closed[c.index] = true
	dropped := c.shared.queue
	c.shared.queue = nil
	c.shared.mu.Unlock()

	for _, m := range dropped {
		for _, h := range m.Handles {
			h.Ref.Unref()
		}
	}
	if lastClose {
		limits.Syslimit.Channels.Give()
	}
	c.wq.WakeAll()
	return defs.Ok
}

// Signals reports this endpoint's current readable/writable/peer-closed
// state, satisfying object.Signaler_i.
func (c *Channel_t) Signals() defs.Signals_t {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	var s defs.Signals_t
	if len(c.shared.queue) > 0 {
		s |= defs.SigReadable
	}
	if !c.shared.closed[c.peerIndex()] && len(c.shared.queue) < c.shared.maxDepth {
		s |= defs.SigWritable
	}
	if c.shared.closed[c.peerIndex()] {
		s |= defs.SigPeerClosed
	}
	return s
}

// Write appends msg to the queue and wakes a reader parked on the
// peer endpoint. Returns PeerClosed if the peer has already closed;
// NoResources if the queue is at its depth limit.
func (c *Channel_t) Write(msg Message_t) defs.Err_t {
	c.shared.mu.Lock()
	if c.shared.closed[c.peerIndex()] {
		c.shared.mu.Unlock()
		return defs.PeerClosed
	}
	if len(c.shared.queue) >= c.shared.maxDepth {
		c.shared.mu.Unlock()
		return defs.NoResources
	}
	c.shared.queue = append(c.shared.queue, msg)
	c.shared.mu.Unlock()
	c.wq.WakeAll()
	return defs.Ok
}

// PeekLen reports the byte and handle count of the next queued
// message without consuming it, so a caller with a fixed-size buffer
// can size it before committing to Read: the non-blocking half of a
// read(max_bytes, max_handles) that returns BufferTooSmall with the
// required sizes rather than truncating silently. ok is false if the
// queue is currently empty.
func (c *Channel_t) PeekLen() (dataLen, handleLen int, ok bool) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	if len(c.shared.queue) == 0 {
		return 0, 0, false
	}
	m := c.shared.queue[0]
	return len(m.Data), len(m.Handles), true
}

// Read pops the oldest queued message, blocking t until one arrives
// or the peer closes. Returns PeerClosed only once the queue has
// drained and the peer is closed, matching the Unix read()-returns-0
// convention generalized to "no more messages will ever come."
func (c *Channel_t) Read(t *sched.Thread_t) (Message_t, defs.Err_t) {
	for {
		c.shared.mu.Lock()
		if len(c.shared.queue) > 0 {
			m := c.shared.queue[0]
			c.shared.queue = c.shared.queue[1:]
			c.shared.mu.Unlock()
			return m, defs.Ok
		}
		peerClosed := c.shared.closed[c.peerIndex()]
		c.shared.mu.Unlock()
		if peerClosed {
			return Message_t{}, defs.PeerClosed
		}
		if err := c.wq.Wait(t); err != defs.Ok {
			return Message_t{}, err
		}
	}
}
