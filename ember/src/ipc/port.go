package ipc

import (
	"sync"

	"defs"
	"ksync"
	"limits"
	"object"
	"sched"
)

// Packet_t is one Port queue entry: key is assigned by the observer at
// wait-registration time and replayed on delivery, letting a single
// port multiplex notifications from many sources.
type Packet_t struct {
	Key     uint64
	Type    defs.ObjType_t
	Status  defs.Err_t
	Payload interface{}
}

// Port_t is an unbounded, single-endpoint packet queue -- the async
// notification primitive every other object's signal-observer
// registration ultimately delivers through.
type Port_t struct {
	object.Object_t

	mu     sync.Mutex
	queue  []Packet_t
	closed bool
	wq     ksync.WaitQueue_t
}

// NewPort allocates an empty port.
func NewPort() (*Port_t, defs.Err_t) {
	if !limits.Syslimit.Ports.Take() {
		return nil, defs.NoResources
	}
	p := &Port_t{}
	p.Object_t = object.NewObject(defs.ObjPort, p)
	return p, defs.Ok
}

// Close drops every still-queued packet and releases the port's slot.
func (p *Port_t) Close() defs.Err_t {
	p.mu.Lock()
	p.closed = true
	dropped := len(p.queue)
	p.queue = nil
	p.mu.Unlock()
	limits.Syslimit.PortPackets.Given(uint(dropped))
	limits.Syslimit.Ports.Give()
	p.wq.WakeAll()
	return defs.Ok
}

// Signals reports SigReadable whenever a packet is queued.
func (p *Port_t) Signals() defs.Signals_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) > 0 {
		return defs.SigReadable
	}
	return 0
}

// Queue appends pkt to the port, subject to the system-wide
// PortPackets ceiling (an individual port's queue is otherwise
// unbounded, but the system as a whole is not).
func (p *Port_t) Queue(pkt Packet_t) defs.Err_t {
	if !limits.Syslimit.PortPackets.Take() {
		return defs.NoResources
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		limits.Syslimit.PortPackets.Give()
		return defs.BadState
	}
	p.queue = append(p.queue, pkt)
	p.mu.Unlock()
	p.wq.WakeAll()
	return defs.Ok
}

// Wait blocks t until a packet is available, popping and returning
// the oldest one.
func (p *Port_t) Wait(t *sched.Thread_t) (Packet_t, defs.Err_t) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			pkt := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			limits.Syslimit.PortPackets.Give()
			return pkt, defs.Ok
		}
		p.mu.Unlock()
		if err := p.wq.Wait(t); err != defs.Ok {
			return Packet_t{}, err
		}
	}
}

// Cancel removes every queued packet matching key, the mechanism
// behind port_cancel: an observer tearing down its registration for
// one source without disturbing packets from any other source sharing
// the port.
func (p *Port_t) Cancel(key uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.queue[:0]
	removed := 0
	for _, pkt := range p.queue {
		if pkt.Key == key {
			removed++
			continue
		}
		kept = append(kept, pkt)
	}
	p.queue = kept
	if removed > 0 {
		limits.Syslimit.PortPackets.Given(uint(removed))
	}
	return removed
}
