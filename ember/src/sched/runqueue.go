package sched

import "sync"

// RunQueue_t is one CPU's ready list: NumPriorities FIFO bands, band 0
// highest priority. Dequeue always drains the lowest-numbered
// nonempty band first, giving I/O-bound threads (which age back to
// PriorityDefault on wake, rather than climbing further) a consistent
// edge over CPU-bound ones that have aged down from running full
// quanta.
type RunQueue_t struct {
	mu    sync.Mutex
	bands [NumPriorities][]*Thread_t
	n     int
}

// Enqueue adds t to the queue at its current priority band.
func (rq *RunQueue_t) Enqueue(t *Thread_t) {
	p := t.Priority()
	if p < 0 || p >= NumPriorities {
		panic("priority out of range")
	}
	rq.mu.Lock()
	rq.bands[p] = append(rq.bands[p], t)
	rq.n++
	rq.mu.Unlock()
}

// Dequeue removes and returns the highest-priority runnable thread, or
// nil if the queue is empty.
func (rq *RunQueue_t) Dequeue() *Thread_t {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	for i := range rq.bands {
		b := rq.bands[i]
		if len(b) == 0 {
			continue
		}
		t := b[0]
		rq.bands[i] = b[1:]
		rq.n--
		return t
	}
	return nil
}

// Len returns the total number of runnable threads queued, across all
// bands.
func (rq *RunQueue_t) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.n
}

// Remove drops t from the queue if present (used when a thread is
// killed while still runnable but not yet dispatched), reporting
// whether it was found.
func (rq *RunQueue_t) Remove(t *Thread_t) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	for i := range rq.bands {
		b := rq.bands[i]
		for j, c := range b {
			if c == t {
				rq.bands[i] = append(b[:j], b[j+1:]...)
				rq.n--
				return true
			}
		}
	}
	return false
}
