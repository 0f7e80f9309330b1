package ipc

import (
	"testing"
	"time"

	"defs"
	"sched"
)

func TestEventPairSignalObservedAsPeerSignal(t *testing.T) {
	a, b, err := NewEventPair()
	if err != defs.Ok {
		t.Fatalf("NewEventPair: %v", err)
	}
	a.Signal(defs.SigUser0)
	if !b.Signals().Has(defs.SigPeerSignal) {
		t.Fatalf("expected b to observe SigPeerSignal after a.Signal")
	}
	if a.Signals().Has(defs.SigPeerSignal) {
		t.Fatalf("a must not observe its own signal as a peer signal")
	}
}

func TestEventPairWaitBlocksUntilPeerSignals(t *testing.T) {
	a, b, _ := NewEventPair()
	th := sched.NewThread(1, nil)
	th.SetRunning()

	type result struct {
		sig defs.Signals_t
		err defs.Err_t
	}
	done := make(chan result, 1)
	go func() {
		sig, err := b.Wait(th, defs.SigPeerSignal, time.Time{})
		done <- result{sig, err}
	}()
	time.Sleep(10 * time.Millisecond)
	a.Signal(defs.SigUser0)

	select {
	case r := <-done:
		if r.err != defs.Ok || !r.sig.Has(defs.SigPeerSignal) {
			t.Fatalf("expected SigPeerSignal, got sig=%v err=%v", r.sig, r.err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait never returned after Signal")
	}
}

func TestEventPairWaitReturnsTimedOutAtDeadline(t *testing.T) {
	a, _, _ := NewEventPair()
	th := sched.NewThread(1, nil)
	th.SetRunning()

	start := time.Now()
	_, err := a.Wait(th, defs.SigPeerSignal, start.Add(20*time.Millisecond))
	if err != defs.TimedOut {
		t.Fatalf("expected TimedOut waiting on a peer that never signals, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Wait returned before its deadline: %v", elapsed)
	}
}

func TestEventPairCloseSignalsPeerClosed(t *testing.T) {
	a, b, _ := NewEventPair()
	a.Close()
	if !b.Signals().Has(defs.SigPeerClosed) {
		t.Fatalf("expected PeerClosed on b after a.Close()")
	}
}
