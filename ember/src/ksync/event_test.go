package ksync

import (
	"testing"
	"time"

	"defs"
	"sched"
)

func TestEventSignalWakesWaiterWantingThoseBits(t *testing.T) {
	e := NewEvent()
	th := sched.NewThread(1, nil)
	th.SetRunning()

	type result struct {
		sig defs.Signals_t
		err defs.Err_t
	}
	done := make(chan result, 1)
	go func() {
		sig, err := e.Wait(th, defs.SigUser0, time.Time{})
		done <- result{sig, err}
	}()
	time.Sleep(10 * time.Millisecond)

	if err := e.Signal(defs.SigUser0); err != defs.Ok {
		t.Fatalf("Signal failed: %v", err)
	}

	select {
	case r := <-done:
		if r.err != defs.Ok || !r.sig.Has(defs.SigUser0) {
			t.Fatalf("expected Ok with SigUser0 set, got sig=%v err=%v", r.sig, r.err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait never returned after Signal")
	}
}

func TestEventWaitReturnsImmediatelyIfAlreadySignaled(t *testing.T) {
	e := NewEvent()
	e.Signal(defs.SigUser1)
	th := sched.NewThread(1, nil)
	th.SetRunning()

	sig, err := e.Wait(th, defs.SigUser1, time.Time{})
	if err != defs.Ok || !sig.Has(defs.SigUser1) {
		t.Fatalf("expected an already-set signal to satisfy Wait immediately, got sig=%v err=%v", sig, err)
	}
}

func TestEventClearDropsBits(t *testing.T) {
	e := NewEvent()
	e.Signal(defs.SigUser0 | defs.SigUser1)
	e.Clear(defs.SigUser0)
	got := e.Signals()
	if got.Has(defs.SigUser0) {
		t.Fatalf("expected SigUser0 cleared")
	}
	if !got.Has(defs.SigUser1) {
		t.Fatalf("expected SigUser1 to remain set")
	}
}

func TestEventCloseWakesWaitersWithoutSettingBits(t *testing.T) {
	e := NewEvent()
	th := sched.NewThread(1, nil)
	th.SetRunning()

	type result struct {
		sig defs.Signals_t
		err defs.Err_t
	}
	done := make(chan result, 1)
	go func() {
		sig, err := e.Wait(th, defs.SigUser2, time.Time{})
		done <- result{sig, err}
	}()
	time.Sleep(10 * time.Millisecond)

	if err := e.Close(); err != defs.Ok {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case r := <-done:
		if r.sig.Has(defs.SigUser2) {
			t.Fatalf("Close must not set the bits the waiter was waiting for")
		}
		if r.err != defs.PeerClosed {
			t.Fatalf("expected PeerClosed once the event is closed, got %v", r.err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Close must wake a waiter parked on the event")
	}
}

func TestEventWaitReturnsTimedOutAtDeadline(t *testing.T) {
	e := NewEvent()
	th := sched.NewThread(1, nil)
	th.SetRunning()

	start := time.Now()
	_, err := e.Wait(th, defs.SigUser3, start.Add(20*time.Millisecond))
	if err != defs.TimedOut {
		t.Fatalf("expected TimedOut waiting on a signal nobody sets, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Wait returned before its deadline: %v", elapsed)
	}
}

func TestEventWaitWakesBeforeDeadlineOnSignal(t *testing.T) {
	e := NewEvent()
	th := sched.NewThread(1, nil)
	th.SetRunning()

	type result struct {
		sig defs.Signals_t
		err defs.Err_t
	}
	done := make(chan result, 1)
	go func() {
		sig, err := e.Wait(th, defs.SigUser0, time.Now().Add(time.Second))
		done <- result{sig, err}
	}()
	time.Sleep(10 * time.Millisecond)
	e.Signal(defs.SigUser0)

	select {
	case r := <-done:
		if r.err != defs.Ok || !r.sig.Has(defs.SigUser0) {
			t.Fatalf("expected Ok with SigUser0 set before the deadline, got sig=%v err=%v", r.sig, r.err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait never returned after Signal")
	}
}
