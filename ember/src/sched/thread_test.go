package sched

import (
	"testing"

	"defs"
)

func TestThreadLifecycle(t *testing.T) {
	th := NewThread(1, nil)
	if th.State() != Runnable {
		t.Fatalf("expected a fresh thread to be Runnable")
	}
	th.SetRunning()
	if th.State() != Running {
		t.Fatalf("expected Running")
	}
	th.SetRunnable()
	if th.State() != Runnable {
		t.Fatalf("expected Runnable after yield")
	}
	th.SetRunning()
	th.Exit()
	if th.State() != Dead {
		t.Fatalf("expected Dead")
	}
}

func TestThreadBlockWake(t *testing.T) {
	th := NewThread(1, nil)
	th.SetRunning()
	done := th.Block()
	if th.State() != Blocked {
		t.Fatalf("expected Blocked")
	}
	select {
	case <-done:
		t.Fatalf("block channel should not be closed before Wake")
	default:
	}
	th.Wake()
	if th.State() != Runnable {
		t.Fatalf("expected Runnable after Wake")
	}
	select {
	case <-done:
	default:
		t.Fatalf("block channel should close after Wake")
	}
}

func TestThreadKillWakesBlocked(t *testing.T) {
	th := NewThread(1, nil)
	th.SetRunning()
	done := th.Block()
	th.Kill(defs.PeerClosed)
	select {
	case <-done:
	default:
		t.Fatalf("kill should wake a blocked thread")
	}
	killed, err := th.Killed()
	if !killed || err != defs.PeerClosed {
		t.Fatalf("expected killed=true err=PeerClosed, got killed=%v err=%v", killed, err)
	}
}

func TestThreadPriorityAgesDownAndResets(t *testing.T) {
	th := NewThread(1, nil)
	start := th.Priority()
	th.AgeDown()
	if th.Priority() != start+1 {
		t.Fatalf("expected priority to age down by one")
	}
	th.ResetPriority()
	if th.Priority() != PriorityDefault {
		t.Fatalf("expected reset to PriorityDefault")
	}
}

func TestPanicOnInvalidTransition(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic blocking a non-running thread")
		}
	}()
	th := NewThread(1, nil)
	th.setState(Blocked)
}
