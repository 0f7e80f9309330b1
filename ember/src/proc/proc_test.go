package proc

import (
	"testing"

	"defs"
)

func TestSpawnThreadRegistersUnderProcess(t *testing.T) {
	p := NewProcess("init", nil)
	th := p.SpawnThread()
	if p.ThreadCount() != 1 {
		t.Fatalf("expected 1 live thread, got %d", p.ThreadCount())
	}
	p.ThreadExited(th.Tid, defs.Ok)
	if p.ThreadCount() != 0 {
		t.Fatalf("expected 0 live threads after exit, got %d", p.ThreadCount())
	}
	exited, err := p.Exited()
	if !exited || err != defs.Ok {
		t.Fatalf("expected the process to be marked exited with Ok, got exited=%v err=%v", exited, err)
	}
}

func TestProcessNotExitedWhileAnyThreadLives(t *testing.T) {
	p := NewProcess("multi", nil)
	a := p.SpawnThread()
	_ = p.SpawnThread()
	p.ThreadExited(a.Tid, defs.Ok)
	if exited, _ := p.Exited(); exited {
		t.Fatalf("expected the process to still be alive with one thread remaining")
	}
}

func TestJobKillAllKillsEveryThreadInEveryProcess(t *testing.T) {
	j := NewJob("root")
	p1 := NewProcess("a", j)
	p2 := NewProcess("b", j)
	t1 := p1.SpawnThread()
	t2 := p2.SpawnThread()

	j.KillAll(defs.PeerClosed)

	if killed, err := t1.Killed(); !killed || err != defs.PeerClosed {
		t.Fatalf("expected t1 killed with PeerClosed, got killed=%v err=%v", killed, err)
	}
	if killed, err := t2.Killed(); !killed || err != defs.PeerClosed {
		t.Fatalf("expected t2 killed with PeerClosed, got killed=%v err=%v", killed, err)
	}
}

func TestProcessCloseDetachesFromJob(t *testing.T) {
	j := NewJob("root")
	p := NewProcess("solo", j)
	if j.ProcessCount() != 1 {
		t.Fatalf("expected 1 process in job, got %d", j.ProcessCount())
	}
	p.Close()
	if j.ProcessCount() != 0 {
		t.Fatalf("expected 0 processes in job after Close, got %d", j.ProcessCount())
	}
}

func TestProcessSignalsReportsTaskTermOnlyAfterExit(t *testing.T) {
	p := NewProcess("solo", nil)
	if p.Signals().Has(defs.SigTaskTerm) {
		t.Fatalf("expected no SigTaskTerm before any thread exits")
	}
	th := p.SpawnThread()
	p.ThreadExited(th.Tid, defs.Ok)
	if !p.Signals().Has(defs.SigTaskTerm) {
		t.Fatalf("expected SigTaskTerm once the last thread has exited")
	}
}
