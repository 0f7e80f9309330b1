package ksync

import (
	"testing"
	"time"

	"defs"
	"sched"
)

func TestWaitQueueWakeOneReleasesOldestFirst(t *testing.T) {
	var wq WaitQueue_t
	a := sched.NewThread(1, nil)
	b := sched.NewThread(2, nil)
	a.SetRunning()
	b.SetRunning()

	doneA := make(chan defs.Err_t, 1)
	doneB := make(chan defs.Err_t, 1)
	go func() { doneA <- wq.Wait(a) }()
	for wq.Len() < 1 {
	}
	go func() { doneB <- wq.Wait(b) }()
	for wq.Len() < 2 {
	}

	if !wq.WakeOne() {
		t.Fatalf("expected a waiter to be woken")
	}
	select {
	case <-doneA:
	case <-doneB:
		t.Fatalf("expected the oldest waiter (a) to be woken first")
	case <-time.After(time.Second):
		t.Fatalf("expected the oldest waiter (a) to be woken first")
	}
	if wq.Len() != 1 {
		t.Fatalf("expected one waiter left, got %d", wq.Len())
	}

	if !wq.WakeOne() {
		t.Fatalf("expected the second waiter to be woken")
	}
	<-doneB
}

func TestWaitQueueWakeAllDrainsEveryWaiter(t *testing.T) {
	var wq WaitQueue_t
	const n = 5
	dones := make([]chan defs.Err_t, n)
	threads := make([]*sched.Thread_t, n)
	for i := range threads {
		threads[i] = sched.NewThread(defs.Pid_t(i), nil)
		threads[i].SetRunning()
		dones[i] = make(chan defs.Err_t, 1)
	}
	for i, th := range threads {
		go func(th *sched.Thread_t, done chan defs.Err_t) {
			done <- wq.Wait(th)
		}(th, dones[i])
	}
	for wq.Len() < n {
	}

	if woken := wq.WakeAll(); woken != n {
		t.Fatalf("expected %d woken, got %d", n, woken)
	}
	for _, d := range dones {
		if err := <-d; err != defs.Ok {
			t.Fatalf("expected Ok, got %v", err)
		}
	}
	if wq.Len() != 0 {
		t.Fatalf("expected an empty queue after WakeAll")
	}
}

func TestWaitQueueKillUnblocksWithError(t *testing.T) {
	var wq WaitQueue_t
	th := sched.NewThread(1, nil)
	th.SetRunning()
	done := make(chan defs.Err_t, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		done <- wq.Wait(th)
	}()
	<-started
	for wq.Len() < 1 {
	}
	th.Kill(defs.PeerClosed)
	if err := <-done; err != defs.PeerClosed {
		t.Fatalf("expected PeerClosed, got %v", err)
	}
	if wq.Len() != 0 {
		t.Fatalf("expected the killed thread to be removed from the queue")
	}
}
