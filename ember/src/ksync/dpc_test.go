package ksync

import (
	"testing"
	"time"
)

func TestDpcQueueRunExecutesInOrder(t *testing.T) {
	q := NewDpcQueue()
	var order []int
	done := make(chan struct{})
	go func() {
		q.Run()
		close(done)
	}()

	results := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		q.Queue(NewDpc(func() { results <- i }))
	}

	for i := 0; i < 3; i++ {
		select {
		case v := <-results:
			order = append(order, v)
		case <-time.After(time.Second):
			t.Fatalf("DPC never ran")
		}
	}
	if order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected FIFO execution order, got %v", order)
	}

	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run never returned after Close")
	}
}

func TestDpcQueueDrainRunsWithoutAWorker(t *testing.T) {
	q := NewDpcQueue()
	ran := 0
	q.Queue(NewDpc(func() { ran++ }))
	q.Queue(NewDpc(func() { ran++ }))

	if n := q.Drain(); n != 2 {
		t.Fatalf("expected Drain to report 2 items, got %d", n)
	}
	if ran != 2 {
		t.Fatalf("expected both DPCs to run, ran=%d", ran)
	}
	if n := q.Drain(); n != 0 {
		t.Fatalf("expected an empty queue after Drain, got %d", n)
	}
}

func TestDpcQueueCloseStopsAcceptingWork(t *testing.T) {
	q := NewDpcQueue()
	q.Close()
	ran := false
	q.Queue(NewDpc(func() { ran = true }))
	q.Drain()
	if ran {
		t.Fatalf("expected a closed queue to reject new work")
	}
}
