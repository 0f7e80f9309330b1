package stats

import "testing"

type sampleCounters struct {
	Allocs  Counter_t
	WaitNs  Cycles_t
	ignored int
}

func TestCounterAndCycles(t *testing.T) {
	var c sampleCounters
	c.Allocs.Inc()
	c.Allocs.Inc()
	if c.Allocs.Get() != 2 {
		t.Fatalf("expected 2 allocs, got %d", c.Allocs.Get())
	}
	start := Now()
	c.WaitNs.Add(start)
	if c.WaitNs.Get() < 0 {
		t.Fatalf("cycles should be non-negative")
	}
}

func TestSnapshot(t *testing.T) {
	var c sampleCounters
	c.Allocs.Add(5)
	p := Snapshot(&c)
	if len(p.Sample) != 2 {
		t.Fatalf("expected 2 samples (Allocs, WaitNs), got %d", len(p.Sample))
	}
	found := false
	for _, s := range p.Sample {
		if s.Label["name"][0] == "Allocs" && s.Value[0] == 5 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Allocs sample with value 5")
	}
}

func TestStats2String(t *testing.T) {
	var c sampleCounters
	c.Allocs.Inc()
	s := Stats2String(&c)
	if s == "" {
		t.Fatalf("expected non-empty string")
	}
}
