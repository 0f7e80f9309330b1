package caller

import "testing"

func TestPanicOnceStillPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic")
		}
	}()
	PanicOnce("test invariant violation")
}

func TestDistinctCallerDedup(t *testing.T) {
	dc := &Distinct_caller_t{Enabled: true}
	seen := func() bool {
		d, _ := dc.Distinct()
		return d
	}
	var got [2]bool
	for i := range got {
		got[i] = seen()
	}
	if !got[0] {
		t.Fatalf("first call from this site should be distinct")
	}
	if got[1] {
		t.Fatalf("second call from the same site should not be distinct")
	}
}
