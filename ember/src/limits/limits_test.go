package limits

import "testing"

func TestTakenGive(t *testing.T) {
	s := &Sysatomic_t{}
	s.Given(2)
	if !s.Take() {
		t.Fatalf("first take should succeed")
	}
	if !s.Take() {
		t.Fatalf("second take should succeed")
	}
	if s.Take() {
		t.Fatalf("third take should fail, limit exhausted")
	}
	s.Give()
	if !s.Take() {
		t.Fatalf("take after give should succeed")
	}
}

func TestDefaultLimits(t *testing.T) {
	l := MkSysLimit()
	if l.HandlesPerProc != HandleTableSize {
		t.Fatalf("handles per proc should match HandleTableSize")
	}
	if l.Futexes.Remaining() <= 0 {
		t.Fatalf("futex limit should start positive")
	}
}
