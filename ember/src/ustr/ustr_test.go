package ustr

import "testing"

func TestFields(t *testing.T) {
	s := Ustr("  kernel.smp.maxcpus=4   kernel.memory-limit-mb=512 ")
	fs := s.Fields()
	if len(fs) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fs))
	}
	if fs[0].String() != "kernel.smp.maxcpus=4" {
		t.Fatalf("unexpected first field: %q", fs[0].String())
	}
}

func TestSplitN(t *testing.T) {
	k, v, ok := Ustr("kernel.smp.maxcpus=4").SplitN('=')
	if !ok || k.String() != "kernel.smp.maxcpus" || v.String() != "4" {
		t.Fatalf("splitn failed: %q %q %v", k, v, ok)
	}
	_, _, ok = Ustr("noequals").SplitN('=')
	if ok {
		t.Fatalf("expected no split")
	}
}

func TestTrimPrefix(t *testing.T) {
	s := Ustr("kernel.smp.maxcpus")
	if s.TrimPrefix(Ustr("kernel.")).String() != "smp.maxcpus" {
		t.Fatalf("trimprefix failed")
	}
	if !s.HasPrefix(Ustr("kernel.")) {
		t.Fatalf("hasprefix failed")
	}
}
