package util

import "testing"

func TestRoundupRounddown(t *testing.T) {
	if Roundup(4097, 4096) != 8192 {
		t.Fatalf("roundup wrong")
	}
	if Rounddown(4097, 4096) != 4096 {
		t.Fatalf("rounddown wrong")
	}
	if Roundup(4096, 4096) != 4096 {
		t.Fatalf("roundup of aligned value should be identity")
	}
}

func TestAligned(t *testing.T) {
	if !Aligned(8192, 4096) {
		t.Fatalf("8192 should be page aligned")
	}
	if Aligned(8193, 4096) {
		t.Fatalf("8193 should not be page aligned")
	}
}

func TestCeilDiv(t *testing.T) {
	if CeilDiv(9, 4) != 3 {
		t.Fatalf("ceildiv wrong")
	}
	if CeilDiv(8, 4) != 2 {
		t.Fatalf("ceildiv of exact multiple wrong")
	}
}

func TestMinMax(t *testing.T) {
	if Min(3, 5) != 3 || Max(3, 5) != 5 {
		t.Fatalf("min/max wrong")
	}
}

func TestReadnWriten(t *testing.T) {
	buf := make([]uint8, 16)
	Writen(buf, 8, 0, 0xdeadbeef)
	if Readn(buf, 8, 0) != 0xdeadbeef {
		t.Fatalf("readn/writen roundtrip failed")
	}
}
