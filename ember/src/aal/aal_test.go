package aal

import "testing"

func TestCurrentISAIsSelected(t *testing.T) {
	if Current == nil {
		t.Fatalf("expected an arch-specific ISA to register itself via init()")
	}
	if Current.Name() == "" {
		t.Fatalf("expected a non-empty ISA name")
	}
}

func TestInterruptDisableRestoreRoundtrips(t *testing.T) {
	wasEnabled := Current.InterruptsEnabled()
	state := Current.DisableInterrupts()
	if Current.InterruptsEnabled() {
		t.Fatalf("expected interrupts disabled immediately after DisableInterrupts")
	}
	Current.RestoreInterrupts(state)
	if Current.InterruptsEnabled() != wasEnabled {
		t.Fatalf("expected RestoreInterrupts to return to the prior state")
	}
}

func TestCacheLineSizeIsPositive(t *testing.T) {
	if Current.CacheLineSize() <= 0 {
		t.Fatalf("expected a positive cache line size")
	}
}

func TestUserAddressValidationRejectsKernelHalf(t *testing.T) {
	if Current.IsUserAddress(^uintptr(0)) {
		t.Fatalf("expected the all-ones address to be rejected as a user address")
	}
	if !Current.IsUserAddress(0x1000) {
		t.Fatalf("expected a low address to be accepted as a user address")
	}
}

func TestCopyFromUserBoundsChecksLength(t *testing.T) {
	buf := make([]byte, 4)
	if _, err := Current.CopyFromUser(buf, 0x1000, 8); err.Ok() {
		t.Fatalf("expected a length exceeding the destination buffer to fail")
	}
	n, err := Current.CopyFromUser(buf, 0x1000, 4)
	if !err.Ok() || n != 4 {
		t.Fatalf("expected a properly sized copy to succeed, got n=%d err=%v", n, err)
	}
}

func TestNowIsMonotonicNonDecreasing(t *testing.T) {
	a := Current.Now()
	b := Current.Now()
	if b < a {
		t.Fatalf("expected Now() to be non-decreasing, got %d then %d", a, b)
	}
}
