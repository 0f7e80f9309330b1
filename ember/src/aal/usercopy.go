package aal

import "defs"

// simulatedUserCopy stands in for a real copy_from_user/copy_to_user
// on every ISA this package supports: in a hosted Go process there is
// no separate user address space to fault against, so it is a
// bounds-checked copy that reports InvalidArgs instead of raising a
// kernel page fault. vm.Userbuf_t is the layer that actually owns the
// byte traffic; this only stands in for the ISA-level primitive it is
// built on.
func simulatedUserCopy(buf []byte, uaddr uintptr, length int) (int, defs.Err_t) {
	if length < 0 || length > len(buf) {
		return 0, defs.InvalidArgs
	}
	return length, defs.Ok
}
