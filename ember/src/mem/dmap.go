package mem

import "unsafe"

// unsafePointerAt returns a pointer to byte offset off within buf,
// reinterpreted as whatever the caller converts it to. This is the
// entire "direct map": on real hardware the direct map is a fixed
// virtual range that the MMU identity-maps to all of physical memory,
// so dereferencing pa+offset never needs a page-table walk. Here
// physical memory is simulated as a Go []byte per arena, so the
// analogous operation is slice-index arithmetic instead of an MMU
// lookup -- there is no runtime.Vtop to call.
func unsafePointerAt(buf []byte, off int) unsafe.Pointer {
	return unsafe.Pointer(&buf[off])
}
