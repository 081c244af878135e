// Package hal is the thin hardware-access layer every domain package talks
// to instead of touching memory or a bus directly. It follows the
// teacher's *_hal.go idiom throughout: one interface per peripheral kind,
// a package-level MustXXX() accessor that panics if no driver was wired,
// and a SetXXXDriver setter called once at boot by target-specific code.
// The core never owns the memory or the bus — it only holds addresses and
// calls through this interface.
package hal

// MMIO is a word-aligned, volatile memory-mapped register interface. The
// RF sensor's FFT bin arrays and hold/status registers, and the motor
// controller's position/origin/rpm/index registers, are all read and
// written exclusively through this interface — never through a raw
// unsafe.Pointer in domain code.
type MMIO interface {
	// ReadWord reads one 32-bit register at addr.
	ReadWord(addr uintptr) uint32
	// WriteWord writes one 32-bit register at addr.
	WriteWord(addr uintptr, val uint32)
	// ReadFloat32 reads one float32 register at addr (used for the FFT
	// bin arrays, which are IEEE-754 single precision in the fabric).
	ReadFloat32(addr uintptr) float32
}

var globalMMIO MMIO

// SetMMIODriver installs the MMIO backend. Called once at boot by
// target-specific code (or by a test's fake backend).
func SetMMIODriver(d MMIO) {
	globalMMIO = d
}

// MustMMIO returns the installed MMIO backend, panicking if none was set.
// A nil MMIO driver at runtime is a programmer error — boot sequences
// always call SetMMIODriver before any domain component touches hardware.
func MustMMIO() MMIO {
	if globalMMIO == nil {
		panic("hal: MMIO driver not configured")
	}
	return globalMMIO
}
