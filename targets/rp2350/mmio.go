//go:build rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"rfmatch/hal"
)

// directMMIO implements hal.MMIO over the RP2350's own address space. The
// RF sensor and motor-controller registers live in the DSP fabric, which
// is mapped into memory through the QSPI XIP window rather than reached
// over a bus, so a read or write is a plain volatile load/store at the
// register's physical address.
type directMMIO struct{}

func (directMMIO) ReadWord(addr uintptr) uint32 {
	return (*volatile.Register32)(unsafe.Pointer(addr)).Get()
}

func (directMMIO) WriteWord(addr uintptr, val uint32) {
	(*volatile.Register32)(unsafe.Pointer(addr)).Set(val)
}

func (directMMIO) ReadFloat32(addr uintptr) float32 {
	bits := (*volatile.Register32)(unsafe.Pointer(addr)).Get()
	return *(*float32)(unsafe.Pointer(&bits))
}

var _ hal.MMIO = directMMIO{}
