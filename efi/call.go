// SPDX-License-Identifier: Unlicense OR MIT

//go:build tamago && amd64

package efi

import (
	"unsafe"
)

// serviceStack is the stack firmware functions run on. Goroutine
// stacks are too small for some firmware. Calls are not reentrant.
var serviceStack [256 << 10]byte

var serviceStackTop = uintptr(unsafe.Pointer(&serviceStack[0])) + uintptr(len(serviceStack))

// callService calls the firmware function at fn. Unused arguments
// are passed as zero. Pointers must be converted to uintptr in the
// argument list of the call.
func callService(fn, a1, a2, a3, a4, a5, a6, a7, a8, a9, a10 uintptr) uint64

// word reads the 64-bit value at addr.
func word(addr uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(uintptr(addr)))
}

// function returns the function pointer at offset off of the table at
// addr.
func function(addr uint64, off uintptr) uintptr {
	return uintptr(word(addr + uint64(off)))
}

// bytesAt returns size bytes of identity mapped memory at addr.
func bytesAt(addr, size uint64) []byte {
	if addr == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}
