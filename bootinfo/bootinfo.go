// SPDX-License-Identifier: Unlicense OR MIT

// Package bootinfo defines the structure the loader passes to the
// kernel entry point and the virtual layout both sides agree on.
//
// Args is encoded little endian with a fixed layout. Every address in
// it is physical and refers to memory the kernel owns after the hand
// over: kernel and stack frames, the leaked memory map buffer or
// firmware regions that survive the exit from boot services.
package bootinfo

import (
	"encoding/binary"
	"fmt"

	"eliasnaur.com/efiboot/paging"
)

// CurrentVersion is the Args layout version written by this loader.
const CurrentVersion = 1

// Virtual layout.
const (
	KernelVirtualStart = 0xffffffff80000000

	StackPages = 5
	StackSize  = StackPages * 4096
	// The boot processor stack ends where the kernel image starts.
	StackVirtualTop    = 0xffffffff80000000
	StackVirtualBottom = StackVirtualTop - StackSize

	PhysicalMapStart4 = 0xffff800000000000
	PhysicalMapSize4  = 64 << 40
	PhysicalMapStart5 = 0xff00000000000000
	PhysicalMapSize5  = 32 << 50
)

// PhysicalMap returns the virtual window reserved for the physical map
// under the given number of paging levels.
func PhysicalMap(levels int) (start, size uint64) {
	if levels == 5 {
		return PhysicalMapStart5, PhysicalMapSize5
	}
	return PhysicalMapStart4, PhysicalMapSize4
}

// PhysicalMapSpan returns the part of the PhysicalMap window the loader
// maps: the window clamped to the 52-bit physical address space. Under
// five-level paging that is 4 PiB of the 32 PiB window.
func PhysicalMapSpan(levels int) (start, size uint64) {
	start, size = PhysicalMap(levels)
	return start, min(size, paging.PhysicalLimit)
}

// Args is the hand-off structure. The kernel receives its physical
// address in RDI.
type Args struct {
	Version     uint32
	_           uint32
	MemoryMap   MemoryMapInfo
	MemoryInfo  MemoryInfo
	SystemInfo  SystemInfo
	Initial     Extent
	Framebuffer Framebuffer
	Debug       DebugConfig
}

// ArgsSize is the encoded size of Args.
const ArgsSize = 144

// MemoryMapInfo locates the kernel format memory map: Len sections of
// MemorySectionSize bytes at Addr, in a buffer with room for Cap.
type MemoryMapInfo struct {
	Addr uint64
	Len  uint64
	Cap  uint64
}

type MemoryInfo struct {
	KernelStart uint64
	KernelLen   uint64
	StackStart  uint64
	StackLen    uint64
}

// SystemInfo holds firmware table addresses. Zero means absent.
type SystemInfo struct {
	RSDT        uint64
	XSDT        uint64
	UEFIRuntime uint64
}

// Extent is a physical range. A zero Len means absent.
type Extent struct {
	Start uint64
	Len   uint64
}

type PixelFormat uint32

const (
	PixelNone PixelFormat = iota
	PixelRGBX
	PixelBGRX
	PixelBitMask
)

func (f PixelFormat) String() string {
	switch f {
	case PixelNone:
		return "none"
	case PixelRGBX:
		return "RGBX"
	case PixelBGRX:
		return "BGRX"
	case PixelBitMask:
		return "bitmask"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint32(f))
	}
}

// Framebuffer describes a linear framebuffer. Stride is in pixels.
type Framebuffer struct {
	Base   uint64
	Size   uint64
	Width  uint32
	Height uint32
	Stride uint32
	Format PixelFormat
}

// DebugConfig selects the serial port the kernel may use for early
// diagnostics.
type DebugConfig struct {
	Enabled     bool
	_           uint8
	Port        uint16
	BaudDivisor uint16
	_           uint16
}

// COM1 at 9600 baud.
const (
	DefaultDebugPort        = 0x3f8
	DefaultDebugBaudDivisor = 12
)

func DefaultDebugConfig() DebugConfig {
	return DebugConfig{Port: DefaultDebugPort, BaudDivisor: DefaultDebugBaudDivisor}
}

// NewArgs returns Args of the current version.
func NewArgs() *Args {
	return &Args{Version: CurrentVersion, Debug: DefaultDebugConfig()}
}

// IsOutdated reports whether a was written by an older loader.
func (a *Args) IsOutdated() bool {
	return a.Version < CurrentVersion
}

// MarshalBinary implements the [encoding.BinaryMarshaler] interface.
func (a *Args) MarshalBinary() ([]byte, error) {
	return binary.Append(make([]byte, 0, ArgsSize), binary.LittleEndian, a)
}

// UnmarshalBinary implements the [encoding.BinaryUnmarshaler] interface.
func (a *Args) UnmarshalBinary(data []byte) error {
	if len(data) < ArgsSize {
		return fmt.Errorf("bootinfo: %d bytes of arguments, want %d", len(data), ArgsSize)
	}
	_, err := binary.Decode(data[:ArgsSize], binary.LittleEndian, a)
	return err
}
