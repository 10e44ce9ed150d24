// SPDX-License-Identifier: Unlicense OR MIT

// Package elf reads ELF identity, file, program and section headers
// from an in-memory image and copies LOAD segments into a destination
// buffer. Both classes and both byte orders are decoded; every field
// is read through a bounds-checked cursor.
package elf

import (
	"encoding/binary"
	"fmt"
)

// Error is a fixed ELF decoding failure.
type Error string

const (
	ErrSourceTooSmall            Error = "elf: source too small"
	ErrUnknownClass              Error = "elf: unknown class"
	ErrUnknownData               Error = "elf: unknown data encoding"
	ErrDestinationTooSmall       Error = "elf: destination too small"
	ErrNoLoadProgramSegments     Error = "elf: no loadable program segments"
	ErrInvalidProgramSegmentSize Error = "elf: program segment file size exceeds memory size"
	ErrIndexOutOfRange           Error = "elf: header index out of range"
)

func (e Error) Error() string {
	return string(e)
}

// IdentityHeaderSize is the size of e_ident.
const IdentityHeaderSize = 16

const (
	magic0 = 0x7f
	magic1 = 'E'
	magic2 = 'L'
	magic3 = 'F'
)

type Class uint8

const (
	ClassNone Class = 0
	Class32   Class = 1
	Class64   Class = 2
)

type Data uint8

const (
	DataInvalid      Data = 0
	DataLittleEndian Data = 1
	DataBigEndian    Data = 2
)

type OSABI uint8

const (
	OSABISystemV OSABI = 0x0
	OSABINetBSD  OSABI = 0x2
	OSABILinux   OSABI = 0x3
	OSABIFreeBSD OSABI = 0x9
	OSABIOpenBSD OSABI = 0xc
)

type ObjectType uint16

const (
	ObjectNone        ObjectType = 0
	ObjectRelocatable ObjectType = 1
	ObjectExecutable  ObjectType = 2
	ObjectDynamic     ObjectType = 3
	ObjectCore        ObjectType = 4
)

type Machine uint16

const (
	MachineNone    Machine = 0
	MachineI386    Machine = 0x03
	MachineARM     Machine = 0x28
	MachineX86_64  Machine = 0x3e
	MachineAArch64 Machine = 0xb7
	MachineRISCV   Machine = 0xf3
)

func (m Machine) String() string {
	switch m {
	case MachineNone:
		return "none"
	case MachineI386:
		return "i386"
	case MachineARM:
		return "arm"
	case MachineX86_64:
		return "x86_64"
	case MachineAArch64:
		return "aarch64"
	case MachineRISCV:
		return "riscv"
	default:
		return fmt.Sprintf("machine(%#x)", uint16(m))
	}
}

type SegmentType uint32

const (
	SegmentNull        SegmentType = 0
	SegmentLoad        SegmentType = 1
	SegmentDynamic     SegmentType = 2
	SegmentInterpreter SegmentType = 3
	SegmentNote        SegmentType = 4
	SegmentShlib       SegmentType = 5
	SegmentPHDR        SegmentType = 6
	SegmentTLS         SegmentType = 7
)

// Program segment permission flags.
const (
	SegmentFlagExecute = 1 << 0
	SegmentFlagWrite   = 1 << 1
	SegmentFlagRead    = 1 << 2
)

type SectionType uint32

const (
	SectionNull          SectionType = 0
	SectionProgBits      SectionType = 1
	SectionSymbolTable   SectionType = 2
	SectionStringTable   SectionType = 3
	SectionRela          SectionType = 4
	SectionHash          SectionType = 5
	SectionDynamic       SectionType = 6
	SectionNote          SectionType = 7
	SectionNoBits        SectionType = 8
	SectionRelocations   SectionType = 9
	SectionReserved      SectionType = 10
	SectionDynamicSymbol SectionType = 11
)

// IdentityHeader is e_ident.
type IdentityHeader struct {
	Magic      [4]byte
	Class      Class
	Data       Data
	Version    uint8
	OSABI      OSABI
	ABIVersion uint8
	_          [7]byte
}

// Header is the class independent view of the ELF file header. The
// fields following e_ident are stored here; 32-bit addresses and
// offsets are widened.
type Header struct {
	Type                   ObjectType
	Machine                Machine
	Version                uint32
	Entry                  uint64
	ProgramHeaderOffset    uint64
	SectionHeaderOffset    uint64
	Flags                  uint32
	HeaderSize             uint16
	ProgramHeaderEntrySize uint16
	ProgramHeaderCount     uint16
	SectionHeaderEntrySize uint16
	SectionHeaderCount     uint16
	SectionNameIndex       uint16
}

type ProgramHeader struct {
	Type            SegmentType
	Flags           uint32
	Offset          uint64
	VirtualAddress  uint64
	PhysicalAddress uint64
	FileSize        uint64
	MemorySize      uint64
	Alignment       uint64
}

type SectionHeader struct {
	Name             uint32
	Type             SectionType
	Flags            uint64
	Address          uint64
	Offset           uint64
	Size             uint64
	Link             uint32
	Info             uint32
	AddressAlignment uint64
	EntrySize        uint64
}

// Segment is the half-open address range [Start, End).
type Segment struct {
	Start, End uint64
}

func (s Segment) Len() uint64 {
	return s.End - s.Start
}

// Valid reports whether the magic bytes match.
func (h *IdentityHeader) Valid() bool {
	return h.Magic == [4]byte{magic0, magic1, magic2, magic3}
}

// ByteOrder returns the byte order named by the data field.
func (h *IdentityHeader) ByteOrder() (binary.ByteOrder, error) {
	return h.Data.ByteOrder()
}

func (d Data) ByteOrder() (binary.ByteOrder, error) {
	switch d {
	case DataLittleEndian:
		return binary.LittleEndian, nil
	case DataBigEndian:
		return binary.BigEndian, nil
	default:
		return nil, ErrUnknownData
	}
}

// HostData returns the data encoding of the running processor.
func HostData() Data {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return DataLittleEndian
	}
	return DataBigEndian
}

// Loadable reports whether the segment occupies memory at load time.
// Zero sized LOAD segments are ignored.
func (p *ProgramHeader) Loadable() bool {
	return p.Type == SegmentLoad && p.MemorySize != 0
}
