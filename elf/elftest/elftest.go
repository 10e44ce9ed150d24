// SPDX-License-Identifier: Unlicense OR MIT

// Package elftest builds small ELF images for tests.
package elftest

import (
	"bytes"
	"encoding/binary"

	"eliasnaur.com/efiboot/elf"
)

// Segment describes a program header and its file contents. A zero
// MemorySize means len(Data).
type Segment struct {
	Type           elf.SegmentType
	Flags          uint32
	VirtualAddress uint64
	Data           []byte
	MemorySize     uint64
	Alignment      uint64
}

// Image describes an ELF file. Zero values select a 64-bit little
// endian x86_64 executable.
type Image struct {
	Class    elf.Class
	Data     elf.Data
	Type     elf.ObjectType
	Machine  elf.Machine
	Entry    uint64
	Segments []Segment
	Sections []elf.SectionHeader
}

// Executable returns a 64-bit x86_64 executable with one LOAD segment
// per entry of segs.
func Executable(entry uint64, segs ...Segment) []byte {
	return Image{Entry: entry, Segments: segs}.Bytes()
}

// Bytes encodes the image. Program headers follow the file header,
// segment data follows at 16 byte aligned offsets and the section
// header table comes last.
func (img Image) Bytes() []byte {
	class := img.Class
	if class == elf.ClassNone {
		class = elf.Class64
	}
	data := img.Data
	if data == elf.DataInvalid {
		data = elf.DataLittleEndian
	}
	typ := img.Type
	if typ == elf.ObjectNone {
		typ = elf.ObjectExecutable
	}
	machine := img.Machine
	if machine == elf.MachineNone {
		machine = elf.MachineX86_64
	}
	var order binary.AppendByteOrder = binary.LittleEndian
	if data == elf.DataBigEndian {
		order = binary.BigEndian
	}
	ehsize, phentsize, shentsize := 64, 56, 64
	if class == elf.Class32 {
		ehsize, phentsize, shentsize = 52, 32, 40
	}

	phoff := uint64(ehsize)
	off := phoff + uint64(len(img.Segments)*phentsize)
	offsets := make([]uint64, len(img.Segments))
	for i, s := range img.Segments {
		off = align(off, 16)
		offsets[i] = off
		off += uint64(len(s.Data))
	}
	var shoff uint64
	if len(img.Sections) > 0 {
		shoff = align(off, 8)
	}

	w := &writer{order: order, class: class}
	w.bytes([]byte{0x7f, 'E', 'L', 'F', byte(class), byte(data), 1, byte(elf.OSABISystemV), 0})
	w.bytes(make([]byte, 7))
	w.u16(uint16(typ))
	w.u16(uint16(machine))
	w.u32(1)
	w.addr(img.Entry)
	w.addr(phoff)
	w.addr(shoff)
	w.u32(0)
	w.u16(uint16(ehsize))
	w.u16(uint16(phentsize))
	w.u16(uint16(len(img.Segments)))
	w.u16(uint16(shentsize))
	w.u16(uint16(len(img.Sections)))
	w.u16(0)

	for i, s := range img.Segments {
		typ := s.Type
		if typ == elf.SegmentNull {
			typ = elf.SegmentLoad
		}
		memsz := s.MemorySize
		if memsz == 0 {
			memsz = uint64(len(s.Data))
		}
		alignment := s.Alignment
		if alignment == 0 {
			alignment = 0x1000
		}
		w.u32(uint32(typ))
		if class == elf.Class64 {
			w.u32(s.Flags)
		}
		w.addr(offsets[i])
		w.addr(s.VirtualAddress)
		w.addr(s.VirtualAddress)
		w.addr(uint64(len(s.Data)))
		w.addr(memsz)
		if class == elf.Class32 {
			w.u32(s.Flags)
		}
		w.addr(alignment)
	}
	for i, s := range img.Segments {
		w.pad(offsets[i])
		w.bytes(s.Data)
	}
	if len(img.Sections) > 0 {
		w.pad(shoff)
		for _, s := range img.Sections {
			w.u32(s.Name)
			w.u32(uint32(s.Type))
			w.addr(s.Flags)
			w.addr(s.Address)
			w.addr(s.Offset)
			w.addr(s.Size)
			w.u32(s.Link)
			w.u32(s.Info)
			w.addr(s.AddressAlignment)
			w.addr(s.EntrySize)
		}
	}
	return w.buf.Bytes()
}

func align(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

type writer struct {
	buf   bytes.Buffer
	order binary.AppendByteOrder
	class elf.Class
}

func (w *writer) bytes(b []byte) {
	w.buf.Write(b)
}

func (w *writer) pad(off uint64) {
	for uint64(w.buf.Len()) < off {
		w.buf.WriteByte(0)
	}
}

func (w *writer) u16(v uint16) {
	w.buf.Write(w.order.AppendUint16(nil, v))
}

func (w *writer) u32(v uint32) {
	w.buf.Write(w.order.AppendUint32(nil, v))
}

func (w *writer) u64(v uint64) {
	w.buf.Write(w.order.AppendUint64(nil, v))
}

func (w *writer) addr(v uint64) {
	if w.class == elf.Class32 {
		w.u32(uint32(v))
		return
	}
	w.u64(v)
}
