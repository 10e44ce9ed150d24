// SPDX-License-Identifier: Unlicense OR MIT

package elf

import (
	"encoding/binary"
	"errors"

	"eliasnaur.com/efiboot/cursor"
)

// File is a read-only view of an ELF image.
type File struct {
	src []byte
}

// New returns a File reading from src. No validation is performed
// until a header is read.
func New(src []byte) *File {
	return &File{src: src}
}

// Bytes returns the underlying image.
func (f *File) Bytes() []byte {
	return f.src
}

// IdentityHeader copies e_ident.
func (f *File) IdentityHeader() (IdentityHeader, error) {
	var h IdentityHeader
	if len(f.src) < IdentityHeaderSize {
		return h, ErrSourceTooSmall
	}
	copy(h.Magic[:], f.src[:4])
	h.Class = Class(f.src[4])
	h.Data = Data(f.src[5])
	h.Version = f.src[6]
	h.OSABI = OSABI(f.src[7])
	h.ABIVersion = f.src[8]
	return h, nil
}

func (f *File) encoding() (Class, binary.ByteOrder, error) {
	id, err := f.IdentityHeader()
	if err != nil {
		return 0, nil, err
	}
	switch id.Class {
	case Class32, Class64:
	default:
		return 0, nil, ErrUnknownClass
	}
	order, err := id.ByteOrder()
	if err != nil {
		return 0, nil, err
	}
	return id.Class, order, nil
}

// Header decodes the file header following e_ident.
func (f *File) Header() (Header, error) {
	var h Header
	class, order, err := f.encoding()
	if err != nil {
		return h, err
	}
	c := cursor.New(f.src)
	c.SetPosition(IdentityHeaderSize)
	r := reader{c: c, order: order}
	h.Type = ObjectType(r.u16())
	h.Machine = Machine(r.u16())
	h.Version = r.u32()
	h.Entry = r.addr(class)
	h.ProgramHeaderOffset = r.addr(class)
	h.SectionHeaderOffset = r.addr(class)
	h.Flags = r.u32()
	h.HeaderSize = r.u16()
	h.ProgramHeaderEntrySize = r.u16()
	h.ProgramHeaderCount = r.u16()
	h.SectionHeaderEntrySize = r.u16()
	h.SectionHeaderCount = r.u16()
	h.SectionNameIndex = r.u16()
	return h, r.err
}

// ProgramHeader decodes the i'th entry of the program header table.
func (f *File) ProgramHeader(i int) (ProgramHeader, error) {
	var p ProgramHeader
	h, err := f.Header()
	if err != nil {
		return p, err
	}
	class, order, _ := f.encoding()
	r, err := f.entry(i, h.ProgramHeaderOffset, h.ProgramHeaderEntrySize, h.ProgramHeaderCount, order)
	if err != nil {
		return p, err
	}
	p.Type = SegmentType(r.u32())
	if class == Class64 {
		p.Flags = r.u32()
		p.Offset = r.u64()
		p.VirtualAddress = r.u64()
		p.PhysicalAddress = r.u64()
		p.FileSize = r.u64()
		p.MemorySize = r.u64()
		p.Alignment = r.u64()
	} else {
		p.Offset = uint64(r.u32())
		p.VirtualAddress = uint64(r.u32())
		p.PhysicalAddress = uint64(r.u32())
		p.FileSize = uint64(r.u32())
		p.MemorySize = uint64(r.u32())
		p.Flags = r.u32()
		p.Alignment = uint64(r.u32())
	}
	return p, r.err
}

// SectionHeader decodes the i'th entry of the section header table.
func (f *File) SectionHeader(i int) (SectionHeader, error) {
	var s SectionHeader
	h, err := f.Header()
	if err != nil {
		return s, err
	}
	class, order, _ := f.encoding()
	r, err := f.entry(i, h.SectionHeaderOffset, h.SectionHeaderEntrySize, h.SectionHeaderCount, order)
	if err != nil {
		return s, err
	}
	s.Name = r.u32()
	s.Type = SectionType(r.u32())
	s.Flags = r.addr(class)
	s.Address = r.addr(class)
	s.Offset = r.addr(class)
	s.Size = r.addr(class)
	s.Link = r.u32()
	s.Info = r.u32()
	s.AddressAlignment = r.addr(class)
	s.EntrySize = r.addr(class)
	return s, r.err
}

// ProgramHeaders decodes the whole program header table.
func (f *File) ProgramHeaders() ([]ProgramHeader, error) {
	h, err := f.Header()
	if err != nil {
		return nil, err
	}
	phdrs := make([]ProgramHeader, 0, h.ProgramHeaderCount)
	for i := 0; i < int(h.ProgramHeaderCount); i++ {
		p, err := f.ProgramHeader(i)
		if err != nil {
			return nil, err
		}
		phdrs = append(phdrs, p)
	}
	return phdrs, nil
}

// entry returns a reader limited to table entry i.
func (f *File) entry(i int, off uint64, size, count uint16, order binary.ByteOrder) (*reader, error) {
	if i < 0 || i >= int(count) {
		return nil, ErrIndexOutOfRange
	}
	start := off + uint64(i)*uint64(size)
	end := start + uint64(size)
	if start < off || end < start || end > uint64(len(f.src)) {
		return nil, ErrSourceTooSmall
	}
	return &reader{c: cursor.New(f.src[start:end]), order: order}, nil
}

// reader decodes consecutive fields, remembering the first failure.
type reader struct {
	c     *cursor.Cursor
	order binary.ByteOrder
	err   error
}

func (r *reader) fail(err error) {
	if r.err != nil {
		return
	}
	if errors.Is(err, cursor.ErrUnexpectedEnd) {
		err = ErrSourceTooSmall
	}
	r.err = err
}

func (r *reader) u16() uint16 {
	v, err := r.c.Uint16(r.order)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) u32() uint32 {
	v, err := r.c.Uint32(r.order)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) u64() uint64 {
	v, err := r.c.Uint64(r.order)
	if err != nil {
		r.fail(err)
	}
	return v
}

// addr reads a class sized address or offset.
func (r *reader) addr(class Class) uint64 {
	if class == Class64 {
		return r.u64()
	}
	return uint64(r.u32())
}
