// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import (
	"encoding/binary"
	"fmt"

	"eliasnaur.com/efiboot/cursor"
)

// MemoryMapKey identifies a memory map snapshot. ExitBootServices
// requires the key of the current map.
type MemoryMapKey uint64

// MemoryDescriptorSize is the size of the fields of an
// EFI_MEMORY_DESCRIPTOR known to this package. Firmware may report a
// larger stride.
const MemoryDescriptorSize = 40

// MemoryDescriptor is an EFI_MEMORY_DESCRIPTOR.
type MemoryDescriptor struct {
	Type          MemoryType
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the end of the described range.
func (d MemoryDescriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize
}

func (d MemoryDescriptor) String() string {
	return fmt.Sprintf("[%#x-%#x) %s", d.PhysicalStart, d.PhysicalEnd(), d.Type)
}

// MarshalBinary implements the [encoding.BinaryMarshaler] interface.
func (d *MemoryDescriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, MemoryDescriptorSize)
	d.put(buf)
	return buf, nil
}

func (d *MemoryDescriptor) put(buf []byte) {
	bo := binary.LittleEndian
	bo.PutUint32(buf[0:], uint32(d.Type))
	bo.PutUint32(buf[4:], 0)
	bo.PutUint64(buf[8:], d.PhysicalStart)
	bo.PutUint64(buf[16:], d.VirtualStart)
	bo.PutUint64(buf[24:], d.NumberOfPages)
	bo.PutUint64(buf[32:], d.Attribute)
}

// UnmarshalBinary implements the [encoding.BinaryUnmarshaler] interface.
func (d *MemoryDescriptor) UnmarshalBinary(data []byte) error {
	c := cursor.New(data)
	bo := binary.LittleEndian
	typ, err := c.Uint32(bo)
	if err != nil {
		return err
	}
	if err := c.Skip(4); err != nil {
		return err
	}
	var fields [4]uint64
	for i := range fields {
		if fields[i], err = c.Uint64(bo); err != nil {
			return err
		}
	}
	*d = MemoryDescriptor{
		Type:          MemoryType(typ),
		PhysicalStart: fields[0],
		VirtualStart:  fields[1],
		NumberOfPages: fields[2],
		Attribute:     fields[3],
	}
	return nil
}

// MemoryMap is a snapshot of the firmware memory map.
type MemoryMap struct {
	buf     []byte
	key     MemoryMapKey
	stride  uint64
	version uint32
}

// GetMemoryMap retrieves the current memory map, growing its buffer
// until the firmware accepts it.
func GetMemoryMap() (*MemoryMap, error) {
	_, bs, err := bootServices()
	if err != nil {
		return nil, err
	}
	var buf []byte
	for {
		size := uint64(len(buf))
		var key, stride uint64
		var version uint32
		switch st := bs.GetMemoryMap(&size, buf, &key, &stride, &version); st {
		case Success:
			if stride < MemoryDescriptorSize {
				return nil, invalidArgument("descriptor size")
			}
			return &MemoryMap{
				buf:     buf[:size],
				key:     MemoryMapKey(key),
				stride:  stride,
				version: version,
			}, nil
		case BufferTooSmall:
			if size <= uint64(len(buf)) {
				return nil, invalidArgument("size")
			}
			buf = make([]byte, size)
		case InvalidParameter:
			return nil, invalidArgument("buffer")
		default:
			return nil, StatusError{Status: st}
		}
	}
}

func (m *MemoryMap) Key() MemoryMapKey {
	return m.key
}

// Stride returns the distance between descriptors.
func (m *MemoryMap) Stride() uint64 {
	return m.stride
}

func (m *MemoryMap) Version() uint32 {
	return m.version
}

// Len returns the number of descriptors.
func (m *MemoryMap) Len() int {
	return len(m.buf) / int(m.stride)
}

// Entry decodes the i'th descriptor.
func (m *MemoryMap) Entry(i int) (MemoryDescriptor, error) {
	var d MemoryDescriptor
	if i < 0 || i >= m.Len() {
		return d, invalidArgument("index")
	}
	off := uint64(i) * m.stride
	err := d.UnmarshalBinary(m.buf[off : off+m.stride])
	return d, err
}

// Entries decodes every descriptor.
func (m *MemoryMap) Entries() ([]MemoryDescriptor, error) {
	entries := make([]MemoryDescriptor, m.Len())
	for i := range entries {
		d, err := m.Entry(i)
		if err != nil {
			return nil, err
		}
		entries[i] = d
	}
	return entries, nil
}

// EncodeMemoryMap lays out descs with the given stride, as firmware
// does. It is used by firmware implementations.
func EncodeMemoryMap(descs []MemoryDescriptor, stride uint64) []byte {
	buf := make([]byte, uint64(len(descs))*stride)
	for i := range descs {
		descs[i].put(buf[uint64(i)*stride:])
	}
	return buf
}
