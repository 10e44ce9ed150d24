// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"errors"
	"fmt"

	"eliasnaur.com/efiboot/bootinfo"
	"eliasnaur.com/efiboot/uefi"
)

const (
	// memoryMapSlack is the number of spare sections reserved for
	// entries created by allocating the map buffer itself.
	memoryMapSlack = 8
	// maxMemoryMapAttempts bounds the harvest loop against firmware
	// whose map grows with every allocation.
	maxMemoryMapAttempts = 8
)

var errMemoryMapUnstable = errors.New("loader: memory map keeps growing")

// ConvertMemoryMap builds the kernel format map of descs, with room for
// capacity sections, and declares the loader's own allocations on top.
func ConvertMemoryMap(descs []uefi.MemoryDescriptor, capacity int, declared []bootinfo.MemorySection) (*bootinfo.MemoryMap, error) {
	m := bootinfo.NewMemoryMap(capacity)
	for _, d := range descs {
		s := bootinfo.MemorySection{
			Start: d.PhysicalStart,
			Len:   d.NumberOfPages * uefi.PageSize,
			Type:  bootinfo.FromUEFI(d.Type),
		}
		if err := m.Append(s); err != nil {
			return nil, err
		}
	}
	m.Sort()
	for _, s := range declared {
		if err := m.DeclareSection(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// declaredSections lists the memory handed to the kernel.
func (l *Loader) declaredSections() []bootinfo.MemorySection {
	secs := []bootinfo.MemorySection{
		{Start: l.kernelPages.Addr(), Len: l.kernelPages.ByteLen(), Type: bootinfo.Kernel},
		{Start: l.stackPages.Addr(), Len: l.stackPages.ByteLen(), Type: bootinfo.KernelStack},
	}
	if l.initialPages != nil {
		secs = append(secs, bootinfo.MemorySection{Start: l.initialPages.Addr(), Len: l.initialPages.ByteLen(), Type: bootinfo.Initial})
	}
	return secs
}

// finalMemoryMap converts the firmware memory map into a buffer the
// kernel inherits and completes Args. The returned key is valid only
// if no firmware call follows.
func (l *Loader) finalMemoryMap() (uefi.MemoryMapKey, error) {
	declared := l.declaredSections()
	var buf *uefi.MemoryPages
	for range maxMemoryMapAttempts {
		mm, err := uefi.GetMemoryMap()
		if err != nil {
			return 0, err
		}
		need := uint64(mm.Len()+2*len(declared)) * bootinfo.MemorySectionSize
		if buf != nil && buf.ByteLen() >= need {
			return mm.Key(), l.writeMemoryMap(mm, buf, declared)
		}
		if buf != nil {
			if err := buf.Free(); err != nil {
				return 0, err
			}
		}
		buf, err = uefi.AllocateBytes(need+memoryMapSlack*bootinfo.MemorySectionSize, uefi.LoaderData)
		if err != nil {
			return 0, fmt.Errorf("loader: allocating memory map: %w", err)
		}
		l.mapPages = buf
	}
	return 0, errMemoryMapUnstable
}

func (l *Loader) writeMemoryMap(mm *uefi.MemoryMap, buf *uefi.MemoryPages, declared []bootinfo.MemorySection) error {
	descs, err := mm.Entries()
	if err != nil {
		return err
	}
	capacity := int(buf.ByteLen() / bootinfo.MemorySectionSize)
	m, err := ConvertMemoryMap(descs, capacity, declared)
	if err != nil {
		return err
	}
	enc, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	dst, err := buf.Bytes()
	if err != nil {
		return err
	}
	copy(dst, enc)
	l.args.MemoryMap = bootinfo.MemoryMapInfo{
		Addr: buf.Addr(),
		Len:  uint64(m.Len()),
		Cap:  uint64(capacity),
	}
	return l.writeArgs()
}

func (l *Loader) writeArgs() error {
	enc, err := l.args.MarshalBinary()
	if err != nil {
		return err
	}
	dst, err := l.argsPage.Bytes()
	if err != nil {
		return err
	}
	copy(dst, enc)
	return nil
}
