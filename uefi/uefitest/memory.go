// SPDX-License-Identifier: Unlicense OR MIT

package uefitest

import (
	"sort"

	"golang.org/x/exp/slices"

	"eliasnaur.com/efiboot/uefi"
)

// maxMemoryType bounds the firmware defined memory types.
const maxMemoryType = uefi.UnacceptedMemory + 1

func validType(mem uefi.MemoryType) bool {
	return mem < maxMemoryType && mem != uefi.ConventionalMemory || mem >= 0x80000000
}

func (f *Firmware) allocate(typ uefi.AllocateType, mem uefi.MemoryType, pages uint64, addr *uint64) uefi.Status {
	if pages == 0 || !validType(mem) {
		return uefi.InvalidParameter
	}
	size := pages * uefi.PageSize
	var start uint64
	found := false
	switch typ {
	case uefi.AllocateAnyPages:
		for _, d := range f.mmap {
			if d.Type == uefi.ConventionalMemory && d.NumberOfPages >= pages {
				start, found = d.PhysicalStart, true
				break
			}
		}
	case uefi.AllocateMaxAddress:
		limit := (*addr + 1) &^ (uefi.PageSize - 1)
		for _, d := range f.mmap {
			if d.Type != uefi.ConventionalMemory {
				continue
			}
			end := min(d.PhysicalEnd(), limit)
			if end >= d.PhysicalStart+size {
				start, found = end-size, true
			}
		}
	case uefi.AllocateAddress:
		if *addr%uefi.PageSize != 0 {
			return uefi.InvalidParameter
		}
		if i := f.containing(*addr, size); i >= 0 && f.mmap[i].Type == uefi.ConventionalMemory {
			start, found = *addr, true
		}
	default:
		return uefi.InvalidParameter
	}
	if !found {
		return uefi.OutOfResources
	}
	f.carve(start, pages, mem)
	data := make([]byte, size)
	for i := range data {
		data[i] = junk
	}
	i := sort.Search(len(f.regions), func(i int) bool {
		return f.regions[i].base > start
	})
	f.regions = slices.Insert(f.regions, i, region{base: start, data: data})
	f.allocs[start] = Allocation{Addr: start, Pages: pages, Type: mem}
	*addr = start
	return uefi.Success
}

func (f *Firmware) release(a Allocation) {
	f.carve(a.Addr, a.Pages, uefi.ConventionalMemory)
	i := sort.Search(len(f.regions), func(i int) bool {
		return f.regions[i].base >= a.Addr
	})
	f.regions = slices.Delete(f.regions, i, i+1)
	delete(f.allocs, a.Addr)
}

// containing returns the index of the descriptor covering
// [start, start+size), or -1.
func (f *Firmware) containing(start, size uint64) int {
	for i, d := range f.mmap {
		if start >= d.PhysicalStart && start+size <= d.PhysicalEnd() {
			return i
		}
	}
	return -1
}

// carve retypes a page run inside a single descriptor and updates the
// map key.
func (f *Firmware) carve(start, pages uint64, typ uefi.MemoryType) {
	size := pages * uefi.PageSize
	i := f.containing(start, size)
	if i < 0 {
		panic("uefitest: carving unmapped memory")
	}
	d := f.mmap[i]
	var pieces []uefi.MemoryDescriptor
	if start > d.PhysicalStart {
		pieces = append(pieces, uefi.MemoryDescriptor{
			Type:          d.Type,
			PhysicalStart: d.PhysicalStart,
			NumberOfPages: (start - d.PhysicalStart) / uefi.PageSize,
			Attribute:     d.Attribute,
		})
	}
	pieces = append(pieces, uefi.MemoryDescriptor{
		Type:          typ,
		PhysicalStart: start,
		NumberOfPages: pages,
		Attribute:     d.Attribute,
	})
	if end := start + size; end < d.PhysicalEnd() {
		pieces = append(pieces, uefi.MemoryDescriptor{
			Type:          d.Type,
			PhysicalStart: end,
			NumberOfPages: (d.PhysicalEnd() - end) / uefi.PageSize,
			Attribute:     d.Attribute,
		})
	}
	f.mmap = slices.Replace(f.mmap, i, i+1, pieces...)
	f.coalesce()
	f.key++
}

func (f *Firmware) coalesce() {
	out := f.mmap[:0]
	for _, d := range f.mmap {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Type == d.Type && last.Attribute == d.Attribute && last.PhysicalEnd() == d.PhysicalStart {
				last.NumberOfPages += d.NumberOfPages
				continue
			}
		}
		out = append(out, d)
	}
	f.mmap = out
}
