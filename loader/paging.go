// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"fmt"
	"unsafe"

	"eliasnaur.com/efiboot/bootinfo"
	"eliasnaur.com/efiboot/paging"
	"eliasnaur.com/efiboot/uefi"
)

// tableChunkPages is the number of table pages requested from the
// firmware at a time.
const tableChunkPages = 64

// tableAllocator hands out page table pages from firmware allocated
// chunks.
type tableAllocator struct {
	chunks []*uefi.MemoryPages
	next   uint64
	end    uint64
	free   []paging.PhysAddr
	used   int
}

func (a *tableAllocator) AllocTable() (paging.PhysAddr, error) {
	a.used++
	if n := len(a.free); n > 0 {
		addr := a.free[n-1]
		a.free = a.free[:n-1]
		return addr, nil
	}
	if a.next == a.end {
		p, err := uefi.AllocatePages(tableChunkPages, uefi.LoaderData)
		if err != nil {
			a.used--
			return 0, err
		}
		a.chunks = append(a.chunks, p)
		a.next, a.end = p.Addr(), p.Addr()+p.ByteLen()
	}
	addr := a.next
	a.next += uint64(paging.PageSize4K)
	return paging.PhysAddr(addr), nil
}

func (a *tableAllocator) FreeTable(addr paging.PhysAddr) {
	a.used--
	a.free = append(a.free, addr)
}

// Leak hands every chunk over to the kernel.
func (a *tableAllocator) Leak() {
	for _, c := range a.chunks {
		c.Leak()
	}
}

func (a *tableAllocator) Free() error {
	for _, c := range a.chunks {
		if err := c.Free(); err != nil {
			return err
		}
	}
	a.chunks = nil
	return nil
}

// translate reaches a table through the firmware's identity mapping.
func translate(addr paging.PhysAddr) *paging.Table {
	b, err := uefi.Memory(uint64(addr), uint64(paging.PageSize4K))
	if err != nil {
		return nil
	}
	return (*paging.Table)(unsafe.Pointer(&b[0]))
}

// buildPageTables creates the kernel address space: the kernel image,
// the boot stack and the physical map, plus the firmware's lower half
// so the loader keeps running once the root is installed.
func (l *Loader) buildPageTables() error {
	features := l.cpu.Features()
	five := l.cpu.FiveLevelPaging()
	l.tables = new(tableAllocator)
	l.mapper = paging.NewMapper(l.tables, translate)
	root, err := l.mapper.NewRoot(five)
	if err != nil {
		return err
	}
	l.root = root
	levels := root.Levels()
	if err := l.copyLowerHalf(); err != nil {
		return err
	}

	va, err := paging.NewVirtualAddress(l.kernel.Base, levels)
	if err != nil {
		return err
	}
	kpa := paging.PhysAddr(l.kernelPages.Addr())
	if err := l.mapper.Map(root, va, kpa, paging.PageSize4K, l.kernelPages.Len()); err != nil {
		return fmt.Errorf("loader: mapping kernel: %w", err)
	}

	stack, err := uefi.AllocatePages(bootinfo.StackPages, bootinfo.UEFIKernelStack)
	if err != nil {
		return fmt.Errorf("loader: allocating stack: %w", err)
	}
	l.stackPages = stack
	b, err := stack.Bytes()
	if err != nil {
		return fmt.Errorf("loader: stack: %w", err)
	}
	clear(b)
	va, err = paging.NewVirtualAddress(bootinfo.StackVirtualBottom, levels)
	if err != nil {
		return err
	}
	if err := l.mapper.Map(root, va, paging.PhysAddr(stack.Addr()), paging.PageSize4K, bootinfo.StackPages); err != nil {
		return fmt.Errorf("loader: mapping stack: %w", err)
	}
	l.args.MemoryInfo.StackStart = stack.Addr()
	l.args.MemoryInfo.StackLen = bootinfo.StackSize

	size := paging.PageSize2M
	if features.Pages1G {
		size = paging.PageSize1G
	}
	start, span := bootinfo.PhysicalMapSpan(levels)
	va, err = paging.NewVirtualAddress(start, levels)
	if err != nil {
		return err
	}
	if err := l.mapper.Map(root, va, 0, size, span/uint64(size)); err != nil {
		return fmt.Errorf("loader: mapping physical memory: %w", err)
	}
	l.log.Infof("page tables: %v, physical map %#x+%#x in %s pages, %d tables", root, start, span, size, l.tables.used)
	if l.cfg.Debug.Enabled {
		return l.verifyPageTables()
	}
	return nil
}

// verifyPageTables logs the higher half mappings and checks that no
// two of them share physical memory. The physical map and the
// firmware's lower half are exempt.
func (l *Loader) verifyPageTables() error {
	ranges, err := l.mapper.Dump(l.root)
	if err != nil {
		return fmt.Errorf("loader: page tables: %w", err)
	}
	start, span := bootinfo.PhysicalMapSpan(l.root.Levels())
	exempt := func(r paging.Range) bool {
		return r.Virtual < 1<<63 || r.Virtual >= start && r.Virtual-start < span
	}
	for _, r := range ranges {
		if r.Virtual >= 1<<63 {
			l.log.Debugf("mapping %v", r)
		}
	}
	if err := paging.Verify(ranges, exempt); err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	return nil
}

// copyLowerHalf copies the lower half entries of the active root
// table into the new root.
func (l *Loader) copyLowerHalf() error {
	cur := paging.Entry(l.cpu.RootTable()).Address()
	if cur.IsNull() {
		return nil
	}
	src, err := l.mapper.Table(cur)
	if err != nil {
		return fmt.Errorf("loader: active root table: %w", err)
	}
	dst, err := l.mapper.Table(l.root.Addr())
	if err != nil {
		return err
	}
	copy(dst[:paging.EntriesPerTable/2], src[:paging.EntriesPerTable/2])
	return nil
}
