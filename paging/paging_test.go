// SPDX-License-Identifier: Unlicense OR MIT

package paging

import (
	"errors"
	"fmt"
)

// testAllocator hands out tables backed by Go memory at increasing
// fake physical addresses.
type testAllocator struct {
	tables map[PhysAddr]*Table
	next   PhysAddr
	freed  []PhysAddr
	// err, if set, fails every allocation.
	err error
	// addr, if set, is returned instead of a fresh table.
	addr PhysAddr
}

func newTestAllocator() *testAllocator {
	return &testAllocator{
		tables: make(map[PhysAddr]*Table),
		next:   0x100000,
	}
}

func (a *testAllocator) AllocTable() (PhysAddr, error) {
	if a.err != nil {
		return 0, a.err
	}
	if a.addr != 0 {
		return a.addr, nil
	}
	addr := a.next
	a.next += PhysAddr(PageSize4K)
	a.tables[addr] = new(Table)
	return addr, nil
}

func (a *testAllocator) FreeTable(addr PhysAddr) {
	a.freed = append(a.freed, addr)
	delete(a.tables, addr)
}

func (a *testAllocator) translate(addr PhysAddr) *Table {
	return a.tables[addr]
}

func newTestMapper(fiveLevel bool) (*Mapper, *testAllocator, RootTable) {
	alloc := newTestAllocator()
	m := NewMapper(alloc, alloc.translate)
	root, err := m.NewRoot(fiveLevel)
	if err != nil {
		panic(err)
	}
	return m, alloc, root
}

func mustVA(v uint64, levels int) VirtualAddress {
	va, err := NewVirtualAddress(v, levels)
	if err != nil {
		panic(err)
	}
	return va
}

var errNoTables = errors.New("no tables left")

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
