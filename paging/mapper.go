// SPDX-License-Identifier: Unlicense OR MIT

package paging

import "fmt"

// Allocator supplies and reclaims 4 KiB table pages.
type Allocator interface {
	// AllocTable returns the physical address of a fresh 4 KiB
	// aligned page. A null address is treated as a failure.
	AllocTable() (PhysAddr, error)
	// FreeTable releases a page previously returned by AllocTable.
	FreeTable(addr PhysAddr)
}

// Translator returns the table stored at a physical address.
type Translator func(addr PhysAddr) *Table

// Mapper edits page table trees.
type Mapper struct {
	alloc     Allocator
	translate Translator
}

// Page is the result of a walk. Size is zero for an unmapped address.
type Page struct {
	Size PageSize
	Addr PhysAddr
}

func NewMapper(alloc Allocator, translate Translator) *Mapper {
	return &Mapper{alloc: alloc, translate: translate}
}

// NewRoot allocates an empty root table.
func (m *Mapper) NewRoot(fiveLevel bool) (RootTable, error) {
	addr, err := m.allocTable()
	if err != nil {
		return RootTable{}, err
	}
	return NewRootTable(addr, fiveLevel), nil
}

// Table returns the table at addr.
func (m *Mapper) Table(addr PhysAddr) (*Table, error) {
	if addr.IsNull() {
		return nil, ErrNullTable
	}
	t := m.translate(addr)
	if t == nil {
		return nil, fmt.Errorf("%w: no table at %s", ErrNullTable, addr)
	}
	return t, nil
}

// Map maps count consecutive pages of the given size starting at va to
// the physical pages starting at pa. Missing intermediate tables are
// allocated and zeroed. An existing sub-tree in the way of a large
// page is released to the allocator.
func (m *Mapper) Map(root RootTable, va VirtualAddress, pa PhysAddr, size PageSize, count uint64) error {
	target, err := m.check(root, va, size)
	if err != nil {
		return err
	}
	v := va.Uint64()
	if v%uint64(size) != 0 {
		return fmt.Errorf("%w: %#x is not %s aligned", ErrInvalidVirtualAddress, v, size)
	}
	if !pa.IsAligned(uint64(size)) {
		return fmt.Errorf("%w: %s is not %s aligned", ErrInvalidPhysicalAddress, pa, size)
	}
	if count == 0 {
		return nil
	}
	if count-1 > (^uint64(0))/uint64(size) {
		return fmt.Errorf("%w: %d pages of %s", ErrNonCanonical, count, size)
	}
	span := (count - 1) * uint64(size)
	if _, err := add(v, span, root.levels); err != nil {
		return err
	}
	if _, err := pa.Add(span + uint64(size) - 1); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPhysicalAddress, err)
	}

	var parent *Table
	for i := uint64(0); i < count; i++ {
		addr := v + i*uint64(size)
		idx := index(target, addr)
		// Consecutive pages share a parent until the index wraps.
		if parent == nil || idx == 0 {
			parent, err = m.descend(root, addr, target)
			if err != nil {
				return err
			}
		}
		e := &parent[idx]
		if target > levelTable && e.Present() && !e.IsPage() {
			if err := m.freeTree(e.Address(), target-1); err != nil {
				return err
			}
		}
		*e = pageEntry(pa+PhysAddr(i*uint64(size)), target > levelTable)
	}
	return nil
}

// Unmap clears the terminal entry mapping va. Absent mappings are not
// an error. Intermediate tables are kept.
func (m *Mapper) Unmap(root RootTable, va VirtualAddress) error {
	if _, err := m.check(root, va, PageSize4K); err != nil {
		return err
	}
	v := va.Uint64()
	t, err := m.Table(root.addr)
	if err != nil {
		return err
	}
	for level := root.levels; level >= levelTable; level-- {
		e := &t[index(level, v)]
		if !e.Present() {
			return nil
		}
		if terminal(level, *e) {
			*e = 0
			return nil
		}
		if t, err = m.Table(e.Address()); err != nil {
			return err
		}
	}
	return nil
}

// Walk translates va without modifying the tree. The returned address
// is the start of the mapped page.
func (m *Mapper) Walk(root RootTable, va VirtualAddress) (Page, error) {
	if _, err := m.check(root, va, PageSize4K); err != nil {
		return Page{}, err
	}
	v := va.Uint64()
	t, err := m.Table(root.addr)
	if err != nil {
		return Page{}, err
	}
	for level := root.levels; level >= levelTable; level-- {
		e := t[index(level, v)]
		if !e.Present() {
			return Page{}, nil
		}
		if terminal(level, e) {
			size := levelPageSize(level)
			return Page{Size: size, Addr: e.Address() &^ PhysAddr(size-1)}, nil
		}
		if t, err = m.Table(e.Address()); err != nil {
			return Page{}, err
		}
	}
	return Page{}, nil
}

func (m *Mapper) check(root RootTable, va VirtualAddress, size PageSize) (int, error) {
	if root.addr.IsNull() {
		return 0, ErrNullTable
	}
	if va == nil || va.Levels() != root.levels {
		return 0, fmt.Errorf("%w: %v for %s", ErrLevelMismatch, va, root)
	}
	target, ok := terminalLevel(size)
	if !ok {
		return 0, fmt.Errorf("%w: %#x", ErrInvalidPageSize, uint64(size))
	}
	return target, nil
}

// terminal reports whether e ends a walk at level.
func terminal(level int, e Entry) bool {
	switch level {
	case levelTable:
		return true
	case levelDirectory, levelDirectoryPtr:
		return e.IsPage()
	default:
		return false
	}
}

// descend returns the table at level target on the path to v,
// creating missing tables on the way.
func (m *Mapper) descend(root RootTable, v uint64, target int) (*Table, error) {
	t, err := m.Table(root.addr)
	if err != nil {
		return nil, err
	}
	for level := root.levels; level > target; level-- {
		e := &t[index(level, v)]
		switch {
		case !e.Present():
			addr, err := m.allocTable()
			if err != nil {
				return nil, err
			}
			*e = tableEntry(addr)
		case terminal(level, *e):
			return nil, fmt.Errorf("%w: %#x at level %d", ErrInvalidMapping, v, level)
		}
		if t, err = m.Table(e.Address()); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (m *Mapper) allocTable() (PhysAddr, error) {
	addr, err := m.alloc.AllocTable()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	if addr.IsNull() {
		return 0, ErrAllocationFailed
	}
	if !addr.IsAligned(uint64(PageSize4K)) || uint64(addr) >= _MAXPHYADDR {
		return 0, fmt.Errorf("%w: %s", ErrBadAllocation, addr)
	}
	t := m.translate(addr)
	if t == nil {
		return 0, fmt.Errorf("%w: %s is not addressable", ErrBadAllocation, addr)
	}
	*t = Table{}
	return addr, nil
}

// freeTree releases the table at addr, which sits at level, together
// with every table below it.
func (m *Mapper) freeTree(addr PhysAddr, level int) error {
	if level > levelTable {
		t, err := m.Table(addr)
		if err != nil {
			return err
		}
		for _, e := range t {
			if e.Present() && !terminal(level, e) {
				if err := m.freeTree(e.Address(), level-1); err != nil {
					return err
				}
			}
		}
	}
	m.alloc.FreeTable(addr)
	return nil
}
