// SPDX-License-Identifier: Unlicense OR MIT

package paging

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Range is a run of terminal mappings.
type Range struct {
	Virtual  uint64
	Physical PhysAddr
	Len      uint64
	PageSize PageSize
}

func (r Range) String() string {
	return fmt.Sprintf("vaddr: %#x paddr: %s size: %#x (%s)", r.Virtual, r.Physical, r.Len, r.PageSize)
}

// Dump lists the terminal mappings in the tree in virtual address
// order, merged as by Coalesce.
func (m *Mapper) Dump(root RootTable) ([]Range, error) {
	var ranges []Range
	var walk func(addr PhysAddr, level int, base uint64) error
	walk = func(addr PhysAddr, level int, base uint64) error {
		t, err := m.Table(addr)
		if err != nil {
			return err
		}
		for i, e := range t {
			if !e.Present() {
				continue
			}
			vaddr := base + uint64(i)<<levelShift(level)
			if level == root.levels {
				vaddr = signExtend(vaddr, root.levels)
			}
			if terminal(level, e) {
				size := levelPageSize(level)
				ranges = appendRange(ranges, Range{
					Virtual:  vaddr,
					Physical: e.Address() &^ PhysAddr(size-1),
					Len:      uint64(size),
					PageSize: size,
				})
				continue
			}
			if err := walk(e.Address(), level-1, vaddr); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root.addr, root.levels, 0); err != nil {
		return nil, err
	}
	return ranges, nil
}

// Coalesce merges adjacent ranges of the same page size that are
// contiguous both virtually and physically.
func Coalesce(ranges []Range) []Range {
	var out []Range
	for _, r := range ranges {
		out = appendRange(out, r)
	}
	return out
}

func appendRange(ranges []Range, r Range) []Range {
	if n := len(ranges); n > 0 {
		last := &ranges[n-1]
		if last.PageSize == r.PageSize && last.Virtual+last.Len == r.Virtual && uint64(last.Physical)+last.Len == uint64(r.Physical) {
			last.Len += r.Len
			return ranges
		}
	}
	return append(ranges, r)
}

// Verify reports the first pair of ranges mapping overlapping physical
// memory. Ranges for which ignore returns true are skipped; the
// physical map overlaps every other mapping.
func Verify(ranges []Range, ignore func(Range) bool) error {
	var phys []Range
	for _, r := range ranges {
		if ignore != nil && ignore(r) {
			continue
		}
		phys = append(phys, r)
	}
	slices.SortFunc(phys, func(a, b Range) int {
		switch {
		case a.Physical < b.Physical:
			return -1
		case a.Physical > b.Physical:
			return 1
		case a.Len < b.Len:
			return -1
		case a.Len > b.Len:
			return 1
		}
		return 0
	})
	for i := 0; i+1 < len(phys); i++ {
		r1, r2 := phys[i], phys[i+1]
		if uint64(r1.Physical)+r1.Len > uint64(r2.Physical) {
			return fmt.Errorf("paging: overlapping range: %v and %v", r1, r2)
		}
	}
	return nil
}

func signExtend(v uint64, levels int) uint64 {
	shift := 64 - virtualBits(levels)
	return uint64(int64(v<<shift) >> shift)
}
