// SPDX-License-Identifier: Unlicense OR MIT

package paging

import "fmt"

// The maximum physical address addressable by the processor.
const _MAXPHYADDR = 1 << 52

// PhysicalLimit is the end of the 52-bit physical address space.
const PhysicalLimit = _MAXPHYADDR

// PhysAddr is a 52-bit physical address. The zero value is the null
// address.
type PhysAddr uint64

// VirtualAddress is a canonical virtual address for four-level (VA48)
// or five-level (VA57) paging.
type VirtualAddress interface {
	Uint64() uint64
	// Levels is the number of paging levels the address is indexed
	// with.
	Levels() int
	Pml4Index() int
	DirectoryPtrIndex() int
	DirectoryIndex() int
	TableIndex() int
	Offset(size PageSize) uint64
}

// VA48 is a virtual address sign extended from bit 47.
type VA48 uint64

// VA57 is a virtual address sign extended from bit 56.
type VA57 uint64

var (
	_ VirtualAddress = VA48(0)
	_ VirtualAddress = VA57(0)
)

// NewPhysAddr fails if v does not fit in 52 bits.
func NewPhysAddr(v uint64) (PhysAddr, error) {
	if v >= _MAXPHYADDR {
		return 0, fmt.Errorf("%w: %#x", ErrPhysicalOverflow, v)
	}
	return PhysAddr(v), nil
}

func (a PhysAddr) IsNull() bool {
	return a == 0
}

// IsAligned reports whether a is a multiple of size, which must be a
// power of two.
func (a PhysAddr) IsAligned(size uint64) bool {
	return uint64(a)&(size-1) == 0
}

// Add returns a+n, failing if the result leaves the 52-bit range.
func (a PhysAddr) Add(n uint64) (PhysAddr, error) {
	sum := uint64(a) + n
	if sum < uint64(a) {
		return 0, fmt.Errorf("%w: %#x + %#x", ErrPhysicalOverflow, uint64(a), n)
	}
	return NewPhysAddr(sum)
}

func (a PhysAddr) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// NewVA48 fails unless bits 48..63 of v equal bit 47.
func NewVA48(v uint64) (VA48, error) {
	if !canonical(v, 4) {
		return 0, fmt.Errorf("%w: %#x is not a 48-bit address", ErrNonCanonical, v)
	}
	return VA48(v), nil
}

// NewVA57 fails unless bits 57..63 of v equal bit 56.
func NewVA57(v uint64) (VA57, error) {
	if !canonical(v, 5) {
		return 0, fmt.Errorf("%w: %#x is not a 57-bit address", ErrNonCanonical, v)
	}
	return VA57(v), nil
}

// Add returns a+n. It fails if the sum wraps or lands in, or jumps
// across, the non-canonical gap.
func (a VA48) Add(n uint64) (VA48, error) {
	v, err := add(uint64(a), n, 4)
	return VA48(v), err
}

func (a VA57) Add(n uint64) (VA57, error) {
	v, err := add(uint64(a), n, 5)
	return VA57(v), err
}

func (a VA48) Uint64() uint64              { return uint64(a) }
func (a VA48) Levels() int                 { return 4 }
func (a VA48) Pml4Index() int              { return index(levelPml4, uint64(a)) }
func (a VA48) DirectoryPtrIndex() int      { return index(levelDirectoryPtr, uint64(a)) }
func (a VA48) DirectoryIndex() int         { return index(levelDirectory, uint64(a)) }
func (a VA48) TableIndex() int             { return index(levelTable, uint64(a)) }
func (a VA48) Offset(size PageSize) uint64 { return uint64(a) & (uint64(size) - 1) }
func (a VA48) String() string              { return fmt.Sprintf("%#x", uint64(a)) }
func (a VA57) Uint64() uint64              { return uint64(a) }
func (a VA57) Levels() int                 { return 5 }
func (a VA57) Pml5Index() int              { return index(levelPml5, uint64(a)) }
func (a VA57) Pml4Index() int              { return index(levelPml4, uint64(a)) }
func (a VA57) DirectoryPtrIndex() int      { return index(levelDirectoryPtr, uint64(a)) }
func (a VA57) DirectoryIndex() int         { return index(levelDirectory, uint64(a)) }
func (a VA57) TableIndex() int             { return index(levelTable, uint64(a)) }
func (a VA57) Offset(size PageSize) uint64 { return uint64(a) & (uint64(size) - 1) }
func (a VA57) String() string              { return fmt.Sprintf("%#x", uint64(a)) }

// NewVirtualAddress returns v as a VA48 or VA57 depending on levels.
func NewVirtualAddress(v uint64, levels int) (VirtualAddress, error) {
	switch levels {
	case 4:
		return NewVA48(v)
	case 5:
		return NewVA57(v)
	default:
		return nil, fmt.Errorf("paging: %d-level paging is not supported", levels)
	}
}

// canonical reports whether the bits above the highest meaningful bit
// are copies of it.
func canonical(v uint64, levels int) bool {
	shift := 64 - virtualBits(levels)
	return uint64(int64(v<<shift)>>shift) == v
}

func virtualBits(levels int) uint {
	return 12 + 9*uint(levels)
}

func higherHalf(v uint64) bool {
	return int64(v) < 0
}

func add(v, n uint64, levels int) (uint64, error) {
	sum := v + n
	if sum < v || !canonical(sum, levels) || higherHalf(sum) != higherHalf(v) {
		return 0, fmt.Errorf("%w: %#x + %#x", ErrNonCanonical, v, n)
	}
	return sum, nil
}
