// SPDX-License-Identifier: Unlicense OR MIT

// Package paging builds x86_64 four- and five-level page tables.
//
// Tables are referenced by physical address. The Mapper obtains and
// releases table pages through an Allocator and reaches their contents
// through a translation function, so the same code runs under the
// firmware's identity mapping and against in-memory tables in tests.
package paging

import "fmt"

// Error is a fixed paging failure.
type Error string

const (
	ErrNullTable              Error = "paging: null table"
	ErrAllocationFailed       Error = "paging: table allocation failed"
	ErrBadAllocation          Error = "paging: allocator returned a misaligned table"
	ErrInvalidVirtualAddress  Error = "paging: virtual address not aligned to page size"
	ErrInvalidPhysicalAddress Error = "paging: physical address not aligned to page size"
	ErrInvalidMapping         Error = "paging: mapping descends through a large page"
	ErrInvalidPageSize        Error = "paging: invalid page size"
	ErrLevelMismatch          Error = "paging: virtual address width does not match root table"
	ErrNonCanonical           Error = "paging: non-canonical virtual address"
	ErrPhysicalOverflow       Error = "paging: physical address exceeds 52 bits"
)

func (e Error) Error() string {
	return string(e)
}

// PageSize is the size of a terminal mapping.
type PageSize uint64

const (
	PageSize4K PageSize = 1 << 12
	PageSize2M PageSize = 1 << 21
	PageSize1G PageSize = 1 << 30
)

func (s PageSize) String() string {
	switch s {
	case 0:
		return "none"
	case PageSize4K:
		return "4K"
	case PageSize2M:
		return "2M"
	case PageSize1G:
		return "1G"
	default:
		return fmt.Sprintf("PageSize(%#x)", uint64(s))
	}
}

// EntriesPerTable is the number of entries in a table at any level.
const EntriesPerTable = 512

// Table is the hardware representation of a page table at any level.
type Table [EntriesPerTable]Entry

// Entry is the hardware representation of a page table entry.
type Entry uint64

const (
	FlagPresent      Entry = 1 << 0
	FlagWritable     Entry = 1 << 1
	FlagUser         Entry = 1 << 2
	FlagWriteThrough Entry = 1 << 3
	FlagCacheDisable Entry = 1 << 4
	FlagAccessed     Entry = 1 << 5
	FlagDirty        Entry = 1 << 6
	// FlagPageSize marks a 2 MiB or 1 GiB page in a directory or
	// directory pointer entry.
	FlagPageSize  Entry = 1 << 7
	FlagGlobal    Entry = 1 << 8
	FlagNoExecute Entry = 1 << 63

	addressMask Entry = (_MAXPHYADDR - 1) &^ (Entry(PageSize4K) - 1)
)

// Paging levels, numbered from the leaf tables up.
const (
	levelTable        = 1
	levelDirectory    = 2
	levelDirectoryPtr = 3
	levelPml4         = 4
	levelPml5         = 5
)

func (e Entry) Present() bool {
	return e&FlagPresent != 0
}

// IsPage reports whether the entry has the page size bit set.
func (e Entry) IsPage() bool {
	return e&FlagPageSize != 0
}

// Address returns the physical address the entry refers to.
func (e Entry) Address() PhysAddr {
	return PhysAddr(e & addressMask)
}

func tableEntry(addr PhysAddr) Entry {
	return Entry(addr)&addressMask | FlagPresent | FlagWritable
}

func pageEntry(addr PhysAddr, large bool) Entry {
	e := Entry(addr)&addressMask | FlagPresent | FlagWritable
	if large {
		e |= FlagPageSize
	}
	return e
}

// index returns the 9-bit table index of v at level.
func index(level int, v uint64) int {
	return int((v >> levelShift(level)) % EntriesPerTable)
}

func levelShift(level int) uint {
	return 12 + 9*uint(level-1)
}

// levelPageSize returns the size a terminal entry maps at level.
func levelPageSize(level int) PageSize {
	return PageSize(1) << levelShift(level)
}

func terminalLevel(size PageSize) (int, bool) {
	switch size {
	case PageSize4K:
		return levelTable, true
	case PageSize2M:
		return levelDirectory, true
	case PageSize1G:
		return levelDirectoryPtr, true
	default:
		return 0, false
	}
}

// RootTable is the top level table, either a PML4 or a PML5.
type RootTable struct {
	levels int
	addr   PhysAddr
}

func Pml4(addr PhysAddr) RootTable {
	return RootTable{levels: 4, addr: addr}
}

func Pml5(addr PhysAddr) RootTable {
	return RootTable{levels: 5, addr: addr}
}

// NewRootTable returns a PML5 root if fiveLevel is set and a PML4
// root otherwise.
func NewRootTable(addr PhysAddr, fiveLevel bool) RootTable {
	if fiveLevel {
		return Pml5(addr)
	}
	return Pml4(addr)
}

func (r RootTable) Addr() PhysAddr {
	return r.addr
}

func (r RootTable) Levels() int {
	return r.levels
}

func (r RootTable) IsPml5() bool {
	return r.levels == 5
}

// CR3 returns the control register value selecting the table, with
// the write-through and cache-disable bits clear.
func (r RootTable) CR3() uint64 {
	return uint64(Entry(r.addr) & addressMask)
}

func (r RootTable) String() string {
	return fmt.Sprintf("Pml%d(%s)", r.levels, r.addr)
}
