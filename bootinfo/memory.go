// SPDX-License-Identifier: Unlicense OR MIT

package bootinfo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"eliasnaur.com/efiboot/uefi"
)

// MemoryType classifies a memory section for the kernel. Types with
// bit 31 set are not available for general allocation.
type MemoryType uint32

const unusable MemoryType = 1 << 31

const (
	Conventional   MemoryType = 0
	Persistent     MemoryType = 1
	Unusable                  = unusable | 0
	Reserved                  = unusable | 1
	Firmware                  = unusable | 2
	BootReclaim               = unusable | 3
	Kernel                    = unusable | 4
	KernelStack               = unusable | 5
	MemoryMappedIO            = unusable | 6
	ACPINVS                   = unusable | 7
	ACPIReclaim               = unusable | 8
	Initial                   = unusable | 9
)

// Firmware memory types the loader tags its allocations with.
const (
	UEFIKernel      uefi.MemoryType = 0x80000000
	UEFIKernelStack uefi.MemoryType = 0x80000001
	UEFIInitial     uefi.MemoryType = 0x80000002
)

var memoryTypeNames = map[MemoryType]string{
	Conventional:   "conventional",
	Persistent:     "persistent",
	Unusable:       "unusable",
	Reserved:       "reserved",
	Firmware:       "firmware",
	BootReclaim:    "boot-reclaim",
	Kernel:         "kernel",
	KernelStack:    "kernel-stack",
	MemoryMappedIO: "mmio",
	ACPINVS:        "acpi-nvs",
	ACPIReclaim:    "acpi-reclaim",
	Initial:        "initial",
}

func (t MemoryType) String() string {
	if n, ok := memoryTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("MemoryType(%#x)", uint32(t))
}

// IsUsable reports whether the kernel may allocate from the section.
func (t MemoryType) IsUsable() bool {
	return t&unusable == 0
}

// FromUEFI converts a firmware memory type. Boot services and loader
// memory becomes reclaimable once the kernel is done with the
// firmware's data structures.
func FromUEFI(t uefi.MemoryType) MemoryType {
	switch t {
	case uefi.LoaderCode, uefi.LoaderData, uefi.BootServicesCode, uefi.BootServicesData:
		return BootReclaim
	case uefi.RuntimeServicesCode, uefi.RuntimeServicesData:
		return Firmware
	case uefi.ConventionalMemory:
		return Conventional
	case uefi.UnusableMemory:
		return Unusable
	case uefi.ACPIReclaimMemory:
		return ACPIReclaim
	case uefi.ACPIMemoryNVS:
		return ACPINVS
	case uefi.MemoryMappedIO, uefi.MemoryMappedIOPortSpace:
		return MemoryMappedIO
	case uefi.PersistentMemory:
		return Persistent
	case UEFIKernel:
		return Kernel
	case UEFIKernelStack:
		return KernelStack
	case UEFIInitial:
		return Initial
	default:
		return Reserved
	}
}

// MemorySection is a physical range of a single type.
type MemorySection struct {
	Start uint64
	Len   uint64
	Type  MemoryType
	_     uint32
}

// MemorySectionSize is the encoded size of a MemorySection.
const MemorySectionSize = 24

func (s MemorySection) End() uint64 {
	return s.Start + s.Len
}

func (s MemorySection) String() string {
	return fmt.Sprintf("[%#x-%#x) %s", s.Start, s.End(), s.Type)
}

// ErrCapacity is returned when a MemoryMap would outgrow its buffer.
var ErrCapacity = errors.New("bootinfo: memory map capacity exceeded")

// MemoryMap is the kernel format memory map: sections sorted by start
// address in a buffer whose capacity is fixed at creation.
type MemoryMap struct {
	sections []MemorySection
}

// NewMemoryMap returns an empty map with room for capacity sections.
func NewMemoryMap(capacity int) *MemoryMap {
	return &MemoryMap{sections: make([]MemorySection, 0, capacity)}
}

func (m *MemoryMap) Len() int {
	return len(m.sections)
}

func (m *MemoryMap) Cap() int {
	return cap(m.sections)
}

// Sections returns the sections. The slice aliases the map.
func (m *MemoryMap) Sections() []MemorySection {
	return m.sections
}

// Append adds s after the existing sections.
func (m *MemoryMap) Append(s MemorySection) error {
	if len(m.sections) == cap(m.sections) {
		return ErrCapacity
	}
	m.sections = append(m.sections, s)
	return nil
}

// Sort orders the sections by start address.
func (m *MemoryMap) Sort() {
	sort.SliceStable(m.sections, func(i, j int) bool {
		return m.sections[i].Start < m.sections[j].Start
	})
}

// DeclareSection overrides the type of the range covered by s. The
// section containing s.Start is truncated, sections covered by s are
// removed and a section extending past s keeps its remainder. The map
// must be sorted. Each call adds at most two sections.
func (m *MemoryMap) DeclareSection(s MemorySection) error {
	if s.Len == 0 {
		return nil
	}
	end := s.End()
	if end < s.Start {
		return fmt.Errorf("bootinfo: section %#x+%#x overflows", s.Start, s.Len)
	}
	secs := m.sections
	i := sort.Search(len(secs), func(i int) bool {
		return secs[i].End() > s.Start
	})
	var pieces [3]MemorySection
	n := 0
	if i < len(secs) && secs[i].Start < s.Start {
		pieces[n] = MemorySection{Start: secs[i].Start, Len: s.Start - secs[i].Start, Type: secs[i].Type}
		n++
	}
	pieces[n] = s
	n++
	j := i
	for j < len(secs) && secs[j].End() <= end {
		j++
	}
	if j < len(secs) && secs[j].Start < end {
		pieces[n] = MemorySection{Start: end, Len: secs[j].End() - end, Type: secs[j].Type}
		n++
		j++
	}
	if len(secs)-(j-i)+n > cap(secs) {
		return fmt.Errorf("%w: declaring %v", ErrCapacity, s)
	}
	m.sections = slices.Replace(secs, i, j, pieces[:n]...)
	return nil
}

// MarshalBinary implements the [encoding.BinaryMarshaler] interface.
// The result holds Len sections.
func (m *MemoryMap) MarshalBinary() ([]byte, error) {
	return binary.Append(make([]byte, 0, len(m.sections)*MemorySectionSize), binary.LittleEndian, m.sections)
}

// DecodeMemoryMap decodes n sections from data.
func DecodeMemoryMap(data []byte, n int) (*MemoryMap, error) {
	if n < 0 || len(data) < n*MemorySectionSize {
		return nil, fmt.Errorf("bootinfo: %d bytes hold fewer than %d sections", len(data), n)
	}
	m := NewMemoryMap(n)
	m.sections = m.sections[:n]
	if _, err := binary.Decode(data[:n*MemorySectionSize], binary.LittleEndian, m.sections); err != nil {
		return nil, err
	}
	return m, nil
}
