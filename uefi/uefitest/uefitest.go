// SPDX-License-Identifier: Unlicense OR MIT

// Package uefitest provides an in-memory UEFI firmware for tests.
package uefitest

import (
	"encoding/binary"
	"sort"
	"strings"
	"testing"
	"testing/fstest"

	"golang.org/x/exp/slices"

	"eliasnaur.com/efiboot/ucs2"
	"eliasnaur.com/efiboot/uefi"
)

// Handles installed by New.
const (
	ImageHandle    uefi.Handle = 1
	DeviceHandle   uefi.Handle = 2
	GraphicsHandle uefi.Handle = 3
)

// RuntimeServicesAddr is the address reported for the runtime
// services table.
const RuntimeServicesAddr = 0x80000000

// FramebufferBase is the framebuffer address of every graphics mode.
const FramebufferBase = 0xc0000000

// Calls counts firmware service invocations.
type Calls struct {
	AllocatePages      int
	FreePages          int
	AllocatePool       int
	FreePool           int
	GetMemoryMap       int
	LocateHandleBuffer int
	OpenProtocol       int
	CloseProtocol      int
	ExitBootServices   int
	Stall              int
	OpenVolume         int
	SetMode            int
	Blt                int
}

// Allocation is a page run handed out by the firmware.
type Allocation struct {
	Addr  uint64
	Pages uint64
	Type  uefi.MemoryType
}

// Firmware is an in-memory firmware implementing uefi.SystemTable and
// uefi.BootServices. Memory allocations are backed by Go memory and
// filled with a junk pattern; the memory map coalesces adjacent
// ranges and its key changes on every allocation and free.
type Firmware struct {
	// Volume is the file system on DeviceHandle. A nil Volume
	// leaves the device without a file system.
	Volume fstest.MapFS
	// Modes lists the graphics modes. Without modes there is no
	// graphics output handle.
	Modes []uefi.ModeInformation
	// Unbacked lists memory types whose allocations are not
	// addressable through Memory.
	Unbacked []uefi.MemoryType
	// DescriptorSize is the memory map stride.
	DescriptorSize uint64

	// Console and Errors collect text written to ConOut and StdErr.
	Console strings.Builder
	Errors  strings.Builder
	// OutputAfterExit counts text output attempted after
	// ExitBootServices.
	OutputAfterExit int

	Calls Calls
	// ExitKeys records every key passed to ExitBootServices.
	ExitKeys []uint64
	// BeforeExit, if set, runs at the start of ExitBootServices.
	BeforeExit func()
	// StallTime accumulates stalled microseconds.
	StallTime uint64
	// Fill is the color of the last video fill.
	Fill uefi.BltPixel

	mmap    []uefi.MemoryDescriptor
	key     uint64
	regions []region
	allocs  map[uint64]Allocation
	pools   map[uint64]bool
	tables  []uefi.ConfigurationTableEntry
	opened  map[openKey]int
	files   int
	exited  bool
	mode    uefi.GraphicsMode
}

type region struct {
	base uint64
	data []byte
}

type openKey struct {
	handle uefi.Handle
	guid   uefi.GUID
}

const junk = 0xa5

// New returns a firmware with a small PC-like memory map and an empty
// volume.
func New() *Firmware {
	f := &Firmware{
		Volume:         fstest.MapFS{},
		DescriptorSize: 48,
		allocs:         make(map[uint64]Allocation),
		pools:          make(map[uint64]bool),
		opened:         make(map[openKey]int),
		key:            1,
		mmap: []uefi.MemoryDescriptor{
			{Type: uefi.ReservedMemoryType, PhysicalStart: 0, NumberOfPages: 1},
			{Type: uefi.ConventionalMemory, PhysicalStart: 0x1000, NumberOfPages: 0x9e},
			{Type: uefi.ReservedMemoryType, PhysicalStart: 0x9f000, NumberOfPages: 0x61},
			{Type: uefi.LoaderCode, PhysicalStart: 0x100000, NumberOfPages: 0x40},
			{Type: uefi.ConventionalMemory, PhysicalStart: 0x140000, NumberOfPages: (0x80000000 - 0x140000) / uefi.PageSize},
			{Type: uefi.RuntimeServicesData, PhysicalStart: RuntimeServicesAddr, NumberOfPages: 0x10},
			{Type: uefi.MemoryMappedIO, PhysicalStart: 0xfec00000, NumberOfPages: 1},
		},
	}
	f.mode.Mode = 0
	return f
}

// Install makes f the firmware seen by package uefi for the duration
// of the test.
func (f *Firmware) Install(t testing.TB) {
	t.Helper()
	uefi.ResetForTesting()
	if err := uefi.Init(ImageHandle, f); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(uefi.ResetForTesting)
	if len(f.Modes) > 0 {
		f.setMode(0)
	}
}

// Exited reports whether boot services have been exited.
func (f *Firmware) Exited() bool {
	return f.exited
}

// Key returns the current memory map key.
func (f *Firmware) Key() uint64 {
	return f.key
}

// MemoryMap returns a copy of the current memory map.
func (f *Firmware) MemoryMap() []uefi.MemoryDescriptor {
	return slices.Clone(f.mmap)
}

// Allocations lists the live page allocations of the given type in
// address order.
func (f *Firmware) Allocations(typ uefi.MemoryType) []Allocation {
	var res []Allocation
	for _, a := range f.allocs {
		if a.Type == typ {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Addr < res[j].Addr })
	return res
}

// OpenProtocols returns the number of protocols and files not yet
// closed.
func (f *Firmware) OpenProtocols() int {
	n := f.files
	for _, c := range f.opened {
		n += c
	}
	return n
}

// AddTable copies data into ACPI reclaim memory and lists it as a
// configuration table. It returns the table's address.
func (f *Firmware) AddTable(guid uefi.GUID, data []byte) uint64 {
	var addr uint64
	pages := (uint64(len(data)) + uefi.PageSize - 1) / uefi.PageSize
	if st := f.allocate(uefi.AllocateAnyPages, uefi.ACPIReclaimMemory, pages, &addr); st != uefi.Success {
		panic(st)
	}
	copy(f.Memory(addr, uint64(len(data))), data)
	f.tables = append(f.tables, uefi.ConfigurationTableEntry{VendorGUID: guid, VendorTable: addr})
	return addr
}

// AddRSDP adds an ACPI 1.0 table for revision 0 RSDPs and an ACPI 2.0
// table otherwise.
func (f *Firmware) AddRSDP(r *uefi.RSDP) uint64 {
	data, err := r.MarshalBinary()
	if err != nil {
		panic(err)
	}
	guid := uefi.ACPI20TableGUID
	if r.Revision < 2 {
		guid = uefi.ACPI10TableGUID
	}
	return f.AddTable(guid, data)
}

// SystemTable methods.

func (f *Firmware) ConOut() uefi.SimpleTextOutputProtocol {
	return &textOutput{f: f, b: &f.Console}
}

func (f *Firmware) StdErr() uefi.SimpleTextOutputProtocol {
	return &textOutput{f: f, b: &f.Errors}
}

func (f *Firmware) BootServices() uefi.BootServices {
	if f.exited {
		return nil
	}
	return f
}

func (f *Firmware) RuntimeServices() uint64 {
	return RuntimeServicesAddr
}

func (f *Firmware) ConfigurationTable() []uefi.ConfigurationTableEntry {
	return f.tables
}

func (f *Firmware) Memory(addr, size uint64) []byte {
	i := sort.Search(len(f.regions), func(i int) bool {
		return f.regions[i].base > addr
	}) - 1
	if i < 0 {
		return nil
	}
	r := f.regions[i]
	if slices.Contains(f.Unbacked, f.allocs[r.base].Type) {
		return nil
	}
	off := addr - r.base
	if off > uint64(len(r.data)) || size > uint64(len(r.data))-off {
		return nil
	}
	return r.data[off : off+size : off+size]
}

// BootServices methods.

func (f *Firmware) AllocatePages(typ uefi.AllocateType, mem uefi.MemoryType, pages uint64, addr *uint64) uefi.Status {
	f.Calls.AllocatePages++
	return f.allocate(typ, mem, pages, addr)
}

func (f *Firmware) FreePages(addr, pages uint64) uefi.Status {
	f.Calls.FreePages++
	a, ok := f.allocs[addr]
	if !ok || a.Pages != pages || f.pools[addr] {
		return uefi.NotFound
	}
	f.release(a)
	return uefi.Success
}

func (f *Firmware) AllocatePool(mem uefi.MemoryType, size uint64, addr *uint64) uefi.Status {
	f.Calls.AllocatePool++
	return f.allocatePool(mem, size, addr)
}

func (f *Firmware) allocatePool(mem uefi.MemoryType, size uint64, addr *uint64) uefi.Status {
	pages := (size + uefi.PageSize - 1) / uefi.PageSize
	if pages == 0 {
		pages = 1
	}
	if st := f.allocate(uefi.AllocateAnyPages, mem, pages, addr); st != uefi.Success {
		return st
	}
	f.pools[*addr] = true
	return uefi.Success
}

func (f *Firmware) FreePool(addr uint64) uefi.Status {
	f.Calls.FreePool++
	if !f.pools[addr] {
		return uefi.InvalidParameter
	}
	delete(f.pools, addr)
	f.release(f.allocs[addr])
	return uefi.Success
}

func (f *Firmware) GetMemoryMap(size *uint64, buf []byte, key, descSize *uint64, descVersion *uint32) uefi.Status {
	f.Calls.GetMemoryMap++
	need := uint64(len(f.mmap)) * f.DescriptorSize
	*descSize = f.DescriptorSize
	*descVersion = 1
	if *size < need || uint64(len(buf)) < need {
		*size = need
		return uefi.BufferTooSmall
	}
	copy(buf, uefi.EncodeMemoryMap(f.mmap, f.DescriptorSize))
	*size = need
	*key = f.key
	return uefi.Success
}

func (f *Firmware) LocateHandleBuffer(search uefi.SearchType, protocol *uefi.GUID, key uint64, count, buf *uint64) uefi.Status {
	f.Calls.LocateHandleBuffer++
	if search != uefi.ByProtocol || protocol == nil {
		return uefi.InvalidParameter
	}
	var handles []uefi.Handle
	for _, h := range []uefi.Handle{ImageHandle, DeviceHandle, GraphicsHandle} {
		if f.supports(h, *protocol) {
			handles = append(handles, h)
		}
	}
	if len(handles) == 0 {
		return uefi.NotFound
	}
	var addr uint64
	if st := f.allocatePool(uefi.BootServicesData, uint64(len(handles))*8, &addr); st != uefi.Success {
		return st
	}
	mem := f.Memory(addr, uint64(len(handles))*8)
	for i, h := range handles {
		binary.LittleEndian.PutUint64(mem[i*8:], uint64(h))
	}
	*count = uint64(len(handles))
	*buf = addr
	return uefi.Success
}

func (f *Firmware) supports(h uefi.Handle, guid uefi.GUID) bool {
	switch h {
	case ImageHandle:
		return guid == uefi.LoadedImageProtocolGUID
	case DeviceHandle:
		return guid == uefi.SimpleFileSystemProtocolGUID && f.Volume != nil
	case GraphicsHandle:
		return guid == uefi.GraphicsOutputProtocolGUID && len(f.Modes) > 0
	}
	return false
}

func (f *Firmware) OpenProtocol(handle uefi.Handle, protocol *uefi.GUID, agent, controller uefi.Handle, attr uefi.OpenProtocolAttributes) (any, uefi.Status) {
	f.Calls.OpenProtocol++
	if protocol == nil || agent != ImageHandle {
		return nil, uefi.InvalidParameter
	}
	if !f.supports(handle, *protocol) {
		return nil, uefi.Unsupported
	}
	f.opened[openKey{handle, *protocol}]++
	switch *protocol {
	case uefi.LoadedImageProtocolGUID:
		return loadedImage{}, uefi.Success
	case uefi.SimpleFileSystemProtocolGUID:
		return &fileSystem{f: f}, uefi.Success
	default:
		return &graphicsOutput{f: f}, uefi.Success
	}
}

func (f *Firmware) CloseProtocol(handle uefi.Handle, protocol *uefi.GUID, agent, controller uefi.Handle) uefi.Status {
	f.Calls.CloseProtocol++
	if protocol == nil || agent != ImageHandle {
		return uefi.InvalidParameter
	}
	k := openKey{handle, *protocol}
	if f.opened[k] == 0 {
		return uefi.NotFound
	}
	f.opened[k]--
	return uefi.Success
}

func (f *Firmware) ExitBootServices(image uefi.Handle, key uint64) uefi.Status {
	f.Calls.ExitBootServices++
	f.ExitKeys = append(f.ExitKeys, key)
	if f.BeforeExit != nil {
		f.BeforeExit()
	}
	if image != ImageHandle || key != f.key {
		return uefi.InvalidParameter
	}
	f.exited = true
	return uefi.Success
}

func (f *Firmware) Stall(microseconds uint64) uefi.Status {
	f.Calls.Stall++
	f.StallTime += microseconds
	return uefi.Success
}

type textOutput struct {
	f *Firmware
	b *strings.Builder
}

func (t *textOutput) OutputString(s []uint16) uefi.Status {
	if t.f.exited {
		t.f.OutputAfterExit++
		return uefi.Unsupported
	}
	t.b.WriteString(ucs2.Decode(s))
	return uefi.Success
}

type loadedImage struct{}

func (loadedImage) DeviceHandle() uefi.Handle {
	return DeviceHandle
}
