// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import (
	"errors"
	"fmt"
)

// PageSize is the firmware page size.
const PageSize = 4096

// MemoryType is an EFI_MEMORY_TYPE. Values from 0x80000000 are
// reserved for operating system loaders.
type MemoryType uint32

const (
	ReservedMemoryType MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
	UnacceptedMemory
)

var memoryTypeNames = [...]string{
	"Reserved",
	"LoaderCode",
	"LoaderData",
	"BootServicesCode",
	"BootServicesData",
	"RuntimeServicesCode",
	"RuntimeServicesData",
	"Conventional",
	"Unusable",
	"ACPIReclaim",
	"ACPINVS",
	"MMIO",
	"MMIOPortSpace",
	"PalCode",
	"Persistent",
	"Unaccepted",
}

func (t MemoryType) String() string {
	if int(t) < len(memoryTypeNames) {
		return memoryTypeNames[t]
	}
	return fmt.Sprintf("MemoryType(%#x)", uint32(t))
}

// MemoryPages owns a physically contiguous run of pages allocated
// from the firmware. Free releases them unless Leak was called.
type MemoryPages struct {
	addr  uint64
	pages uint64
	typ   MemoryType
	owned bool
}

// AllocatePages allocates pages contiguous pages tagged typ.
func AllocatePages(pages uint64, typ MemoryType) (*MemoryPages, error) {
	if pages == 0 {
		return nil, invalidArgument("pages")
	}
	_, bs, err := bootServices()
	if err != nil {
		return nil, err
	}
	var addr uint64
	switch st := bs.AllocatePages(AllocateAnyPages, typ, pages, &addr); st {
	case Success:
	case OutOfResources, NotFound:
		return nil, ErrOutOfMemory
	case InvalidParameter:
		return nil, invalidArgument("memory type")
	default:
		return nil, StatusError{Status: st}
	}
	return &MemoryPages{addr: addr, pages: pages, typ: typ, owned: true}, nil
}

// AllocateBytes allocates enough pages to hold n bytes.
func AllocateBytes(n uint64, typ MemoryType) (*MemoryPages, error) {
	return AllocatePages((n+PageSize-1)/PageSize, typ)
}

// Addr returns the physical address of the first page.
func (p *MemoryPages) Addr() uint64 {
	return p.addr
}

// Len returns the number of pages.
func (p *MemoryPages) Len() uint64 {
	return p.pages
}

func (p *MemoryPages) ByteLen() uint64 {
	return p.pages * PageSize
}

func (p *MemoryPages) Type() MemoryType {
	return p.typ
}

// Bytes returns the pages' memory.
func (p *MemoryPages) Bytes() ([]byte, error) {
	return Memory(p.addr, p.ByteLen())
}

// Leak gives up ownership; Free becomes a no-op. Used for memory
// handed over to the kernel.
func (p *MemoryPages) Leak() {
	p.owned = false
}

// Free returns the pages to the firmware. It is a no-op for leaked or
// already freed pages and after boot services have exited.
func (p *MemoryPages) Free() error {
	if !p.owned {
		return nil
	}
	p.owned = false
	_, bs, err := bootServices()
	if err != nil {
		if errors.Is(err, ErrBootServicesUnavailable) {
			return nil
		}
		return err
	}
	switch st := bs.FreePages(p.addr, p.pages); st {
	case Success:
		return nil
	case NotFound, InvalidParameter:
		return invalidArgument("addr")
	default:
		return StatusError{Status: st}
	}
}
