// SPDX-License-Identifier: Unlicense OR MIT

//go:build tamago && amd64

package efi

import (
	"unsafe"

	goboot "github.com/usbarmory/go-boot/uefi"

	"eliasnaur.com/efiboot/uefi"
)

// bootServices calls through EFI_BOOT_SERVICES. Calls with a go-boot
// equivalent of the same semantics go through lib; the rest are made
// directly.
type bootServices struct {
	addr uint64
	lib  *goboot.BootServices
}

func (b *bootServices) fn(off uintptr) uintptr {
	return function(b.addr, off)
}

// AllocatePages goes through go-boot for fixed addresses only; go-boot
// does not return the address the firmware picks.
func (b *bootServices) AllocatePages(typ uefi.AllocateType, mem uefi.MemoryType, pages uint64, addr *uint64) uefi.Status {
	if typ == uefi.AllocateAddress && b.lib != nil {
		return status(b.lib.AllocatePages(goboot.AllocateAddress, int(mem), int(pages*uefi.PageSize), *addr))
	}
	return uefi.Status(callService(b.fn(allocatePages), uintptr(typ), uintptr(mem), uintptr(pages), uintptr(unsafe.Pointer(addr)), 0, 0, 0, 0, 0, 0))
}

func (b *bootServices) FreePages(addr, pages uint64) uefi.Status {
	if b.lib != nil {
		return status(b.lib.FreePages(addr, int(pages*uefi.PageSize)))
	}
	return uefi.Status(callService(b.fn(freePages), uintptr(addr), uintptr(pages), 0, 0, 0, 0, 0, 0, 0, 0))
}

func (b *bootServices) AllocatePool(mem uefi.MemoryType, size uint64, addr *uint64) uefi.Status {
	return uefi.Status(callService(b.fn(allocatePool), uintptr(mem), uintptr(size), uintptr(unsafe.Pointer(addr)), 0, 0, 0, 0, 0, 0, 0))
}

func (b *bootServices) FreePool(addr uint64) uefi.Status {
	return uefi.Status(callService(b.fn(freePool), uintptr(addr), 0, 0, 0, 0, 0, 0, 0, 0, 0))
}

func (b *bootServices) GetMemoryMap(size *uint64, buf []byte, key, descSize *uint64, descVersion *uint32) uefi.Status {
	return uefi.Status(callService(b.fn(getMemoryMap),
		uintptr(unsafe.Pointer(size)),
		uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		uintptr(unsafe.Pointer(key)),
		uintptr(unsafe.Pointer(descSize)),
		uintptr(unsafe.Pointer(descVersion)),
		0, 0, 0, 0, 0))
}

func (b *bootServices) LocateHandleBuffer(search uefi.SearchType, protocol *uefi.GUID, key uint64, count, buf *uint64) uefi.Status {
	return uefi.Status(callService(b.fn(locateHandleBuffer),
		uintptr(search),
		uintptr(unsafe.Pointer(protocol)),
		uintptr(key),
		uintptr(unsafe.Pointer(count)),
		uintptr(unsafe.Pointer(buf)),
		0, 0, 0, 0, 0))
}

func (b *bootServices) OpenProtocol(handle uefi.Handle, protocol *uefi.GUID, agent, controller uefi.Handle, attr uefi.OpenProtocolAttributes) (any, uefi.Status) {
	var iface uint64
	st := uefi.Status(callService(b.fn(openProtocol),
		uintptr(handle),
		uintptr(unsafe.Pointer(protocol)),
		uintptr(unsafe.Pointer(&iface)),
		uintptr(agent),
		uintptr(controller),
		uintptr(attr),
		0, 0, 0, 0))
	if st != uefi.Success {
		return nil, st
	}
	return b.wrap(*protocol, iface), st
}

func (b *bootServices) CloseProtocol(handle uefi.Handle, protocol *uefi.GUID, agent, controller uefi.Handle) uefi.Status {
	return uefi.Status(callService(b.fn(closeProtocol),
		uintptr(handle),
		uintptr(unsafe.Pointer(protocol)),
		uintptr(agent),
		uintptr(controller),
		0, 0, 0, 0, 0, 0))
}

// ExitBootServices exits boot services with the key of the map the
// caller decoded. A stale key fails the call.
func (b *bootServices) ExitBootServices(image uefi.Handle, key uint64) uefi.Status {
	return uefi.Status(callService(b.fn(exitBootServices), uintptr(image), uintptr(key), 0, 0, 0, 0, 0, 0, 0, 0))
}

func (b *bootServices) Stall(microseconds uint64) uefi.Status {
	return uefi.Status(callService(b.fn(stall), uintptr(microseconds), 0, 0, 0, 0, 0, 0, 0, 0, 0))
}

// wrap returns the Go view of the protocol interface at addr.
func (b *bootServices) wrap(guid uefi.GUID, addr uint64) any {
	switch guid {
	case uefi.LoadedImageProtocolGUID:
		return loadedImage(addr)
	case uefi.SimpleFileSystemProtocolGUID:
		return fileSystem(addr)
	case uefi.GraphicsOutputProtocolGUID:
		return &graphicsOutput{addr: addr, boot: b}
	default:
		return addr
	}
}
