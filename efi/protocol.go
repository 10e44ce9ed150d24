// SPDX-License-Identifier: Unlicense OR MIT

//go:build tamago && amd64

package efi

import (
	"encoding/binary"
	"unsafe"

	"eliasnaur.com/efiboot/uefi"
)

type textOutput uint64

func (t textOutput) OutputString(s []uint16) uefi.Status {
	return uefi.Status(callService(function(uint64(t), textOutputString),
		uintptr(t),
		uintptr(unsafe.Pointer(unsafe.SliceData(s))),
		0, 0, 0, 0, 0, 0, 0, 0))
}

type loadedImage uint64

func (l loadedImage) DeviceHandle() uefi.Handle {
	return uefi.Handle(word(uint64(l) + loadedImageDeviceHandle))
}

type fileSystem uint64

func (f fileSystem) OpenVolume() (uefi.FileProtocol, uefi.Status) {
	var root uint64
	st := uefi.Status(callService(function(uint64(f), fileSystemOpenVolume),
		uintptr(f),
		uintptr(unsafe.Pointer(&root)),
		0, 0, 0, 0, 0, 0, 0, 0))
	if st != uefi.Success {
		return nil, st
	}
	return file(root), st
}

// file is an EFI_FILE_PROTOCOL instance.
type file uint64

func (f file) fn(off uintptr) uintptr {
	return function(uint64(f), off)
}

func (f file) Open(name []uint16, mode uefi.OpenMode, attr uefi.FileAttribute) (uefi.FileProtocol, uefi.Status) {
	var h uint64
	st := uefi.Status(callService(f.fn(fileOpen),
		uintptr(f),
		uintptr(unsafe.Pointer(&h)),
		uintptr(unsafe.Pointer(unsafe.SliceData(name))),
		uintptr(mode),
		uintptr(attr),
		0, 0, 0, 0, 0))
	if st != uefi.Success {
		return nil, st
	}
	return file(h), st
}

func (f file) Close() uefi.Status {
	return uefi.Status(callService(f.fn(fileClose), uintptr(f), 0, 0, 0, 0, 0, 0, 0, 0, 0))
}

func (f file) Delete() uefi.Status {
	return uefi.Status(callService(f.fn(fileDelete), uintptr(f), 0, 0, 0, 0, 0, 0, 0, 0, 0))
}

func (f file) Read(size *uint64, buf []byte) uefi.Status {
	return uefi.Status(callService(f.fn(fileRead),
		uintptr(f),
		uintptr(unsafe.Pointer(size)),
		uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		0, 0, 0, 0, 0, 0, 0))
}

func (f file) Write(size *uint64, buf []byte) uefi.Status {
	return uefi.Status(callService(f.fn(fileWrite),
		uintptr(f),
		uintptr(unsafe.Pointer(size)),
		uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		0, 0, 0, 0, 0, 0, 0))
}

func (f file) GetPosition(pos *uint64) uefi.Status {
	return uefi.Status(callService(f.fn(fileGetPosition), uintptr(f), uintptr(unsafe.Pointer(pos)), 0, 0, 0, 0, 0, 0, 0, 0))
}

func (f file) SetPosition(pos uint64) uefi.Status {
	return uefi.Status(callService(f.fn(fileSetPosition), uintptr(f), uintptr(pos), 0, 0, 0, 0, 0, 0, 0, 0))
}

func (f file) GetInfo(typ *uefi.GUID, size *uint64, buf []byte) uefi.Status {
	return uefi.Status(callService(f.fn(fileGetInfo),
		uintptr(f),
		uintptr(unsafe.Pointer(typ)),
		uintptr(unsafe.Pointer(size)),
		uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		0, 0, 0, 0, 0, 0))
}

func (f file) Flush() uefi.Status {
	return uefi.Status(callService(f.fn(fileFlush), uintptr(f), 0, 0, 0, 0, 0, 0, 0, 0, 0))
}

type graphicsOutput struct {
	addr uint64
	boot *bootServices
}

func (g *graphicsOutput) fn(off uintptr) uintptr {
	return function(g.addr, off)
}

// QueryMode copies the mode information and returns the firmware's
// copy to the pool.
func (g *graphicsOutput) QueryMode(mode uint32) (*uefi.ModeInformation, uefi.Status) {
	var size, info uint64
	st := uefi.Status(callService(g.fn(graphicsQueryMode),
		uintptr(g.addr),
		uintptr(mode),
		uintptr(unsafe.Pointer(&size)),
		uintptr(unsafe.Pointer(&info)),
		0, 0, 0, 0, 0, 0))
	if st != uefi.Success {
		return nil, st
	}
	defer g.boot.FreePool(info)
	if size < modeInformationSize {
		return nil, uefi.DeviceError
	}
	mi := new(uefi.ModeInformation)
	if _, err := binary.Decode(bytesAt(info, modeInformationSize), binary.LittleEndian, mi); err != nil {
		return nil, uefi.DeviceError
	}
	return mi, st
}

func (g *graphicsOutput) SetMode(mode uint32) uefi.Status {
	return uefi.Status(callService(g.fn(graphicsSetMode), uintptr(g.addr), uintptr(mode), 0, 0, 0, 0, 0, 0, 0, 0))
}

func (g *graphicsOutput) Blt(buf []uefi.BltPixel, op uefi.BltOperation, srcX, srcY, dstX, dstY, width, height, delta uint64) uefi.Status {
	return uefi.Status(callService(g.fn(graphicsBlt),
		uintptr(g.addr),
		uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		uintptr(op),
		uintptr(srcX), uintptr(srcY),
		uintptr(dstX), uintptr(dstY),
		uintptr(width), uintptr(height),
		uintptr(delta)))
}

// Mode decodes the current mode. A malformed mode structure reads as
// a mode without modes.
func (g *graphicsOutput) Mode() *uefi.GraphicsMode {
	m, err := decodeGraphicsMode(bytesAt(word(g.addr+graphicsModePointer), graphicsModeSize), bytesAt)
	if err != nil {
		return new(uefi.GraphicsMode)
	}
	return m
}
