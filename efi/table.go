// SPDX-License-Identifier: Unlicense OR MIT

// Package efi binds package uefi to the firmware of a running UEFI
// application. The table layouts are decoded on every platform; the
// service calls are only built for GOOS=tamago on amd64.
package efi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"eliasnaur.com/efiboot/uefi"
)

// Signature is the EFI system table signature, "IBI SYST".
const Signature = 0x5453595320494249

var ErrInvalidSystemTable = errors.New("efi: invalid system table")

// TableHeader precedes every standard EFI table.
type TableHeader struct {
	Signature  uint64
	Revision   uint32
	HeaderSize uint32
	CRC32      uint32
	Reserved   uint32
}

// SystemTable is EFI_SYSTEM_TABLE. Pointers are physical addresses.
type SystemTable struct {
	Header               TableHeader
	FirmwareVendor       uint64
	FirmwareRevision     uint32
	_                    uint32
	ConsoleInHandle      uint64
	ConIn                uint64
	ConsoleOutHandle     uint64
	ConOut               uint64
	StandardErrorHandle  uint64
	StdErr               uint64
	RuntimeServices      uint64
	BootServices         uint64
	NumberOfTableEntries uint64
	ConfigurationTable   uint64
}

// SystemTableSize is the encoded size of SystemTable.
const SystemTableSize = 120

// MarshalBinary implements the [encoding.BinaryMarshaler] interface.
func (t *SystemTable) MarshalBinary() ([]byte, error) {
	return binary.Append(make([]byte, 0, SystemTableSize), binary.LittleEndian, t)
}

// UnmarshalBinary implements the [encoding.BinaryUnmarshaler]
// interface. The signature is checked.
func (t *SystemTable) UnmarshalBinary(data []byte) error {
	var st SystemTable
	if _, err := binary.Decode(data, binary.LittleEndian, &st); err != nil {
		return err
	}
	if st.Header.Signature != Signature {
		return fmt.Errorf("%w: signature %#x", ErrInvalidSystemTable, st.Header.Signature)
	}
	*t = st
	return nil
}

// systemTableBootServices is the offset of BootServices in the
// encoded SystemTable.
const systemTableBootServices = 0x60

// liveBootServices returns the BootServices pointer of an encoded
// system table. The firmware clears it once boot services have exited.
func liveBootServices(table []byte) uint64 {
	if len(table) < systemTableBootServices+8 {
		return 0
	}
	return binary.LittleEndian.Uint64(table[systemTableBootServices:])
}

// configurationTableEntrySize is the size of EFI_CONFIGURATION_TABLE.
const configurationTableEntrySize = uefi.GUIDSize + 8

// DecodeConfigurationTable decodes n configuration table entries.
func DecodeConfigurationTable(data []byte, n uint64) ([]uefi.ConfigurationTableEntry, error) {
	if uint64(len(data))/configurationTableEntrySize < n {
		return nil, fmt.Errorf("efi: %d bytes hold fewer than %d configuration tables", len(data), n)
	}
	entries := make([]uefi.ConfigurationTableEntry, n)
	if _, err := binary.Decode(data, binary.LittleEndian, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// graphicsMode is EFI_GRAPHICS_OUTPUT_PROTOCOL_MODE with the
// information structure behind a pointer.
type graphicsMode struct {
	MaxMode         uint32
	Mode            uint32
	Info            uint64
	SizeOfInfo      uint64
	FrameBufferBase uint64
	FrameBufferSize uint64
}

const (
	graphicsModeSize    = 40
	modeInformationSize = 36
)

// decodeGraphicsMode decodes a mode structure and the mode
// information it points to, read through memory.
func decodeGraphicsMode(mode []byte, memory func(addr, size uint64) []byte) (*uefi.GraphicsMode, error) {
	var raw graphicsMode
	if _, err := binary.Decode(mode, binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	if raw.SizeOfInfo < modeInformationSize {
		return nil, fmt.Errorf("efi: mode information of %d bytes", raw.SizeOfInfo)
	}
	info := memory(raw.Info, modeInformationSize)
	m := &uefi.GraphicsMode{
		MaxMode:         raw.MaxMode,
		Mode:            raw.Mode,
		FrameBufferBase: raw.FrameBufferBase,
		FrameBufferSize: raw.FrameBufferSize,
	}
	if _, err := binary.Decode(info, binary.LittleEndian, &m.Info); err != nil {
		return nil, err
	}
	return m, nil
}

// Boot services function offsets in EFI_BOOT_SERVICES.
const (
	allocatePages      = 0x28
	freePages          = 0x30
	getMemoryMap       = 0x38
	allocatePool       = 0x40
	freePool           = 0x48
	exitBootServices   = 0xe8
	stall              = 0xf8
	openProtocol       = 0x118
	closeProtocol      = 0x120
	locateHandleBuffer = 0x138
)

// Protocol function offsets.
const (
	textOutputString = 0x08

	loadedImageDeviceHandle = 0x18

	fileSystemOpenVolume = 0x08

	fileOpen        = 0x08
	fileClose       = 0x10
	fileDelete      = 0x18
	fileRead        = 0x20
	fileWrite       = 0x28
	fileGetPosition = 0x30
	fileSetPosition = 0x38
	fileGetInfo     = 0x40
	fileFlush       = 0x50

	graphicsQueryMode   = 0x00
	graphicsSetMode     = 0x08
	graphicsBlt         = 0x10
	graphicsModePointer = 0x18
)
