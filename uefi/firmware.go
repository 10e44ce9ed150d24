// SPDX-License-Identifier: Unlicense OR MIT

package uefi

// Handle is an opaque firmware reference.
type Handle uint64

// SystemTable is the firmware's EFI_SYSTEM_TABLE together with access
// to the physical memory its pointers refer to.
type SystemTable interface {
	ConOut() SimpleTextOutputProtocol
	StdErr() SimpleTextOutputProtocol
	// BootServices returns nil once boot services have been exited.
	BootServices() BootServices
	// RuntimeServices returns the address of the runtime services
	// table.
	RuntimeServices() uint64
	ConfigurationTable() []ConfigurationTableEntry
	// Memory returns a view of size bytes of physical memory at addr,
	// or nil if the range is not addressable.
	Memory(addr, size uint64) []byte
}

// BootServices is the EFI_BOOT_SERVICES table. Pointer arguments are
// in/out parameters as in the firmware interface.
type BootServices interface {
	AllocatePages(typ AllocateType, mem MemoryType, pages uint64, addr *uint64) Status
	FreePages(addr, pages uint64) Status
	AllocatePool(mem MemoryType, size uint64, addr *uint64) Status
	FreePool(addr uint64) Status
	GetMemoryMap(size *uint64, buf []byte, key, descSize *uint64, descVersion *uint32) Status
	LocateHandleBuffer(search SearchType, protocol *GUID, key uint64, count, buf *uint64) Status
	OpenProtocol(handle Handle, protocol *GUID, agent, controller Handle, attr OpenProtocolAttributes) (any, Status)
	CloseProtocol(handle Handle, protocol *GUID, agent, controller Handle) Status
	ExitBootServices(image Handle, key uint64) Status
	Stall(microseconds uint64) Status
}

// ConfigurationTableEntry is an EFI_CONFIGURATION_TABLE entry.
type ConfigurationTableEntry struct {
	VendorGUID  GUID
	VendorTable uint64
}

type AllocateType uint32

const (
	AllocateAnyPages AllocateType = iota
	AllocateMaxAddress
	AllocateAddress
)

type SearchType uint32

const (
	AllHandles SearchType = iota
	ByRegisterNotify
	ByProtocol
)

type OpenProtocolAttributes uint32

const (
	OpenByHandleProtocol  OpenProtocolAttributes = 0x01
	OpenGetProtocol       OpenProtocolAttributes = 0x02
	OpenTestProtocol      OpenProtocolAttributes = 0x04
	OpenByChildController OpenProtocolAttributes = 0x08
	OpenByDriver          OpenProtocolAttributes = 0x10
	OpenExclusive         OpenProtocolAttributes = 0x20
)

// SimpleTextOutputProtocol is the part of EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL
// the loader uses.
type SimpleTextOutputProtocol interface {
	// OutputString writes a NUL terminated UCS-2 string.
	OutputString(s []uint16) Status
}

type SimpleFileSystemProtocol interface {
	OpenVolume() (FileProtocol, Status)
}

// FileProtocol is EFI_FILE_PROTOCOL.
type FileProtocol interface {
	// Open opens name, a NUL terminated UCS-2 path relative to the
	// receiver.
	Open(name []uint16, mode OpenMode, attr FileAttribute) (FileProtocol, Status)
	Close() Status
	// Delete deletes and closes the file.
	Delete() Status
	Read(size *uint64, buf []byte) Status
	Write(size *uint64, buf []byte) Status
	GetPosition(pos *uint64) Status
	SetPosition(pos uint64) Status
	GetInfo(typ *GUID, size *uint64, buf []byte) Status
	Flush() Status
}

type OpenMode uint64

const (
	FileModeRead   OpenMode = 0x1
	FileModeWrite  OpenMode = 0x2
	FileModeCreate OpenMode = 0x8000000000000000
)

type FileAttribute uint64

const (
	FileReadOnly  FileAttribute = 0x01
	FileHidden    FileAttribute = 0x02
	FileSystem    FileAttribute = 0x04
	FileReserved  FileAttribute = 0x08
	FileDirectory FileAttribute = 0x10
	FileArchive   FileAttribute = 0x20
)

// GraphicsOutputProtocol is EFI_GRAPHICS_OUTPUT_PROTOCOL.
type GraphicsOutputProtocol interface {
	QueryMode(mode uint32) (*ModeInformation, Status)
	SetMode(mode uint32) Status
	Blt(buf []BltPixel, op BltOperation, srcX, srcY, dstX, dstY, width, height, delta uint64) Status
	Mode() *GraphicsMode
}

type PixelFormat uint32

const (
	PixelRedGreenBlueReserved8BitPerColor PixelFormat = iota
	PixelBlueGreenRedReserved8BitPerColor
	PixelBitMask
	PixelBltOnly
)

// ModeInformation is EFI_GRAPHICS_OUTPUT_MODE_INFORMATION.
type ModeInformation struct {
	Version              uint32
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelFormat          PixelFormat
	PixelInformation     [4]uint32
	PixelsPerScanLine    uint32
}

// GraphicsMode is EFI_GRAPHICS_OUTPUT_PROTOCOL_MODE.
type GraphicsMode struct {
	MaxMode         uint32
	Mode            uint32
	Info            ModeInformation
	FrameBufferBase uint64
	FrameBufferSize uint64
}

type BltPixel struct {
	Blue, Green, Red, Reserved uint8
}

type BltOperation uint32

const (
	BltVideoFill BltOperation = iota
	BltVideoToBltBuffer
	BltBufferToVideo
	BltVideoToVideo
)

// LoadedImageProtocol is the part of EFI_LOADED_IMAGE_PROTOCOL the
// loader uses.
type LoadedImageProtocol interface {
	DeviceHandle() Handle
}
