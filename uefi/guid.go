// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import (
	"encoding/binary"
	"fmt"
)

// GUID is an EFI_GUID in its in-memory layout.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// Protocol and table identifiers.
var (
	SimpleFileSystemProtocolGUID = GUID{0x964e5b22, 0x6459, 0x11d2, [8]byte{0x8e, 0x39, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b}}
	LoadedImageProtocolGUID      = GUID{0x5b1b31a1, 0x9562, 0x11d2, [8]byte{0x8e, 0x3f, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b}}
	GraphicsOutputProtocolGUID   = GUID{0x9042a9de, 0x23dc, 0x4a38, [8]byte{0x96, 0xfb, 0x7a, 0xde, 0xd0, 0x80, 0x51, 0x6a}}
	FileInfoGUID                 = GUID{0x09576e92, 0x6d3f, 0x11d2, [8]byte{0x8e, 0x39, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b}}

	ACPI10TableGUID  = GUID{0xeb9d2d30, 0x2d88, 0x11d3, [8]byte{0x9a, 0x16, 0x00, 0x90, 0x27, 0x3f, 0xc1, 0x4d}}
	ACPI20TableGUID  = GUID{0x8868e871, 0xe4f1, 0x11d3, [8]byte{0xbc, 0x22, 0x00, 0x80, 0xc7, 0x3c, 0x88, 0x81}}
	SALTableGUID     = GUID{0xeb9d2d32, 0x2d88, 0x11d3, [8]byte{0x9a, 0x16, 0x00, 0x90, 0x27, 0x3f, 0xc1, 0x4d}}
	MPSTableGUID     = GUID{0xeb9d2d2f, 0x2d88, 0x11d3, [8]byte{0x9a, 0x16, 0x00, 0x90, 0x27, 0x3f, 0xc1, 0x4d}}
	SMBIOSTableGUID  = GUID{0xeb9d2d31, 0x2d88, 0x11d3, [8]byte{0x9a, 0x16, 0x00, 0x90, 0x27, 0x3f, 0xc1, 0x4d}}
	SMBIOS3TableGUID = GUID{0xf2fd1544, 0x9794, 0x4a2c, [8]byte{0x99, 0x2e, 0xe5, 0xbb, 0xcf, 0x20, 0xe3, 0x94}}
)

// GUIDSize is the encoded size of a GUID.
const GUIDSize = 16

func (g GUID) String() string {
	d := g.Data4
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		g.Data1, g.Data2, g.Data3, d[0], d[1], d[2], d[3], d[4], d[5], d[6], d[7])
}

// MarshalBinary implements the [encoding.BinaryMarshaler] interface.
func (g GUID) MarshalBinary() ([]byte, error) {
	return binary.Append(nil, binary.LittleEndian, g)
}

// UnmarshalBinary implements the [encoding.BinaryUnmarshaler] interface.
func (g *GUID) UnmarshalBinary(data []byte) error {
	_, err := binary.Decode(data, binary.LittleEndian, g)
	return err
}
