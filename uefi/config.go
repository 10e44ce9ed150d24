// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"eliasnaur.com/efiboot/cursor"
)

// TableKind classifies configuration table entries.
type TableKind int

const (
	TableUnknown TableKind = iota
	TableACPI1
	TableACPI2
	TableSAL
	TableMPS
	TableSMBIOS
	TableSMBIOS3
)

var tableKinds = map[GUID]TableKind{
	ACPI10TableGUID:  TableACPI1,
	ACPI20TableGUID:  TableACPI2,
	SALTableGUID:     TableSAL,
	MPSTableGUID:     TableMPS,
	SMBIOSTableGUID:  TableSMBIOS,
	SMBIOS3TableGUID: TableSMBIOS3,
}

func (k TableKind) String() string {
	switch k {
	case TableACPI1:
		return "ACPI 1.0"
	case TableACPI2:
		return "ACPI 2.0"
	case TableSAL:
		return "SAL"
	case TableMPS:
		return "MPS"
	case TableSMBIOS:
		return "SMBIOS"
	case TableSMBIOS3:
		return "SMBIOS3"
	default:
		return "unknown"
	}
}

// ConfigurationTable is a classified configuration table entry.
type ConfigurationTable struct {
	Kind TableKind
	GUID GUID
	Addr uint64
}

// ConfigurationTables lists the system table's configuration tables.
func ConfigurationTables() ([]ConfigurationTable, error) {
	s, err := loaded()
	if err != nil {
		return nil, err
	}
	entries := s.table.ConfigurationTable()
	tables := make([]ConfigurationTable, len(entries))
	for i, e := range entries {
		tables[i] = ConfigurationTable{
			Kind: tableKinds[e.VendorGUID],
			GUID: e.VendorGUID,
			Addr: e.VendorTable,
		}
	}
	return tables, nil
}

var ErrInvalidRSDP = errors.New("uefi: invalid RSDP")

const (
	rsdpSignature    = "RSD PTR "
	rsdpV1Size       = 20
	rsdpV2Size       = 36
	rsdpChecksumSize = rsdpV1Size
)

// RSDP is the ACPI root system description pointer. Revision 0
// structures carry only the RSDT address.
type RSDP struct {
	OEMID       string
	Revision    uint8
	RSDTAddress uint32
	Length      uint32
	XSDTAddress uint64
}

// ReadRSDP reads and validates the RSDP at addr.
func ReadRSDP(addr uint64) (*RSDP, error) {
	head, err := Memory(addr, rsdpV1Size)
	if err != nil {
		return nil, err
	}
	if head[15] < 2 {
		return ParseRSDP(head)
	}
	full, err := Memory(addr, rsdpV2Size)
	if err != nil {
		return nil, err
	}
	return ParseRSDP(full)
}

// ParseRSDP decodes an RSDP, checking its signature and checksums.
func ParseRSDP(data []byte) (*RSDP, error) {
	c := cursor.New(data)
	bo := binary.LittleEndian
	sig, err := c.Bytes(8)
	if err != nil {
		return nil, err
	}
	if string(sig) != rsdpSignature {
		return nil, fmt.Errorf("%w: signature %q", ErrInvalidRSDP, sig)
	}
	if _, err := c.Uint8(); err != nil {
		return nil, err
	}
	oem, err := c.Bytes(6)
	if err != nil {
		return nil, err
	}
	r := &RSDP{OEMID: string(bytes.TrimRight(oem, " \x00"))}
	if r.Revision, err = c.Uint8(); err != nil {
		return nil, err
	}
	if r.RSDTAddress, err = c.Uint32(bo); err != nil {
		return nil, err
	}
	if sum(data[:rsdpChecksumSize]) != 0 {
		return nil, fmt.Errorf("%w: checksum", ErrInvalidRSDP)
	}
	if r.Revision < 2 {
		return r, nil
	}
	if r.Length, err = c.Uint32(bo); err != nil {
		return nil, err
	}
	if r.XSDTAddress, err = c.Uint64(bo); err != nil {
		return nil, err
	}
	if r.Length < rsdpV2Size || int(r.Length) > len(data) {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidRSDP, r.Length)
	}
	if sum(data[:r.Length]) != 0 {
		return nil, fmt.Errorf("%w: extended checksum", ErrInvalidRSDP)
	}
	return r, nil
}

// MarshalBinary implements the [encoding.BinaryMarshaler] interface.
// The checksums are computed.
func (r *RSDP) MarshalBinary() ([]byte, error) {
	bo := binary.LittleEndian
	buf := make([]byte, 0, rsdpV2Size)
	buf = append(buf, rsdpSignature...)
	buf = append(buf, 0)
	var oem [6]byte
	copy(oem[:], r.OEMID)
	buf = append(buf, oem[:]...)
	buf = append(buf, r.Revision)
	buf = bo.AppendUint32(buf, r.RSDTAddress)
	buf[8] = -sum(buf)
	if r.Revision < 2 {
		return buf, nil
	}
	buf = bo.AppendUint32(buf, rsdpV2Size)
	buf = bo.AppendUint64(buf, r.XSDTAddress)
	buf = append(buf, 0, 0, 0, 0)
	buf[32] = -sum(buf)
	return buf, nil
}

func sum(b []byte) uint8 {
	var s uint8
	for _, v := range b {
		s += v
	}
	return s
}
