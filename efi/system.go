// SPDX-License-Identifier: Unlicense OR MIT

//go:build tamago && amd64

package efi

import (
	"fmt"

	goboot "github.com/usbarmory/go-boot/uefi"

	"eliasnaur.com/efiboot/uefi"
)

// System is the firmware of the running application. Physical memory
// is identity mapped.
type System struct {
	addr  uint64
	table SystemTable
	boot  *bootServices
}

var _ uefi.SystemTable = (*System)(nil)

// New reads the system table at addr, as passed to the image entry
// point. Page allocation at fixed addresses and page release go
// through lib when it is not nil.
func New(addr uint64, lib *goboot.BootServices) (*System, error) {
	if addr == 0 {
		return nil, fmt.Errorf("%w: null pointer", ErrInvalidSystemTable)
	}
	s := &System{addr: addr}
	if err := s.table.UnmarshalBinary(bytesAt(addr, SystemTableSize)); err != nil {
		return nil, err
	}
	s.boot = &bootServices{addr: s.table.BootServices, lib: lib}
	return s, nil
}

func (s *System) ConOut() uefi.SimpleTextOutputProtocol {
	return textOutput(s.table.ConOut)
}

func (s *System) StdErr() uefi.SimpleTextOutputProtocol {
	return textOutput(s.table.StdErr)
}

// BootServices returns nil once the firmware has cleared the boot
// services pointer of the system table.
func (s *System) BootServices() uefi.BootServices {
	if liveBootServices(bytesAt(s.addr, SystemTableSize)) == 0 {
		return nil
	}
	return s.boot
}

func (s *System) RuntimeServices() uint64 {
	return s.table.RuntimeServices
}

func (s *System) ConfigurationTable() []uefi.ConfigurationTableEntry {
	n := s.table.NumberOfTableEntries
	entries, err := DecodeConfigurationTable(bytesAt(s.table.ConfigurationTable, n*configurationTableEntrySize), n)
	if err != nil {
		return nil
	}
	return entries
}

func (s *System) Memory(addr, size uint64) []byte {
	return bytesAt(addr, size)
}
