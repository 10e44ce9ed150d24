// SPDX-License-Identifier: Unlicense OR MIT

// Package uefi implements the loader's view of UEFI firmware: the
// process wide image handle and system table, scoped protocol and
// memory ownership, the memory map, file system volumes, configuration
// tables, graphics and console output.
//
// The firmware itself is reached through the SystemTable and
// BootServices interfaces. Package efi implements them on hardware,
// package uefitest in memory.
package uefi

import (
	"sync/atomic"
	"time"
)

type system struct {
	image Handle
	table SystemTable
}

var current atomic.Pointer[system]

// Init records the image handle and system table passed to the
// application entry point. It fails if called more than once.
func Init(image Handle, table SystemTable) error {
	if table == nil {
		return invalidArgument("table")
	}
	if !current.CompareAndSwap(nil, &system{image: image, table: table}) {
		return ErrAlreadyInitialized
	}
	return nil
}

// ResetForTesting forgets the state recorded by Init.
func ResetForTesting() {
	current.Store(nil)
}

func loaded() (*system, error) {
	s := current.Load()
	if s == nil {
		return nil, ErrNotInitialized
	}
	return s, nil
}

// ImageHandle returns the loader's image handle.
func ImageHandle() (Handle, error) {
	s, err := loaded()
	if err != nil {
		return 0, err
	}
	return s.image, nil
}

// Table returns the system table.
func Table() (SystemTable, error) {
	s, err := loaded()
	if err != nil {
		return nil, err
	}
	return s.table, nil
}

func bootServices() (*system, BootServices, error) {
	s, err := loaded()
	if err != nil {
		return nil, nil, err
	}
	bs := s.table.BootServices()
	if bs == nil {
		return nil, nil, ErrBootServicesUnavailable
	}
	return s, bs, nil
}

// BootServicesAvailable reports whether boot services can still be
// called.
func BootServicesAvailable() (bool, error) {
	s, err := loaded()
	if err != nil {
		return false, err
	}
	return s.table.BootServices() != nil, nil
}

// Memory returns a view of physical memory.
func Memory(addr, size uint64) ([]byte, error) {
	s, err := loaded()
	if err != nil {
		return nil, err
	}
	b := s.table.Memory(addr, size)
	if uint64(len(b)) != size {
		return nil, invalidArgument("addr")
	}
	return b, nil
}

// ExitBootServices terminates boot services. The key must be the key
// of the most recent memory map; an outdated key fails with an
// InvalidArgumentError naming "key".
func ExitBootServices(key MemoryMapKey) error {
	s, bs, err := bootServices()
	if err != nil {
		return err
	}
	switch st := bs.ExitBootServices(s.image, uint64(key)); st {
	case Success:
		return nil
	case InvalidParameter:
		return invalidArgument("key")
	default:
		return StatusError{Status: st}
	}
}

// Stall busy waits for at least d.
func Stall(d time.Duration) error {
	_, bs, err := bootServices()
	if err != nil {
		return err
	}
	if st := bs.Stall(uint64(d.Microseconds())); st != Success {
		return StatusError{Status: st}
	}
	return nil
}
