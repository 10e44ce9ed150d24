// SPDX-License-Identifier: Unlicense OR MIT

package loader

import "eliasnaur.com/efiboot/x86"

//go:generate mockgen -destination mock_cpu_test.go -package loader eliasnaur.com/efiboot/loader CPU

// CPU is the boot processor. x86.CPU implements it on bare metal.
type CPU interface {
	Features() x86.Features
	// FiveLevelPaging reports whether five-level paging is active.
	FiveLevelPaging() bool
	// RootTable returns the current CR3 value.
	RootTable() uint64
	SetRootTable(cr3 uint64)
	// Enter jumps to the kernel entry on stack, passing args. It
	// does not return on hardware.
	Enter(entry, stack, args uint64)
	Halt()
}
