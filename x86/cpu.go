// SPDX-License-Identifier: Unlicense OR MIT

//go:build tamago && amd64

package x86

// CPU is the boot processor.
type CPU struct {
	// CPUID executes CPUID. If nil, the instruction is executed
	// directly.
	CPUID CPUIDFunc
}

func (c CPU) Features() Features {
	if c.CPUID != nil {
		return DecodeFeatures(c.CPUID)
	}
	return DecodeFeatures(cpuid)
}

// FiveLevelPaging reports whether the firmware enabled five-level
// paging.
func (CPU) FiveLevelPaging() bool {
	return FiveLevelPaging(readCR4())
}

// RootTable returns the contents of CR3.
func (CPU) RootTable() uint64 {
	return readCR3()
}

// SetRootTable loads CR3, flushing non-global translations.
func (CPU) SetRootTable(cr3 uint64) {
	writeCR3(cr3)
}

// Enter switches to stack and jumps to entry with args in RDI.
func (CPU) Enter(entry, stack, args uint64) {
	enterKernel(entry, stack, args)
}

// Halt stops the processor with interrupts disabled.
func (CPU) Halt() {
	halt()
}

func cpuid(leaf, sub uint32) (eax, ebx, ecx, edx uint32)
func readCR3() uint64
func writeCR3(cr3 uint64)
func readCR4() uint64
func halt()
func enterKernel(entry, stack, args uint64)
