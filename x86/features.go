// SPDX-License-Identifier: Unlicense OR MIT

// Package x86 probes x86_64 processor features and, on bare metal,
// provides the control register and control transfer primitives the
// loader needs.
package x86

// CPUIDFunc executes CPUID for a leaf and sub-leaf.
type CPUIDFunc func(leaf, sub uint32) (eax, ebx, ecx, edx uint32)

// Features are the paging related processor capabilities.
type Features struct {
	// Pages1G reports support for 1 GiB pages.
	Pages1G bool
	NX      bool
	// LA57 reports support for five-level paging.
	LA57         bool
	PhysicalBits uint8
	VirtualBits  uint8
}

const (
	cpuidExtMax      = 0x80000000
	cpuidExtFeatures = 0x80000001
	cpuidAddrSizes   = 0x80000008
	cpuidExtended    = 0x7

	extFeatureNX      = 1 << 20
	extFeaturePage1GB = 1 << 26
	extFeatureLM      = 1 << 29

	featureLA57 = 1 << 16
)

// CR4 bits.
const (
	CR4PAE  = 1 << 5
	CR4PGE  = 1 << 7
	CR4LA57 = 1 << 12
)

// DecodeFeatures queries cpuid for the paging features.
func DecodeFeatures(cpuid CPUIDFunc) Features {
	f := Features{PhysicalBits: 36, VirtualBits: 32}
	maxStd, _, _, _ := cpuid(0, 0)
	if maxStd >= cpuidExtended {
		_, _, ecx, _ := cpuid(cpuidExtended, 0)
		f.LA57 = ecx&featureLA57 != 0
	}
	maxExt, _, _, _ := cpuid(cpuidExtMax, 0)
	if maxExt < cpuidExtFeatures {
		return f
	}
	_, _, _, edx := cpuid(cpuidExtFeatures, 0)
	f.NX = edx&extFeatureNX != 0
	f.Pages1G = edx&extFeaturePage1GB != 0
	if edx&extFeatureLM != 0 {
		f.VirtualBits = 48
	}
	if maxExt < cpuidAddrSizes {
		return f
	}
	eax, _, _, _ := cpuid(cpuidAddrSizes, 0)
	f.PhysicalBits = uint8(eax & 0xff)
	f.VirtualBits = uint8((eax >> 8) & 0xff)
	return f
}

// FiveLevelPaging reports whether cr4 enables five-level paging.
func FiveLevelPaging(cr4 uint64) bool {
	return cr4&CR4LA57 != 0
}
