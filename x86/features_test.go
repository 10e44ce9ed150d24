// SPDX-License-Identifier: Unlicense OR MIT

package x86

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type leaf struct {
	eax, ebx, ecx, edx uint32
}

func fakeCPUID(leaves map[uint32]leaf) CPUIDFunc {
	return func(l, sub uint32) (eax, ebx, ecx, edx uint32) {
		r := leaves[l]
		return r.eax, r.ebx, r.ecx, r.edx
	}
}

func TestDecodeFeatures(t *testing.T) {
	tests := []struct {
		name   string
		leaves map[uint32]leaf
		want   Features
	}{
		{
			name: "no extended leaves",
			leaves: map[uint32]leaf{
				0: {eax: 1},
			},
			want: Features{PhysicalBits: 36, VirtualBits: 32},
		},
		{
			name: "long mode without address sizes",
			leaves: map[uint32]leaf{
				0:          {eax: 1},
				0x80000000: {eax: 0x80000001},
				0x80000001: {edx: extFeatureLM | extFeatureNX},
			},
			want: Features{NX: true, PhysicalBits: 36, VirtualBits: 48},
		},
		{
			name: "five level capable",
			leaves: map[uint32]leaf{
				0:          {eax: 0xd},
				7:          {ecx: featureLA57},
				0x80000000: {eax: 0x80000008},
				0x80000001: {edx: extFeatureLM | extFeatureNX | extFeaturePage1GB},
				0x80000008: {eax: 57<<8 | 52},
			},
			want: Features{Pages1G: true, NX: true, LA57: true, PhysicalBits: 52, VirtualBits: 57},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := DecodeFeatures(fakeCPUID(test.leaves))
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("features (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFiveLevelPaging(t *testing.T) {
	if FiveLevelPaging(CR4PAE | CR4PGE) {
		t.Error("LA57 reported without CR4.LA57")
	}
	if !FiveLevelPaging(CR4PAE | CR4LA57) {
		t.Error("CR4.LA57 not detected")
	}
}
