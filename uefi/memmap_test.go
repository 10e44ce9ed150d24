// SPDX-License-Identifier: Unlicense OR MIT

package uefi_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"eliasnaur.com/efiboot/uefi"
	"eliasnaur.com/efiboot/uefi/uefitest"
)

// growingFirmware reports a growing memory map size before letting
// the underlying firmware answer.
type growingFirmware struct {
	*uefitest.Firmware
	growth *growingMap
}

type growingMap struct {
	uefi.BootServices
	sizes []uint64
	calls int
}

func (g *growingFirmware) BootServices() uefi.BootServices {
	if g.Firmware.BootServices() == nil {
		return nil
	}
	return g.growth
}

func (g *growingMap) GetMemoryMap(size *uint64, buf []byte, key, descSize *uint64, descVersion *uint32) uefi.Status {
	g.calls++
	if g.calls <= len(g.sizes) {
		*size = g.sizes[g.calls-1]
		return uefi.BufferTooSmall
	}
	return g.BootServices.GetMemoryMap(size, buf, key, descSize, descVersion)
}

func TestMemoryMapGrowth(t *testing.T) {
	for k := 0; k <= 4; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			f := uefitest.New()
			var sizes []uint64
			for i := 0; i < k; i++ {
				sizes = append(sizes, 400+48*uint64(i))
			}
			gm := &growingMap{BootServices: f, sizes: sizes}
			uefi.ResetForTesting()
			defer uefi.ResetForTesting()
			if err := uefi.Init(uefitest.ImageHandle, &growingFirmware{Firmware: f, growth: gm}); err != nil {
				t.Fatal(err)
			}
			mm, err := uefi.GetMemoryMap()
			if err != nil {
				t.Fatal(err)
			}
			want := k + 1
			if k == 0 {
				// The first call with an empty buffer always fails.
				want = 2
			}
			if gm.calls != want {
				t.Errorf("%d GetMemoryMap calls, want %d", gm.calls, want)
			}
			if mm.Len() != len(f.MemoryMap()) {
				t.Errorf("%d descriptors, want %d", mm.Len(), len(f.MemoryMap()))
			}
		})
	}
}

// shrinkingMap answers BufferTooSmall without asking for more space.
type shrinkingMap struct {
	uefi.BootServices
}

func (shrinkingMap) GetMemoryMap(size *uint64, buf []byte, key, descSize *uint64, descVersion *uint32) uefi.Status {
	*size = uint64(len(buf))
	return uefi.BufferTooSmall
}

func TestMemoryMapNoProgress(t *testing.T) {
	f := uefitest.New()
	uefi.ResetForTesting()
	defer uefi.ResetForTesting()
	bad := &growingFirmware{Firmware: f}
	bad.growth = &growingMap{BootServices: shrinkingMap{f}}
	if err := uefi.Init(uefitest.ImageHandle, bad); err != nil {
		t.Fatal(err)
	}
	if _, err := uefi.GetMemoryMap(); err == nil {
		t.Fatal("GetMemoryMap succeeded with a firmware that never grows the size")
	}
}

func TestMemoryMapEntries(t *testing.T) {
	f := uefitest.New()
	f.DescriptorSize = 64
	f.Install(t)
	mm, err := uefi.GetMemoryMap()
	if err != nil {
		t.Fatal(err)
	}
	if mm.Stride() != 64 {
		t.Errorf("stride %d, want 64", mm.Stride())
	}
	entries, err := mm.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(f.MemoryMap(), entries); diff != "" {
		t.Errorf("memory map (-want +got):\n%s", diff)
	}
	if _, err := mm.Entry(mm.Len()); err == nil {
		t.Error("Entry past the end succeeded")
	}
}

func TestMemoryDescriptorLayout(t *testing.T) {
	d := uefi.MemoryDescriptor{
		Type:          uefi.ACPIReclaimMemory,
		PhysicalStart: 0x1000,
		VirtualStart:  0x2000,
		NumberOfPages: 3,
		Attribute:     0xf,
	}
	b, err := d.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	bo := binary.LittleEndian
	if got := bo.Uint32(b[0:]); got != uint32(uefi.ACPIReclaimMemory) {
		t.Errorf("type field %d", got)
	}
	if got := bo.Uint64(b[8:]); got != 0x1000 {
		t.Errorf("physical start field %#x", got)
	}
	if got := bo.Uint64(b[24:]); got != 3 {
		t.Errorf("page count field %d", got)
	}
	if d.PhysicalEnd() != 0x4000 {
		t.Errorf("PhysicalEnd = %#x, want 0x4000", d.PhysicalEnd())
	}
}
