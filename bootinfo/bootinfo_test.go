// SPDX-License-Identifier: Unlicense OR MIT

package bootinfo

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestArgsLayout(t *testing.T) {
	if got := binary.Size(Args{}); got != ArgsSize {
		t.Fatalf("binary.Size(Args{}) = %d, want %d", got, ArgsSize)
	}
	if got := binary.Size(MemorySection{}); got != MemorySectionSize {
		t.Fatalf("binary.Size(MemorySection{}) = %d, want %d", got, MemorySectionSize)
	}
	a := NewArgs()
	a.MemoryMap = MemoryMapInfo{Addr: 0x5000, Len: 7, Cap: 13}
	a.MemoryInfo = MemoryInfo{KernelStart: 0x200000, KernelLen: 0x2000, StackStart: 0x300000, StackLen: StackSize}
	a.SystemInfo = SystemInfo{RSDT: 0x7fe0000, XSDT: 0x7fe1000}
	a.Debug.Enabled = true
	b, err := a.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != ArgsSize {
		t.Fatalf("encoded %d bytes", len(b))
	}
	le := binary.LittleEndian
	if v := le.Uint32(b); v != CurrentVersion {
		t.Errorf("version %d, want %d", v, CurrentVersion)
	}
	fields := []struct {
		name string
		off  int
		want uint64
	}{
		{"memory map", 8, 0x5000},
		{"memory map len", 16, 7},
		{"kernel start", 32, 0x200000},
		{"stack len", 56, StackSize},
		{"rsdt", 64, 0x7fe0000},
		{"xsdt", 72, 0x7fe1000},
	}
	for _, f := range fields {
		if got := le.Uint64(b[f.off:]); got != f.want {
			t.Errorf("%s at %d: got %#x, want %#x", f.name, f.off, got, f.want)
		}
	}
	if b[136] != 1 || le.Uint16(b[138:]) != DefaultDebugPort || le.Uint16(b[140:]) != DefaultDebugBaudDivisor {
		t.Errorf("debug config % x", b[136:])
	}

	var got Args
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, &got, cmpopts.IgnoreUnexported(Args{}, DebugConfig{})); diff != "" {
		t.Errorf("decoded args (-want +got):\n%s", diff)
	}
	if got.IsOutdated() {
		t.Error("current args reported outdated")
	}
	if err := got.UnmarshalBinary(b[:10]); err == nil {
		t.Error("decoded truncated args")
	}
}

func TestLayoutConstants(t *testing.T) {
	if StackVirtualBottom != 0xffffffff7fffb000 {
		t.Errorf("stack bottom %#x", uint64(StackVirtualBottom))
	}
	start, size := PhysicalMap(4)
	if start+size != 0xffffc00000000000 {
		t.Errorf("four-level physical map ends at %#x", start+size)
	}
	start, size = PhysicalMap(5)
	if start+size != 0xff80000000000000 {
		t.Errorf("five-level physical map ends at %#x", start+size)
	}
}

func TestPhysicalMapSpan(t *testing.T) {
	for _, test := range []struct {
		levels      int
		start, size uint64
	}{
		{4, 0xffff800000000000, 64 << 40},
		{5, 0xff00000000000000, 4 << 50},
	} {
		start, size := PhysicalMapSpan(test.levels)
		if start != test.start || size != test.size {
			t.Errorf("PhysicalMapSpan(%d): got %#x+%#x, wanted %#x+%#x", test.levels, start, size, test.start, test.size)
		}
	}
}
