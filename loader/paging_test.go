// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"

	"eliasnaur.com/efiboot/bootinfo"
	"eliasnaur.com/efiboot/paging"
	"eliasnaur.com/efiboot/uefi"
	"eliasnaur.com/efiboot/uefi/uefitest"
)

func TestTableAllocator(t *testing.T) {
	f := uefitest.New()
	f.Install(t)
	a := new(tableAllocator)
	var tables []paging.PhysAddr
	for range tableChunkPages + 1 {
		addr, err := a.AllocTable()
		if err != nil {
			t.Fatal(err)
		}
		if !addr.IsAligned(uint64(paging.PageSize4K)) || translate(addr) == nil {
			t.Fatalf("unusable table %v", addr)
		}
		tables = append(tables, addr)
	}
	if n := len(f.Allocations(uefi.LoaderData)); n != 2 {
		t.Errorf("%d chunks, want 2", n)
	}
	last := tables[len(tables)-1]
	a.FreeTable(last)
	if addr, _ := a.AllocTable(); addr != last {
		t.Errorf("freed table not reused: got %v, want %v", addr, last)
	}
	if a.used != tableChunkPages+1 {
		t.Errorf("%d tables in use, want %d", a.used, tableChunkPages+1)
	}
	if err := a.Free(); err != nil {
		t.Fatal(err)
	}
	if n := len(f.Allocations(uefi.LoaderData)); n != 0 {
		t.Errorf("%d chunks after Free", n)
	}
}

func TestTableAllocatorLeak(t *testing.T) {
	f := uefitest.New()
	f.Install(t)
	a := new(tableAllocator)
	if _, err := a.AllocTable(); err != nil {
		t.Fatal(err)
	}
	a.Leak()
	if err := a.Free(); err != nil {
		t.Fatal(err)
	}
	if n := len(f.Allocations(uefi.LoaderData)); n != 1 {
		t.Errorf("%d chunks after leak and free, want 1", n)
	}
}

func TestCopyLowerHalf(t *testing.T) {
	f := uefitest.New()
	f.Install(t)
	active, err := uefi.AllocatePages(1, uefi.BootServicesData)
	if err != nil {
		t.Fatal(err)
	}
	table := translate(paging.PhysAddr(active.Addr()))
	for i := range table {
		table[i] = paging.Entry(0x7000 | i<<12 | 0x3)
	}
	cpu := NewMockCPU(gomock.NewController(t))
	// The active root carries PCID bits.
	cpu.EXPECT().RootTable().Return(active.Addr() | 0x18)

	l := &Loader{cpu: cpu, tables: new(tableAllocator)}
	l.mapper = paging.NewMapper(l.tables, translate)
	if l.root, err = l.mapper.NewRoot(false); err != nil {
		t.Fatal(err)
	}
	if err := l.copyLowerHalf(); err != nil {
		t.Fatal(err)
	}
	root := translate(l.root.Addr())
	for i, e := range root {
		want := paging.Entry(0)
		if i < paging.EntriesPerTable/2 {
			want = table[i]
		}
		if e != want {
			t.Fatalf("entry %d: got %#x, want %#x", i, e, want)
		}
	}
}

func TestVerifyPageTables(t *testing.T) {
	f := uefitest.New()
	f.Install(t)
	var out bytes.Buffer
	l := &Loader{log: NewLogger(&out), tables: new(tableAllocator)}
	l.log.SetLevel(logrus.DebugLevel)
	l.mapper = paging.NewMapper(l.tables, translate)
	var err error
	if l.root, err = l.mapper.NewRoot(false); err != nil {
		t.Fatal(err)
	}
	mapPages := func(va, pa, pages uint64, size paging.PageSize) {
		t.Helper()
		if err := l.mapper.Map(l.root, paging.VA48(va), paging.PhysAddr(pa), size, pages); err != nil {
			t.Fatal(err)
		}
	}
	mapPages(bootinfo.KernelVirtualStart, 0x200000, 2, paging.PageSize4K)
	mapPages(bootinfo.StackVirtualBottom, 0x300000, bootinfo.StackPages, paging.PageSize4K)
	mapPages(bootinfo.PhysicalMapStart4, 0, 4, paging.PageSize1G)
	// Identity mappings in the lower half are the firmware's.
	mapPages(0x200000, 0x200000, 1, paging.PageSize2M)
	if err := l.verifyPageTables(); err != nil {
		t.Fatalf("verifyPageTables: %v", err)
	}
	for _, want := range []string{"vaddr: 0xffffffff80000000", "vaddr: 0xffff800000000000"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("log lacks %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "vaddr: 0x200000 ") {
		t.Errorf("lower half logged:\n%s", out.String())
	}

	// Alias a kernel frame in the stack.
	mapPages(bootinfo.StackVirtualBottom-0x1000, 0x201000, 1, paging.PageSize4K)
	if err := l.verifyPageTables(); err == nil {
		t.Error("verifyPageTables accepted an aliased frame")
	}
}
