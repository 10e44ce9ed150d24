// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"

	"eliasnaur.com/efiboot/bootinfo"
	"eliasnaur.com/efiboot/elf/elftest"
	"eliasnaur.com/efiboot/paging"
	"eliasnaur.com/efiboot/uefi"
	"eliasnaur.com/efiboot/uefi/uefitest"
	"eliasnaur.com/efiboot/x86"
)

const kernelPath = "boot/system/kernel"

type bootTest struct {
	t   *testing.T
	fw  *uefitest.Firmware
	cpu *MockCPU
	cr3 uint64
	// entered records the arguments of the kernel jump.
	entered []uint64
}

func testKernel() []byte {
	return elftest.Executable(kernelBase, elftest.Segment{
		VirtualAddress: kernelBase,
		Data:           nops(0x1000),
		MemorySize:     0x2000,
	})
}

func graphicsMode(w, h uint32) uefi.ModeInformation {
	return uefi.ModeInformation{
		HorizontalResolution: w,
		VerticalResolution:   h,
		PixelFormat:          uefi.PixelBlueGreenRedReserved8BitPerColor,
		PixelsPerScanLine:    w,
	}
}

// newBootTest installs a firmware serving files. The setup functions
// run before installation.
func newBootTest(t *testing.T, files fstest.MapFS, features x86.Features, fiveLevel bool, setup ...func(fw *uefitest.Firmware)) *bootTest {
	t.Helper()
	fw := uefitest.New()
	fw.Volume = files
	fw.Modes = []uefi.ModeInformation{graphicsMode(800, 600), graphicsMode(1280, 720), graphicsMode(1920, 1080)}
	for _, f := range setup {
		f(fw)
	}
	fw.Install(t)
	bt := &bootTest{t: t, fw: fw, cpu: NewMockCPU(gomock.NewController(t))}
	bt.cpu.EXPECT().Features().Return(features).AnyTimes()
	bt.cpu.EXPECT().FiveLevelPaging().Return(fiveLevel).AnyTimes()
	bt.cpu.EXPECT().RootTable().Return(uint64(0)).AnyTimes()
	bt.cpu.EXPECT().SetRootTable(gomock.Any()).Do(func(cr3 uint64) {
		bt.cr3 = cr3
	}).AnyTimes()
	return bt
}

// expectEnter expects a single jump to the kernel.
func (bt *bootTest) expectEnter() {
	bt.cpu.EXPECT().Enter(gomock.Any(), gomock.Any(), gomock.Any()).Do(func(entry, stack, args uint64) {
		if !bt.fw.Exited() {
			bt.t.Error("kernel entered before exiting boot services")
		}
		bt.entered = []uint64{entry, stack, args}
	})
}

func (bt *bootTest) run(opts ...Option) *Loader {
	bt.t.Helper()
	l := New(bt.cpu, opts...)
	if err := l.Run(); !errors.Is(err, ErrKernelReturned) {
		bt.t.Fatalf("Run: %v", err)
	}
	return l
}

func (bt *bootTest) args() *bootinfo.Args {
	bt.t.Helper()
	if len(bt.entered) == 0 {
		bt.t.Fatal("kernel not entered")
	}
	b, err := uefi.Memory(bt.entered[2], bootinfo.ArgsSize)
	if err != nil {
		bt.t.Fatal(err)
	}
	args := new(bootinfo.Args)
	if err := args.UnmarshalBinary(b); err != nil {
		bt.t.Fatal(err)
	}
	return args
}

func (bt *bootTest) memoryMap(args *bootinfo.Args) []bootinfo.MemorySection {
	bt.t.Helper()
	mm := args.MemoryMap
	b, err := uefi.Memory(mm.Addr, mm.Cap*bootinfo.MemorySectionSize)
	if err != nil {
		bt.t.Fatal(err)
	}
	m, err := bootinfo.DecodeMemoryMap(b, int(mm.Len))
	if err != nil {
		bt.t.Fatal(err)
	}
	return m.Sections()
}

// bootPanic runs Boot and returns the message it panicked with.
func bootPanic(t *testing.T, l *Loader) (msg string) {
	t.Helper()
	defer func() {
		switch r := recover().(type) {
		case nil:
			t.Error("Boot returned")
		case *logrus.Entry:
			msg = r.Message
		default:
			t.Errorf("Boot panicked with %v", r)
		}
	}()
	l.Boot()
	return ""
}

func section(secs []bootinfo.MemorySection, addr uint64) bootinfo.MemorySection {
	for _, s := range secs {
		if s.Start <= addr && addr < s.End() {
			return s
		}
	}
	return bootinfo.MemorySection{}
}

func TestBoot(t *testing.T) {
	bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, x86.Features{Pages1G: true}, false)
	bt.expectEnter()
	l := bt.run()
	fw := bt.fw

	if l.State() != StateTransferred {
		t.Errorf("state %v, want %v", l.State(), StateTransferred)
	}
	kernel := fw.Allocations(bootinfo.UEFIKernel)
	if len(kernel) != 1 || kernel[0].Pages != 2 {
		t.Fatalf("kernel allocations: %+v", kernel)
	}
	stack := fw.Allocations(bootinfo.UEFIKernelStack)
	if len(stack) != 1 || stack[0].Pages != bootinfo.StackPages {
		t.Fatalf("stack allocations: %+v", stack)
	}
	image, err := uefi.Memory(kernel[0].Addr, 0x2000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(image[:0x1000], nops(0x1000)) || !bytes.Equal(image[0x1000:], make([]byte, 0x1000)) {
		t.Error("kernel image not loaded")
	}

	if fw.Calls.ExitBootServices != 1 || len(fw.ExitKeys) != 1 || fw.ExitKeys[0] != fw.Key() {
		t.Errorf("ExitBootServices: %d calls, keys %v, current key %d", fw.Calls.ExitBootServices, fw.ExitKeys, fw.Key())
	}
	if want := []uint64{kernelBase, bootinfo.StackVirtualTop}; bt.entered[0] != want[0] || bt.entered[1] != want[1] {
		t.Errorf("entered %#x, want entry %#x and stack %#x", bt.entered, want[0], want[1])
	}
	if n := fw.OpenProtocols(); n != 0 {
		t.Errorf("%d protocols left open", n)
	}
	if fw.OutputAfterExit != 0 {
		t.Errorf("%d console writes after exit", fw.OutputAfterExit)
	}
	if !strings.Contains(fw.Console.String(), "exiting boot services") {
		t.Errorf("console output:\n%s", fw.Console.String())
	}

	if bt.cr3 != l.root.CR3() || l.root.IsPml5() {
		t.Errorf("installed root %#x, want 4-level root %v", bt.cr3, l.root)
	}
	walks := []struct {
		va   uint64
		size paging.PageSize
		pa   uint64
	}{
		{kernelBase, paging.PageSize4K, kernel[0].Addr},
		{kernelBase + 0x1000, paging.PageSize4K, kernel[0].Addr + 0x1000},
		{bootinfo.StackVirtualBottom, paging.PageSize4K, stack[0].Addr},
		{bootinfo.StackVirtualTop - 0x1000, paging.PageSize4K, stack[0].Addr + 0x4000},
		{bootinfo.PhysicalMapStart4, paging.PageSize1G, 0},
		{bootinfo.PhysicalMapStart4 + 3<<30, paging.PageSize1G, 3 << 30},
	}
	for _, w := range walks {
		va, err := paging.NewVA48(w.va)
		if err != nil {
			t.Fatal(err)
		}
		p, err := l.mapper.Walk(l.root, va)
		if err != nil {
			t.Fatal(err)
		}
		if p.Size != w.size || uint64(p.Addr) != w.pa {
			t.Errorf("walk %#x: got %v, want %s page at %#x", w.va, p, w.size, w.pa)
		}
	}
	for _, va := range []uint64{kernelBase + 0x2000, bootinfo.StackVirtualBottom - 0x1000} {
		v, _ := paging.NewVA48(va)
		if p, err := l.mapper.Walk(l.root, v); err != nil || p.Size != 0 {
			t.Errorf("walk %#x: got %v, %v, want unmapped", va, p, err)
		}
	}

	args := bt.args()
	if args.Version != bootinfo.CurrentVersion || args.IsOutdated() {
		t.Errorf("args version %d", args.Version)
	}
	if mi := args.MemoryInfo; mi.KernelStart != kernel[0].Addr || mi.KernelLen != 0x2000 ||
		mi.StackStart != stack[0].Addr || mi.StackLen != bootinfo.StackSize {
		t.Errorf("memory info: %+v", mi)
	}
	fb := args.Framebuffer
	if fb.Base != uefitest.FramebufferBase || fb.Width != 1280 || fb.Height != 720 || fb.Stride != 1280 || fb.Format != bootinfo.PixelBGRX {
		t.Errorf("framebuffer: %+v", fb)
	}
	if args.SystemInfo.UEFIRuntime != uefitest.RuntimeServicesAddr {
		t.Errorf("runtime services at %#x", args.SystemInfo.UEFIRuntime)
	}
	if args.Initial.Len != 0 {
		t.Errorf("initial image without a file: %+v", args.Initial)
	}
	if args.Debug != bootinfo.DefaultDebugConfig() {
		t.Errorf("debug config: %+v", args.Debug)
	}

	secs := bt.memoryMap(args)
	var total, fwTotal uint64
	for i, s := range secs {
		if i > 0 && s.Start < secs[i-1].End() {
			t.Errorf("section %v overlaps %v", s, secs[i-1])
		}
		total += s.Len
	}
	for _, d := range fw.MemoryMap() {
		fwTotal += d.NumberOfPages * uefi.PageSize
	}
	if total != fwTotal {
		t.Errorf("memory map covers %#x bytes, firmware %#x", total, fwTotal)
	}
	checks := []struct {
		addr uint64
		typ  bootinfo.MemoryType
	}{
		{kernel[0].Addr, bootinfo.Kernel},
		{stack[0].Addr, bootinfo.KernelStack},
		{bt.entered[2], bootinfo.BootReclaim},
		{args.MemoryMap.Addr, bootinfo.BootReclaim},
		{uint64(l.root.Addr()), bootinfo.BootReclaim},
		{uefitest.RuntimeServicesAddr, bootinfo.Firmware},
	}
	for _, c := range checks {
		if s := section(secs, c.addr); s.Type != c.typ {
			t.Errorf("section at %#x: got %v, want %v", c.addr, s, c.typ)
		}
	}
	if s := section(secs, kernel[0].Addr); s.Start != kernel[0].Addr || s.Len != 0x2000 {
		t.Errorf("kernel section %v", s)
	}
}

func TestBootMissingKernel(t *testing.T) {
	bt := newBootTest(t, fstest.MapFS{}, x86.Features{}, false)
	bt.cpu.EXPECT().Halt()
	l := New(bt.cpu)
	msg := bootPanic(t, l)
	if !strings.Contains(msg, `boot\system\kernel`) {
		t.Errorf("panic message %q does not name the kernel path", msg)
	}
	if bt.fw.Calls.ExitBootServices != 0 {
		t.Error("boot services exited")
	}
	if l.State() != StateFirmwareReady {
		t.Errorf("state %v", l.State())
	}
	if n := bt.fw.OpenProtocols(); n != 0 {
		t.Errorf("%d protocols left open", n)
	}
}

func TestBootInvalidKernel(t *testing.T) {
	image := append([]byte{0, 0, 0, 0}, testKernel()[4:]...)
	bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: image}}, x86.Features{}, false)
	bt.cpu.EXPECT().Halt()
	msg := bootPanic(t, New(bt.cpu))
	if !strings.Contains(msg, "kernel binary is not valid") {
		t.Errorf("panic message %q", msg)
	}
	if n := bt.fw.Calls.AllocatePages; n != 0 {
		t.Errorf("%d page allocations", n)
	}
	if bt.fw.Calls.ExitBootServices != 0 {
		t.Error("boot services exited")
	}
}

func TestBootFiveLevel(t *testing.T) {
	tests := []struct {
		name     string
		features x86.Features
		five     bool
		long     bool
	}{
		{"5-level 1G", x86.Features{Pages1G: true, LA57: true}, true, false},
		{"4-level 1G", x86.Features{Pages1G: true}, false, false},
		{"4-level 2M", x86.Features{}, false, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.long && testing.Short() {
				t.Skip("maps 64 TiB in 2 MiB pages")
			}
			bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, test.features, test.five)
			bt.expectEnter()
			l := bt.run()
			if l.root.IsPml5() != test.five {
				t.Fatalf("root %v", l.root)
			}
			size := paging.PageSize2M
			if test.features.Pages1G {
				size = paging.PageSize1G
			}
			start, span := bootinfo.PhysicalMapSpan(l.root.Levels())
			pages := span / uint64(size)
			stride := uint64(1)
			if testing.Short() || test.long {
				stride = 4093
			}
			check := func(k uint64) {
				va, err := paging.NewVirtualAddress(start+k*uint64(size), l.root.Levels())
				if err != nil {
					t.Fatal(err)
				}
				p, err := l.mapper.Walk(l.root, va)
				if err != nil {
					t.Fatal(err)
				}
				if p.Size != size || uint64(p.Addr) != k*uint64(size) {
					t.Fatalf("page %d: got %v", k, p)
				}
			}
			for k := uint64(0); k < pages; k += stride {
				check(k)
			}
			check(pages - 1)
			va, _ := paging.NewVirtualAddress(start+pages*uint64(size), l.root.Levels())
			if p, err := l.mapper.Walk(l.root, va); err != nil || p.Size != 0 {
				t.Errorf("past the physical map: got %v, %v", p, err)
			}
		})
	}
}

func TestBootACPI(t *testing.T) {
	rsdp1 := &uefi.RSDP{OEMID: "OLD", Revision: 0, RSDTAddress: 0x1000}
	rsdp2 := &uefi.RSDP{OEMID: "NEW", Revision: 2, RSDTAddress: 0x2000, XSDTAddress: 0x3000}
	tests := []struct {
		name       string
		add        func(fw *uefitest.Firmware)
		rsdt, xsdt uint64
	}{
		{"1.0 then 2.0", func(fw *uefitest.Firmware) { fw.AddRSDP(rsdp1); fw.AddRSDP(rsdp2) }, 0x2000, 0x3000},
		{"2.0 then 1.0", func(fw *uefitest.Firmware) { fw.AddRSDP(rsdp2); fw.AddRSDP(rsdp1) }, 0x2000, 0x3000},
		{"1.0 only", func(fw *uefitest.Firmware) { fw.AddRSDP(rsdp1) }, 0x1000, 0},
		{"corrupt 2.0", func(fw *uefitest.Firmware) {
			fw.AddRSDP(rsdp1)
			fw.AddTable(uefi.ACPI20TableGUID, []byte("RSD PTR garbage garbage garbage garbage"))
		}, 0x1000, 0},
		{"none", func(fw *uefitest.Firmware) {}, 0, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, x86.Features{Pages1G: true}, false)
			test.add(bt.fw)
			bt.expectEnter()
			bt.run()
			si := bt.args().SystemInfo
			if si.RSDT != test.rsdt || si.XSDT != test.xsdt {
				t.Errorf("got RSDT %#x XSDT %#x, want %#x %#x", si.RSDT, si.XSDT, test.rsdt, test.xsdt)
			}
		})
	}
}

func TestBootInitialImage(t *testing.T) {
	initial := bytes.Repeat([]byte("initial"), 1000)
	bt := newBootTest(t, fstest.MapFS{
		kernelPath:     {Data: testKernel()},
		"boot/initial": {Data: initial},
	}, x86.Features{Pages1G: true}, false)
	bt.expectEnter()
	bt.run()
	args := bt.args()
	allocs := bt.fw.Allocations(bootinfo.UEFIInitial)
	if len(allocs) != 1 || args.Initial.Start != allocs[0].Addr || args.Initial.Len != uint64(len(initial)) {
		t.Fatalf("initial image %+v, allocations %+v", args.Initial, allocs)
	}
	got, err := uefi.Memory(args.Initial.Start, args.Initial.Len)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, initial) {
		t.Error("initial image contents differ")
	}
	if s := section(bt.memoryMap(args), args.Initial.Start); s.Type != bootinfo.Initial {
		t.Errorf("initial image section %v", s)
	}
}

func TestBootConfigFile(t *testing.T) {
	bt := newBootTest(t, fstest.MapFS{
		"efi/kernel.elf": {Data: testKernel()},
		"boot/loader.toml": {Data: []byte(`kernel = 'efi\kernel.elf'
[graphics]
width = 1920
height = 1200
`)},
	}, x86.Features{Pages1G: true}, false)
	bt.expectEnter()
	bt.run()
	if fb := bt.args().Framebuffer; fb.Width != 1920 || fb.Height != 1080 {
		t.Errorf("framebuffer %dx%d, want closest mode 1920x1080", fb.Width, fb.Height)
	}
}

func TestBootBadConfigFile(t *testing.T) {
	bt := newBootTest(t, fstest.MapFS{
		kernelPath:         {Data: testKernel()},
		"boot/loader.toml": {Data: []byte("kernal = 'typo'\n")},
	}, x86.Features{}, false)
	l := New(bt.cpu)
	if err := l.Run(); err == nil || !strings.Contains(err.Error(), "kernal") {
		t.Errorf("Run: got %v", err)
	}
	if l.State() != StateInit {
		t.Errorf("state %v", l.State())
	}
}

func TestBootGraphics(t *testing.T) {
	t.Run("optional", func(t *testing.T) {
		bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, x86.Features{Pages1G: true}, false, func(fw *uefitest.Firmware) {
			fw.Modes = nil
		})
		bt.expectEnter()
		cfg := DefaultConfig()
		cfg.Graphics.RequireFramebuffer = false
		bt.run(WithConfig(cfg))
		if fb := bt.args().Framebuffer; fb != (bootinfo.Framebuffer{}) {
			t.Errorf("framebuffer without graphics: %+v", fb)
		}
	})
	t.Run("required", func(t *testing.T) {
		bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, x86.Features{}, false, func(fw *uefitest.Firmware) {
			fw.Modes = []uefi.ModeInformation{{HorizontalResolution: 640, VerticalResolution: 480, PixelFormat: uefi.PixelBltOnly}}
		})
		l := New(bt.cpu)
		if err := l.Run(); !errors.Is(err, uefi.ErrNotSupported) {
			t.Errorf("Run without framebuffer: got %v", err)
		}
		if bt.fw.Calls.AllocatePages != 0 {
			t.Error("allocated pages")
		}
	})
}

func TestBootKernelReturns(t *testing.T) {
	bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, x86.Features{Pages1G: true}, false)
	bt.expectEnter()
	bt.cpu.EXPECT().Halt()
	cfg := DefaultConfig()
	cfg.Debug.Enabled = true
	var serial bytes.Buffer
	var port uint16
	open := func(cfg DebugConfig) (io.Writer, error) {
		port = cfg.Port
		return &serial, nil
	}
	l := New(bt.cpu, WithConfig(cfg), WithSerial(open))
	msg := bootPanic(t, l)
	if !strings.Contains(msg, ErrKernelReturned.Error()) {
		t.Errorf("panic message %q", msg)
	}
	if port != bootinfo.DefaultDebugPort {
		t.Errorf("opened serial port %#x", port)
	}
	if !bt.args().Debug.Enabled {
		t.Error("debug config not passed on")
	}
	out := serial.String()
	for _, want := range []string{"exiting boot services", "kernel returned", "mapping vaddr: 0xffffffff80000000"} {
		if !strings.Contains(out, want) {
			t.Errorf("serial output lacks %q:\n%s", want, out)
		}
	}
	if bt.fw.OutputAfterExit != 0 {
		t.Errorf("%d console writes after exit", bt.fw.OutputAfterExit)
	}
}

func TestRunTwice(t *testing.T) {
	bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, x86.Features{Pages1G: true}, false)
	bt.expectEnter()
	l := bt.run()
	if err := l.Run(); err == nil {
		t.Error("second Run succeeded")
	}
}

func TestBootStaleMapKey(t *testing.T) {
	var fw *uefitest.Firmware
	bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, x86.Features{Pages1G: true}, false, func(f *uefitest.Firmware) {
		fw = f
		// Change the memory map between the final harvest and the
		// exit.
		f.BeforeExit = func() {
			var addr uint64
			if st := fw.AllocatePages(uefi.AllocateAnyPages, uefi.BootServicesData, 1, &addr); st != uefi.Success {
				t.Errorf("AllocatePages: %v", st)
			}
		}
	})
	bt.cpu.EXPECT().Halt()
	l := New(bt.cpu)
	msg := bootPanic(t, l)
	if !strings.Contains(msg, "exit boot services") {
		t.Errorf("panic message %q", msg)
	}
	if bt.fw.Exited() {
		t.Error("boot services exited with a stale key")
	}
	if got := l.State(); got != StateMemoryMapped {
		t.Errorf("state %v, want %v", got, StateMemoryMapped)
	}
	if bt.fw.Calls.ExitBootServices != 1 {
		t.Errorf("%d ExitBootServices calls, want 1", bt.fw.Calls.ExitBootServices)
	}
	if !strings.Contains(bt.fw.Console.String(), "boot failed") {
		t.Errorf("console lacks the failure message:\n%s", bt.fw.Console.String())
	}
}

func TestBootUnaddressableStack(t *testing.T) {
	bt := newBootTest(t, fstest.MapFS{kernelPath: {Data: testKernel()}}, x86.Features{Pages1G: true}, false, func(fw *uefitest.Firmware) {
		fw.Unbacked = []uefi.MemoryType{bootinfo.UEFIKernelStack}
	})
	l := New(bt.cpu)
	err := l.Run()
	if err == nil || !strings.Contains(err.Error(), "loader: stack") {
		t.Fatalf("Run: got %v, want a stack error", err)
	}
	if bt.fw.Exited() {
		t.Error("boot services exited")
	}
	if a := bt.fw.Allocations(bootinfo.UEFIKernelStack); len(a) != 0 {
		t.Errorf("stack pages not freed: %v", a)
	}
}
