// SPDX-License-Identifier: Unlicense OR MIT

// Package loader boots an ELF kernel from the UEFI boot volume. It
// loads the kernel, builds the kernel's page tables, converts the
// firmware memory map, exits boot services and jumps to the kernel
// with a bootinfo.Args.
package loader

import (
	"fmt"
	"io"

	"eliasnaur.com/efiboot/bootinfo"
	"eliasnaur.com/efiboot/paging"
	"eliasnaur.com/efiboot/uefi"
	"github.com/sirupsen/logrus"
)

// Loader drives a single boot. The uefi package must be initialized
// before Run.
type Loader struct {
	cpu    CPU
	log    *logrus.Logger
	serial SerialOpener
	cfg    *Config
	state  State

	args   *bootinfo.Args
	kernel *Kernel

	kernelPages  *uefi.MemoryPages
	stackPages   *uefi.MemoryPages
	initialPages *uefi.MemoryPages
	argsPage     *uefi.MemoryPages
	mapPages     *uefi.MemoryPages

	tables *tableAllocator
	mapper *paging.Mapper
	root   paging.RootTable
}

type Option func(l *Loader)

// WithLogger replaces the console logger.
func WithLogger(log *logrus.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// SerialOpener opens the debug serial port described by cfg. The
// writer must keep working after boot services exit.
type SerialOpener func(cfg DebugConfig) (io.Writer, error)

// WithSerial mirrors log output to the serial port when debugging is
// enabled.
func WithSerial(open SerialOpener) Option {
	return func(l *Loader) {
		l.serial = open
	}
}

// WithConfig skips reading the configuration file.
func WithConfig(cfg Config) Option {
	return func(l *Loader) {
		l.cfg = &cfg
	}
}

func New(cpu CPU, opts ...Option) *Loader {
	l := &Loader{cpu: cpu}
	for _, o := range opts {
		o(l)
	}
	return l
}

// State returns the boot progress.
func (l *Loader) State() State {
	return l.state
}

// Boot runs the boot and halts if it fails.
func (l *Loader) Boot() {
	err := l.Run()
	defer l.cpu.Halt()
	l.log.Panicf("boot failed: %v", err)
}

// Run boots the kernel. It returns only on failure; if the kernel
// entry returns, the error is ErrKernelReturned.
func (l *Loader) Run() error {
	if l.state != StateInit {
		return fmt.Errorf("loader: already run (%v)", l.state)
	}
	if l.log == nil {
		out, err := uefi.ConOut()
		if err != nil {
			l.log = NewLogger(io.Discard)
			return err
		}
		l.log = NewLogger(out)
	}
	if ok, err := uefi.BootServicesAvailable(); err != nil {
		return err
	} else if !ok {
		return uefi.ErrBootServicesUnavailable
	}
	defer l.release()
	vol, err := uefi.VolumeContainingImage()
	if err != nil {
		return fmt.Errorf("loader: boot volume: %w", err)
	}
	defer vol.Close()
	if l.cfg == nil {
		cfg, err := loadConfig(vol)
		if err != nil {
			return err
		}
		l.cfg = &cfg
	}
	if l.cfg.Debug.Enabled && l.serial != nil {
		w, err := l.serial(l.cfg.Debug)
		if err != nil {
			return fmt.Errorf("loader: serial port %#x: %w", l.cfg.Debug.Port, err)
		}
		l.log.AddHook(newSerialHook(w))
		l.log.SetLevel(logrus.DebugLevel)
	}
	l.args = bootinfo.NewArgs()
	l.args.Debug = l.cfg.Debug.bootinfo()
	if err := l.setupGraphics(); err != nil {
		return err
	}
	if err := l.advance(StateFirmwareReady); err != nil {
		return err
	}

	if err := l.loadKernel(vol); err != nil {
		return err
	}
	if err := l.loadInitial(vol); err != nil {
		return err
	}
	// Closing protocols may change the memory map, so do it before
	// the final harvest.
	if err := vol.Close(); err != nil {
		return err
	}
	if err := l.advance(StateKernelLoaded); err != nil {
		return err
	}

	if err := l.buildPageTables(); err != nil {
		return err
	}
	// The firmware may run on the new tables from here on; they must
	// never be returned to it.
	l.tables.Leak()
	l.cpu.SetRootTable(l.root.CR3())
	if err := l.findSystemTables(); err != nil {
		return err
	}
	if l.argsPage, err = uefi.AllocatePages(1, uefi.LoaderData); err != nil {
		return fmt.Errorf("loader: allocating args: %w", err)
	}
	l.log.Infof("exiting boot services")
	key, err := l.finalMemoryMap()
	if err != nil {
		return err
	}
	l.leak()
	if err := l.advance(StateMemoryMapped); err != nil {
		return err
	}

	if err := uefi.ExitBootServices(key); err != nil {
		return fmt.Errorf("loader: exit boot services: %w", err)
	}
	// Firmware console output is invalid from here on.
	l.log.SetOutput(io.Discard)
	if err := l.advance(StateBootExited); err != nil {
		return err
	}
	if err := l.advance(StateTransferred); err != nil {
		return err
	}
	l.cpu.Enter(l.kernel.Header.Entry, bootinfo.StackVirtualTop, l.argsPage.Addr())
	return ErrKernelReturned
}

// leak hands the loader's allocations over to the kernel.
func (l *Loader) leak() {
	for _, p := range l.pages() {
		p.Leak()
	}
	l.tables.Leak()
}

// release frees whatever was not handed over.
func (l *Loader) release() {
	for _, p := range l.pages() {
		if err := p.Free(); err != nil {
			l.log.Warnf("freeing %d pages at %#x: %v", p.Len(), p.Addr(), err)
		}
	}
	if l.tables != nil {
		if err := l.tables.Free(); err != nil {
			l.log.Warnf("freeing page tables: %v", err)
		}
	}
}

func (l *Loader) pages() []*uefi.MemoryPages {
	var ps []*uefi.MemoryPages
	for _, p := range []*uefi.MemoryPages{l.kernelPages, l.stackPages, l.initialPages, l.argsPage, l.mapPages} {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return ps
}

func loadConfig(vol *uefi.Volume) (Config, error) {
	data, err := readFile(vol, ConfigPath)
	switch {
	case uefi.IsNotExist(err):
		return DefaultConfig(), nil
	case err != nil:
		return Config{}, fmt.Errorf("loader: reading %s: %w", ConfigPath, err)
	}
	return ParseConfig(data)
}
