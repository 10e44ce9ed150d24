// SPDX-License-Identifier: Unlicense OR MIT

//go:build tamago && amd64

// Command loader is the UEFI application that loads the kernel.
//
// Board setup, the runtime heap reservation and the image entry point
// come from go-boot's x64 package. Build with the TamaGo compiler and
// convert the result to a PE32+ image:
//
//	GOOS=tamago GOARCH=amd64 tamago-go build \
//		-tags linkcpuinit,linkramsize,linkramstart,linkprintk \
//		-ldflags "-T 0x10010000 -E cpuinit -R 0x1000" -o loader.elf ./cmd/loader
//	objcopy --target efi-app-x86_64 loader.elf BOOTX64.EFI
package main

import (
	"io"
	_ "unsafe"

	"github.com/usbarmory/go-boot/uefi/x64"
	"github.com/usbarmory/tamago/soc/intel/uart"

	"eliasnaur.com/efiboot/efi"
	"eliasnaur.com/efiboot/loader"
	"eliasnaur.com/efiboot/uefi"
	"eliasnaur.com/efiboot/x86"
)

// The entry arguments, saved by the x64 entry point.
//
//go:linkname imageHandle github.com/usbarmory/go-boot/uefi/x64.imageHandle
var imageHandle uint64

//go:linkname systemTable github.com/usbarmory/go-boot/uefi/x64.systemTable
var systemTable uint64

func main() {
	st, err := efi.New(systemTable, x64.UEFI.Boot)
	if err != nil {
		fatal(err)
	}
	if err := uefi.Init(uefi.Handle(imageHandle), st); err != nil {
		fatal(err)
	}
	l := loader.New(x86.CPU{CPUID: x64.AMD64.CPUID}, loader.WithSerial(openSerial))
	l.Boot()
}

// openSerial returns the UART at the configured port. COM1 is the
// board console, already initialized.
func openSerial(cfg loader.DebugConfig) (io.Writer, error) {
	if cfg.Port == x64.COM1 {
		return x64.UART0, nil
	}
	u := &uart.UART{Index: 2, Base: cfg.Port}
	u.Init()
	return u, nil
}

func fatal(err error) {
	print("loader: ", err.Error(), "\n")
	x86.CPU{}.Halt()
}
