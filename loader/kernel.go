// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"errors"
	"fmt"

	"eliasnaur.com/efiboot/bootinfo"
	"eliasnaur.com/efiboot/elf"
	"eliasnaur.com/efiboot/paging"
	"eliasnaur.com/efiboot/uefi"
)

var (
	ErrInvalidKernel  = errors.New("loader: kernel binary is not valid")
	ErrKernelReturned = errors.New("loader: kernel returned")
)

// Kernel is a validated kernel image.
type Kernel struct {
	File   *elf.File
	Header elf.Header
	// Segment spans the LOAD segments.
	Segment elf.Segment
	// Base is the page aligned virtual address the image is mapped
	// at.
	Base uint64
}

// ValidateKernel checks that image is a little endian x86_64 ELF
// executable linked in the kernel's part of the higher half.
func ValidateKernel(image []byte) (*Kernel, error) {
	f := elf.New(image)
	id, err := f.IdentityHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKernel, err)
	}
	if !id.Valid() {
		return nil, ErrInvalidKernel
	}
	if id.Data != elf.HostData() {
		return nil, fmt.Errorf("%w: data encoding %d does not match the processor", ErrInvalidKernel, id.Data)
	}
	if id.Class != elf.Class64 {
		return nil, fmt.Errorf("%w: class %d is not 64-bit", ErrInvalidKernel, id.Class)
	}
	hdr, err := f.Header()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKernel, err)
	}
	if hdr.Type != elf.ObjectExecutable {
		return nil, fmt.Errorf("%w: object type %d is not an executable", ErrInvalidKernel, hdr.Type)
	}
	if hdr.Machine != elf.MachineX86_64 {
		return nil, fmt.Errorf("%w: machine %v", ErrInvalidKernel, hdr.Machine)
	}
	seg, err := f.LoadSegment()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKernel, err)
	}
	base := paging.AlignDown(seg.Start, uint64(paging.PageSize4K))
	if base < bootinfo.KernelVirtualStart {
		return nil, fmt.Errorf("%w: segments start at %#x, below %#x", ErrInvalidKernel, seg.Start, uint64(bootinfo.KernelVirtualStart))
	}
	if hdr.Entry < seg.Start || hdr.Entry >= seg.End {
		return nil, fmt.Errorf("%w: entry %#x outside [%#x, %#x)", ErrInvalidKernel, hdr.Entry, seg.Start, seg.End)
	}
	return &Kernel{File: f, Header: hdr, Segment: seg, Base: base}, nil
}

// Len returns the size of the mapped image.
func (k *Kernel) Len() uint64 {
	return k.Segment.End - k.Base
}

// Pages returns the number of 4 KiB frames holding the image.
func (k *Kernel) Pages() uint64 {
	return paging.Pages(k.Len())
}

// LoadTo copies the segments to dst, which is mapped at Base. Gaps
// between segments are zeroed.
func (k *Kernel) LoadTo(dst []byte) error {
	if uint64(len(dst)) < k.Len() {
		return elf.ErrDestinationTooSmall
	}
	clear(dst)
	return k.File.LoadTo(dst[k.Segment.Start-k.Base:])
}

func readFile(vol *uefi.Volume, path string) ([]byte, error) {
	n, err := vol.OpenNode(path, true, false)
	if err != nil {
		return nil, err
	}
	defer n.Close()
	return n.ReadToEnd(nil)
}

func (l *Loader) loadKernel(vol *uefi.Volume) error {
	image, err := readFile(vol, l.cfg.Kernel)
	if err != nil {
		return fmt.Errorf("loader: reading kernel: %w", err)
	}
	k, err := ValidateKernel(image)
	if err != nil {
		return err
	}
	pages, err := uefi.AllocatePages(k.Pages(), bootinfo.UEFIKernel)
	if err != nil {
		return fmt.Errorf("loader: allocating %d kernel pages: %w", k.Pages(), err)
	}
	l.kernelPages = pages
	dst, err := pages.Bytes()
	if err != nil {
		return err
	}
	if err := k.LoadTo(dst); err != nil {
		return err
	}
	l.kernel = k
	l.args.MemoryInfo.KernelStart = pages.Addr()
	l.args.MemoryInfo.KernelLen = k.Len()
	l.log.Infof("kernel: %d bytes at %#x, entry %#x", k.Len(), pages.Addr(), k.Header.Entry)
	return nil
}

func (l *Loader) loadInitial(vol *uefi.Volume) error {
	if l.cfg.Initial == "" {
		return nil
	}
	data, err := readFile(vol, l.cfg.Initial)
	switch {
	case uefi.IsNotExist(err):
		l.log.Infof("no initial image at %s", l.cfg.Initial)
		return nil
	case err != nil:
		return fmt.Errorf("loader: reading initial image: %w", err)
	case len(data) == 0:
		return nil
	}
	pages, err := uefi.AllocateBytes(uint64(len(data)), bootinfo.UEFIInitial)
	if err != nil {
		return fmt.Errorf("loader: allocating initial image: %w", err)
	}
	l.initialPages = pages
	dst, err := pages.Bytes()
	if err != nil {
		return err
	}
	copy(dst, data)
	l.args.Initial = bootinfo.Extent{Start: pages.Addr(), Len: uint64(len(data))}
	l.log.Infof("initial image: %d bytes at %#x", len(data), pages.Addr())
	return nil
}
