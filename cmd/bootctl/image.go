// SPDX-License-Identifier: Unlicense OR MIT

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"eliasnaur.com/efiboot/loader"
)

// image is a kernel file mapped read-only.
type image struct {
	path   string
	data   []byte
	kernel *loader.Kernel
}

// openImage maps path and validates it as a kernel.
func openImage(path string) (*image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%s: %w: empty file", path, loader.ErrInvalidKernel)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%s: mmap: %w", path, err)
	}
	k, err := loader.ValidateKernel(data)
	if err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &image{path: path, data: data, kernel: k}, nil
}

func (img *image) Close() error {
	if img.data == nil {
		return nil
	}
	err := unix.Munmap(img.data)
	img.data = nil
	return err
}
