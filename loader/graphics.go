// SPDX-License-Identifier: Unlicense OR MIT

package loader

import (
	"fmt"

	"eliasnaur.com/efiboot/bootinfo"
	"eliasnaur.com/efiboot/uefi"
)

// setupGraphics selects the mode closest to the configured resolution
// and records its framebuffer. Without RequireFramebuffer, missing
// graphics are not an error.
func (l *Loader) setupGraphics() error {
	gc := l.cfg.Graphics
	fail := func(err error) error {
		if gc.RequireFramebuffer {
			return fmt.Errorf("loader: graphics: %w", err)
		}
		l.log.Warnf("continuing without framebuffer: %v", err)
		return nil
	}
	g, err := uefi.LocateGraphicsOutput()
	if err != nil {
		return fail(err)
	}
	defer g.Close()
	if err := g.SetClosestResolution(gc.Width, gc.Height, gc.RequireFramebuffer); err != nil {
		return fail(err)
	}
	base, size, ok := g.FramebufferAddress()
	if !ok {
		return fail(uefi.ErrNotSupported)
	}
	cur := g.Current()
	l.args.Framebuffer = bootinfo.Framebuffer{
		Base:   base,
		Size:   size,
		Width:  cur.Width,
		Height: cur.Height,
		Stride: cur.Stride,
		Format: pixelFormat(cur.Format),
	}
	l.log.Infof("framebuffer: %dx%d %v at %#x", cur.Width, cur.Height, l.args.Framebuffer.Format, base)
	return nil
}

func pixelFormat(f uefi.PixelFormat) bootinfo.PixelFormat {
	switch f {
	case uefi.PixelRedGreenBlueReserved8BitPerColor:
		return bootinfo.PixelRGBX
	case uefi.PixelBlueGreenRedReserved8BitPerColor:
		return bootinfo.PixelBGRX
	case uefi.PixelBitMask:
		return bootinfo.PixelBitMask
	default:
		return bootinfo.PixelNone
	}
}
