// SPDX-License-Identifier: Unlicense OR MIT

package uefitest

import "eliasnaur.com/efiboot/uefi"

type graphicsOutput struct {
	f *Firmware
}

func (g *graphicsOutput) QueryMode(mode uint32) (*uefi.ModeInformation, uefi.Status) {
	if int(mode) >= len(g.f.Modes) {
		return nil, uefi.InvalidParameter
	}
	info := g.f.Modes[mode]
	return &info, uefi.Success
}

func (g *graphicsOutput) SetMode(mode uint32) uefi.Status {
	g.f.Calls.SetMode++
	if int(mode) >= len(g.f.Modes) {
		return uefi.Unsupported
	}
	g.f.setMode(mode)
	return uefi.Success
}

func (g *graphicsOutput) Blt(buf []uefi.BltPixel, op uefi.BltOperation, srcX, srcY, dstX, dstY, width, height, delta uint64) uefi.Status {
	g.f.Calls.Blt++
	if op != uefi.BltVideoFill || len(buf) == 0 {
		return uefi.Unsupported
	}
	info := g.f.mode.Info
	if dstX+width > uint64(info.HorizontalResolution) || dstY+height > uint64(info.VerticalResolution) {
		return uefi.InvalidParameter
	}
	g.f.Fill = buf[0]
	return uefi.Success
}

func (g *graphicsOutput) Mode() *uefi.GraphicsMode {
	return &g.f.mode
}

func (f *Firmware) setMode(mode uint32) {
	info := f.Modes[mode]
	f.mode = uefi.GraphicsMode{
		MaxMode: uint32(len(f.Modes)),
		Mode:    mode,
		Info:    info,
	}
	if info.PixelFormat != uefi.PixelBltOnly {
		f.mode.FrameBufferBase = FramebufferBase
		f.mode.FrameBufferSize = uint64(info.PixelsPerScanLine) * uint64(info.VerticalResolution) * 4
	}
}
