// SPDX-License-Identifier: Unlicense OR MIT

package uefi

// GraphicsOutput is an opened graphics output protocol.
type GraphicsOutput struct {
	proto *Protocol
	gop   GraphicsOutputProtocol
}

// ModeInfo summarizes a graphics mode.
type ModeInfo struct {
	Width, Height uint32
	// Stride is the number of pixels per scan line.
	Stride uint32
	Format PixelFormat
}

// HasFramebuffer reports whether the mode exposes a linear
// framebuffer.
func (m ModeInfo) HasFramebuffer() bool {
	return m.Format != PixelBltOnly
}

// LocateGraphicsOutput opens the graphics output protocol on the
// first handle supporting it.
func LocateGraphicsOutput() (*GraphicsOutput, error) {
	hb, err := LocateHandleBuffer(GraphicsOutputProtocolGUID)
	if err != nil {
		return nil, err
	}
	defer hb.Close()
	p, err := hb.Open(0)
	if err != nil {
		return nil, err
	}
	g, err := NewGraphicsOutput(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	return g, nil
}

// NewGraphicsOutput wraps an opened graphics output protocol. The
// result takes ownership of p.
func NewGraphicsOutput(p *Protocol) (*GraphicsOutput, error) {
	if p.GUID() != GraphicsOutputProtocolGUID {
		return nil, invalidArgument("protocol")
	}
	gop, ok := p.Interface().(GraphicsOutputProtocol)
	if !ok {
		return nil, invalidArgument("protocol")
	}
	return &GraphicsOutput{proto: p, gop: gop}, nil
}

func (g *GraphicsOutput) Close() error {
	return g.proto.Close()
}

// Mode returns the current mode number.
func (g *GraphicsOutput) Mode() uint32 {
	return g.gop.Mode().Mode
}

// ModeCount returns the number of modes.
func (g *GraphicsOutput) ModeCount() uint32 {
	return g.gop.Mode().MaxMode
}

// Current describes the current mode.
func (g *GraphicsOutput) Current() ModeInfo {
	return modeInfo(&g.gop.Mode().Info)
}

// FramebufferAddress returns the framebuffer base and size, if the
// current mode has one.
func (g *GraphicsOutput) FramebufferAddress() (base, size uint64, ok bool) {
	m := g.gop.Mode()
	if m.Info.PixelFormat == PixelBltOnly {
		return 0, 0, false
	}
	return m.FrameBufferBase, m.FrameBufferSize, true
}

// QueryMode describes mode.
func (g *GraphicsOutput) QueryMode(mode uint32) (ModeInfo, error) {
	info, st := g.gop.QueryMode(mode)
	switch st {
	case Success:
		return modeInfo(info), nil
	case InvalidParameter:
		return ModeInfo{}, invalidArgument("mode")
	default:
		return ModeInfo{}, statusError(st)
	}
}

// SetMode switches to mode. Setting the current mode does nothing.
func (g *GraphicsOutput) SetMode(mode uint32) error {
	if mode == g.Mode() {
		return nil
	}
	switch st := g.gop.SetMode(mode); st {
	case Success:
		return nil
	case Unsupported:
		return invalidArgument("mode")
	default:
		return statusError(st)
	}
}

// SetResolution switches to a mode of exactly width by height.
func (g *GraphicsOutput) SetResolution(width, height uint32, requireFramebuffer bool) error {
	for mode := uint32(0); mode < g.ModeCount(); mode++ {
		info, err := g.QueryMode(mode)
		if err != nil {
			return err
		}
		if requireFramebuffer && !info.HasFramebuffer() {
			continue
		}
		if info.Width == width && info.Height == height {
			return g.SetMode(mode)
		}
	}
	return ErrNotSupported
}

// SetClosestResolution switches to the mode minimizing the sum of the
// width and height differences to width by height.
func (g *GraphicsOutput) SetClosestResolution(width, height uint32, requireFramebuffer bool) error {
	best, bestScore := -1, int64(0)
	for mode := uint32(0); mode < g.ModeCount(); mode++ {
		info, err := g.QueryMode(mode)
		if err != nil {
			return err
		}
		if requireFramebuffer && !info.HasFramebuffer() {
			continue
		}
		score := abs(int64(width)-int64(info.Width)) + abs(int64(height)-int64(info.Height))
		if best == -1 || score < bestScore {
			best, bestScore = int(mode), score
		}
		if score == 0 {
			break
		}
	}
	if best == -1 {
		return ErrNotSupported
	}
	return g.SetMode(uint32(best))
}

// Maximize switches to the mode with the most pixels.
func (g *GraphicsOutput) Maximize(requireFramebuffer bool) error {
	best, largest := -1, uint64(0)
	for mode := uint32(0); mode < g.ModeCount(); mode++ {
		info, err := g.QueryMode(mode)
		if err != nil {
			return err
		}
		if requireFramebuffer && !info.HasFramebuffer() {
			continue
		}
		if px := uint64(info.Width) * uint64(info.Height); best == -1 || px > largest {
			best, largest = int(mode), px
		}
	}
	if best == -1 {
		return ErrNotSupported
	}
	return g.SetMode(uint32(best))
}

// Fill fills the screen with a solid color.
func (g *GraphicsOutput) Fill(c BltPixel) error {
	cur := g.Current()
	px := []BltPixel{c}
	if st := g.gop.Blt(px, BltVideoFill, 0, 0, 0, 0, uint64(cur.Width), uint64(cur.Height), 0); st != Success {
		return statusError(st)
	}
	return nil
}

func modeInfo(info *ModeInformation) ModeInfo {
	return ModeInfo{
		Width:  info.HorizontalResolution,
		Height: info.VerticalResolution,
		Stride: info.PixelsPerScanLine,
		Format: info.PixelFormat,
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
