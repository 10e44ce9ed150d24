// SPDX-License-Identifier: Unlicense OR MIT

package elf

// LoadSegment returns the smallest range covering every LOAD segment
// with a non-zero memory size.
func (f *File) LoadSegment() (Segment, error) {
	phdrs, err := f.ProgramHeaders()
	if err != nil {
		return Segment{}, err
	}
	var seg Segment
	found := false
	for i := range phdrs {
		p := &phdrs[i]
		if !p.Loadable() {
			continue
		}
		if p.MemorySize < p.FileSize {
			return Segment{}, ErrInvalidProgramSegmentSize
		}
		end := p.VirtualAddress + p.MemorySize
		if end < p.VirtualAddress {
			return Segment{}, ErrInvalidProgramSegmentSize
		}
		if !found || p.VirtualAddress < seg.Start {
			seg.Start = p.VirtualAddress
		}
		if !found || end > seg.End {
			seg.End = end
		}
		found = true
	}
	if !found {
		return Segment{}, ErrNoLoadProgramSegments
	}
	return seg, nil
}

// LoadTo copies every LOAD segment into dst, which represents the
// range returned by LoadSegment. File bytes are copied to their offset
// from the start of that range and the remainder of each segment's
// memory size is zeroed. Bytes outside any segment are not touched.
func (f *File) LoadTo(dst []byte) error {
	seg, err := f.LoadSegment()
	if err != nil {
		return err
	}
	if uint64(len(dst)) < seg.Len() {
		return ErrDestinationTooSmall
	}
	phdrs, err := f.ProgramHeaders()
	if err != nil {
		return err
	}
	for i := range phdrs {
		p := &phdrs[i]
		if !p.Loadable() {
			continue
		}
		fileEnd := p.Offset + p.FileSize
		if fileEnd < p.Offset || fileEnd > uint64(len(f.src)) {
			return ErrSourceTooSmall
		}
		off := p.VirtualAddress - seg.Start
		n := copy(dst[off:off+p.FileSize], f.src[p.Offset:fileEnd])
		zero := dst[off+uint64(n) : off+p.MemorySize]
		for j := range zero {
			zero[j] = 0
		}
	}
	return nil
}
