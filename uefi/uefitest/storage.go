// SPDX-License-Identifier: Unlicense OR MIT

package uefitest

import (
	"io/fs"
	"path"
	"strings"
	"testing/fstest"

	"eliasnaur.com/efiboot/ucs2"
	"eliasnaur.com/efiboot/uefi"
)

type fileSystem struct {
	f *Firmware
}

func (s *fileSystem) OpenVolume() (uefi.FileProtocol, uefi.Status) {
	s.f.Calls.OpenVolume++
	s.f.files++
	return &file{f: s.f, path: ".", mode: uefi.FileModeRead}, uefi.Success
}

// file is an open file or directory of the volume. Paths are MapFS
// keys; the root is ".".
type file struct {
	f      *Firmware
	path   string
	mode   uefi.OpenMode
	pos    uint64
	closed bool
}

func (h *file) stat() (fs.FileInfo, bool) {
	fi, err := fs.Stat(h.f.Volume, h.path)
	return fi, err == nil
}

func (h *file) isDir() bool {
	fi, ok := h.stat()
	return ok && fi.IsDir()
}

// resolve interprets name relative to h. Leading backslashes start
// at the root.
func (h *file) resolve(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") {
		return path.Clean("." + name)
	}
	return path.Join(h.path, name)
}

func (h *file) Open(name []uint16, mode uefi.OpenMode, attr uefi.FileAttribute) (uefi.FileProtocol, uefi.Status) {
	if h.closed {
		return nil, uefi.InvalidParameter
	}
	if !h.isDir() {
		return nil, uefi.NotFound
	}
	if mode&uefi.FileModeRead == 0 || mode&uefi.FileModeCreate != 0 && mode&uefi.FileModeWrite == 0 {
		return nil, uefi.InvalidParameter
	}
	p := h.resolve(ucs2.Decode(name))
	if strings.HasPrefix(p, "..") {
		return nil, uefi.NotFound
	}
	if _, err := fs.Stat(h.f.Volume, p); err != nil {
		if mode&uefi.FileModeCreate == 0 {
			return nil, uefi.NotFound
		}
		parent, err := fs.Stat(h.f.Volume, path.Dir(p))
		if err != nil || !parent.IsDir() {
			return nil, uefi.NotFound
		}
		mf := &fstest.MapFile{Mode: 0o644}
		if attr&uefi.FileDirectory != 0 {
			mf.Mode = fs.ModeDir | 0o755
		}
		h.f.Volume[p] = mf
	}
	h.f.files++
	return &file{f: h.f, path: p, mode: mode}, uefi.Success
}

func (h *file) Close() uefi.Status {
	if h.closed {
		return uefi.InvalidParameter
	}
	h.closed = true
	h.f.files--
	return uefi.Success
}

func (h *file) Delete() uefi.Status {
	if st := h.Close(); st != uefi.Success {
		return st
	}
	if h.mode&uefi.FileModeWrite == 0 || h.path == "." {
		return uefi.WarnDeleteFailure
	}
	if h.isDir() {
		if entries, _ := fs.ReadDir(h.f.Volume, h.path); len(entries) > 0 {
			return uefi.WarnDeleteFailure
		}
	}
	delete(h.f.Volume, h.path)
	return uefi.Success
}

func (h *file) Read(size *uint64, buf []byte) uefi.Status {
	if h.closed {
		return uefi.InvalidParameter
	}
	if h.isDir() {
		return h.readDir(size, buf)
	}
	data := h.data()
	if h.pos > uint64(len(data)) {
		return uefi.DeviceError
	}
	n := copy(buf[:min(*size, uint64(len(buf)))], data[h.pos:])
	h.pos += uint64(n)
	*size = uint64(n)
	return uefi.Success
}

// readDir returns the next directory entry as an EFI_FILE_INFO.
func (h *file) readDir(size *uint64, buf []byte) uefi.Status {
	entries, err := fs.ReadDir(h.f.Volume, h.path)
	if err != nil {
		return uefi.DeviceError
	}
	if h.pos >= uint64(len(entries)) {
		*size = 0
		return uefi.Success
	}
	fi, err := entries[h.pos].Info()
	if err != nil {
		return uefi.DeviceError
	}
	enc := encodeInfo(fi)
	if *size < uint64(len(enc)) || uint64(len(buf)) < uint64(len(enc)) {
		*size = uint64(len(enc))
		return uefi.BufferTooSmall
	}
	*size = uint64(copy(buf, enc))
	h.pos++
	return uefi.Success
}

func (h *file) data() []byte {
	if mf := h.f.Volume[h.path]; mf != nil {
		return mf.Data
	}
	return nil
}

func (h *file) Write(size *uint64, buf []byte) uefi.Status {
	if h.closed {
		return uefi.InvalidParameter
	}
	if h.isDir() {
		return uefi.Unsupported
	}
	if h.mode&uefi.FileModeWrite == 0 {
		*size = 0
		return uefi.AccessDenied
	}
	mf := h.f.Volume[h.path]
	p := buf[:min(*size, uint64(len(buf)))]
	end := h.pos + uint64(len(p))
	if end > uint64(len(mf.Data)) {
		mf.Data = append(mf.Data, make([]byte, end-uint64(len(mf.Data)))...)
	}
	copy(mf.Data[h.pos:], p)
	h.pos = end
	*size = uint64(len(p))
	return uefi.Success
}

func (h *file) GetPosition(pos *uint64) uefi.Status {
	if h.isDir() {
		return uefi.Unsupported
	}
	*pos = h.pos
	return uefi.Success
}

func (h *file) SetPosition(pos uint64) uefi.Status {
	if h.isDir() {
		if pos != 0 {
			return uefi.Unsupported
		}
		h.pos = 0
		return uefi.Success
	}
	if pos == ^uint64(0) {
		pos = uint64(len(h.data()))
	}
	h.pos = pos
	return uefi.Success
}

func (h *file) GetInfo(typ *uefi.GUID, size *uint64, buf []byte) uefi.Status {
	if typ == nil || *typ != uefi.FileInfoGUID {
		return uefi.Unsupported
	}
	fi, ok := h.stat()
	if !ok {
		return uefi.DeviceError
	}
	enc := encodeInfo(fi)
	if *size < uint64(len(enc)) || uint64(len(buf)) < uint64(len(enc)) {
		*size = uint64(len(enc))
		return uefi.BufferTooSmall
	}
	*size = uint64(copy(buf, enc))
	return uefi.Success
}

func (h *file) Flush() uefi.Status {
	if h.mode&uefi.FileModeWrite == 0 {
		return uefi.AccessDenied
	}
	return uefi.Success
}

func encodeInfo(fi fs.FileInfo) []byte {
	info := &uefi.FileInfo{
		FileSize:     uint64(fi.Size()),
		PhysicalSize: (uint64(fi.Size()) + 511) &^ 511,
		FileName:     fi.Name(),
	}
	if fi.IsDir() {
		info.Attribute |= uefi.FileDirectory
	}
	if fi.Mode().Perm()&0o200 == 0 {
		info.Attribute |= uefi.FileReadOnly
	}
	if info.FileName == "." {
		info.FileName = ""
	}
	enc, err := info.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return enc
}
