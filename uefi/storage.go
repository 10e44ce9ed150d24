// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"time"

	"eliasnaur.com/efiboot/cursor"
	"eliasnaur.com/efiboot/ucs2"
)

// Volume is a simple file system volume.
type Volume struct {
	proto *Protocol
	fs    SimpleFileSystemProtocol
}

// NewVolume wraps an opened simple file system protocol. The volume
// takes ownership of p.
func NewVolume(p *Protocol) (*Volume, error) {
	if p.GUID() != SimpleFileSystemProtocolGUID {
		return nil, invalidArgument("protocol")
	}
	fs, ok := p.Interface().(SimpleFileSystemProtocol)
	if !ok {
		return nil, invalidArgument("protocol")
	}
	return &Volume{proto: p, fs: fs}, nil
}

// RootNode opens the volume's root directory.
func (v *Volume) RootNode() (*Node, error) {
	f, st := v.fs.OpenVolume()
	switch st {
	case Success:
		return &Node{file: f, path: `\`}, nil
	case Unsupported:
		return nil, ErrUnsupportedFileSystem
	default:
		return nil, statusError(st)
	}
}

// OpenNode opens path relative to the volume root.
func (v *Volume) OpenNode(path string, read, write bool) (*Node, error) {
	root, err := v.RootNode()
	if err != nil {
		return nil, err
	}
	defer root.Close()
	return root.OpenNode(path, read, write)
}

// Close closes the underlying protocol.
func (v *Volume) Close() error {
	return v.proto.Close()
}

// NodeType distinguishes files from directories.
type NodeType int

const (
	File NodeType = iota
	Directory
)

func (t NodeType) String() string {
	if t == Directory {
		return "directory"
	}
	return "file"
}

// Node is an open file or directory. Close releases it; Delete
// releases it as well.
type Node struct {
	file   FileProtocol
	path   string
	closed bool
}

// Path returns the path the node was opened with.
func (n *Node) Path() string {
	return n.path
}

// OpenNode opens path relative to n. Slashes are translated to
// backslashes.
func (n *Node) OpenNode(path string, read, write bool) (*Node, error) {
	var mode OpenMode
	if read {
		mode |= FileModeRead
	}
	if write {
		mode |= FileModeWrite
	}
	return n.open(path, mode, 0)
}

// CreateNode opens path for reading and writing, creating it as typ if
// it does not exist.
func (n *Node) CreateNode(path string, typ NodeType) (*Node, error) {
	var attr FileAttribute
	if typ == Directory {
		attr |= FileDirectory
	}
	return n.open(path, FileModeRead|FileModeWrite|FileModeCreate, attr)
}

func (n *Node) open(path string, mode OpenMode, attr FileAttribute) (*Node, error) {
	path = strings.ReplaceAll(path, "/", `\`)
	name, err := ucs2.Encode(path)
	if err != nil {
		return nil, err
	}
	f, st := n.file.Open(name, mode, attr)
	switch st {
	case Success:
		return &Node{file: f, path: path}, nil
	case NotFound:
		return nil, &PathError{Path: path}
	default:
		return nil, statusError(st)
	}
}

// Info returns the node's file information.
func (n *Node) Info() (*FileInfo, error) {
	guid := FileInfoGUID
	var size uint64
	switch st := n.file.GetInfo(&guid, &size, nil); st {
	case BufferTooSmall:
	case Success:
		return nil, StatusError{Status: st}
	default:
		return nil, statusError(st)
	}
	buf := make([]byte, size)
	if st := n.file.GetInfo(&guid, &size, buf); st != Success {
		return nil, statusError(st)
	}
	info := new(FileInfo)
	if err := info.UnmarshalBinary(buf[:size]); err != nil {
		return nil, err
	}
	return info, nil
}

// ReadToEnd appends the rest of the file to buf.
func (n *Node) ReadToEnd(buf []byte) ([]byte, error) {
	info, err := n.Info()
	if err != nil {
		return buf, err
	}
	if info.Type() == Directory {
		return buf, ErrFileOnlyOperation
	}
	pos, err := n.Position()
	if err != nil {
		return buf, err
	}
	if pos >= info.FileSize {
		return buf, nil
	}
	start := len(buf)
	buf = append(buf, make([]byte, info.FileSize-pos)...)
	dst := buf[start:]
	for len(dst) > 0 {
		m, err := n.Read(dst)
		dst = dst[m:]
		if err == io.EOF {
			break
		}
		if err != nil {
			return buf[:len(buf)-len(dst)], err
		}
	}
	return buf[:len(buf)-len(dst)], nil
}

// Read implements io.Reader.
func (n *Node) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	size := uint64(len(p))
	switch st := n.file.Read(&size, p); st {
	case Success:
	case BufferTooSmall:
		return 0, ErrFileOnlyOperation
	default:
		return 0, statusError(st)
	}
	if size == 0 {
		return 0, io.EOF
	}
	return int(size), nil
}

// Write implements io.Writer.
func (n *Node) Write(p []byte) (int, error) {
	size := uint64(len(p))
	switch st := n.file.Write(&size, p); st {
	case Success:
	case Unsupported:
		return int(size), ErrFileOnlyOperation
	case AccessDenied:
		return int(size), ErrNoWriteAccess
	default:
		return int(size), statusError(st)
	}
	if size < uint64(len(p)) {
		return int(size), io.ErrShortWrite
	}
	return int(size), nil
}

// Position returns the current file position.
func (n *Node) Position() (uint64, error) {
	var pos uint64
	switch st := n.file.GetPosition(&pos); st {
	case Success:
		return pos, nil
	case Unsupported:
		return 0, ErrFileOnlyOperation
	default:
		return 0, statusError(st)
	}
}

// SetPosition moves the file position. The position ^uint64(0) seeks
// to the end of the file.
func (n *Node) SetPosition(pos uint64) error {
	switch st := n.file.SetPosition(pos); st {
	case Success:
		return nil
	case Unsupported:
		return ErrFileOnlyOperation
	default:
		return statusError(st)
	}
}

// Flush writes buffered data to the device.
func (n *Node) Flush() error {
	switch st := n.file.Flush(); st {
	case Success:
		return nil
	case AccessDenied:
		return ErrNoWriteAccess
	default:
		return statusError(st)
	}
}

// Delete deletes the node. The node is closed whether or not the
// delete succeeds.
func (n *Node) Delete() error {
	if n.closed {
		return invalidArgument("node")
	}
	n.closed = true
	switch st := n.file.Delete(); st {
	case Success:
		return nil
	case WarnDeleteFailure:
		return ErrDeleteFailed
	default:
		return StatusError{Status: st}
	}
}

// Close closes the node. It is a no-op after the first call.
func (n *Node) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	if st := n.file.Close(); st != Success {
		return StatusError{Status: st}
	}
	return nil
}

// FileInfo is EFI_FILE_INFO.
type FileInfo struct {
	FileSize         uint64
	PhysicalSize     uint64
	CreateTime       Time
	LastAccessTime   Time
	ModificationTime Time
	Attribute        FileAttribute
	FileName         string
}

const fileInfoFixedSize = 8*3 + timeSize*3 + 8

func (fi *FileInfo) Type() NodeType {
	if fi.Attribute&FileDirectory != 0 {
		return Directory
	}
	return File
}

// MarshalBinary implements the [encoding.BinaryMarshaler] interface.
func (fi *FileInfo) MarshalBinary() ([]byte, error) {
	name, err := ucs2.Encode(fi.FileName)
	if err != nil {
		return nil, err
	}
	size := uint64(fileInfoFixedSize + 2*len(name))
	bo := binary.LittleEndian
	buf := make([]byte, 0, size)
	buf = bo.AppendUint64(buf, size)
	buf = bo.AppendUint64(buf, fi.FileSize)
	buf = bo.AppendUint64(buf, fi.PhysicalSize)
	for _, t := range []Time{fi.CreateTime, fi.LastAccessTime, fi.ModificationTime} {
		if buf, err = binary.Append(buf, bo, t); err != nil {
			return nil, err
		}
	}
	buf = bo.AppendUint64(buf, uint64(fi.Attribute))
	for _, c := range name {
		buf = bo.AppendUint16(buf, c)
	}
	return buf, nil
}

// UnmarshalBinary implements the [encoding.BinaryUnmarshaler] interface.
func (fi *FileInfo) UnmarshalBinary(data []byte) error {
	c := cursor.New(data)
	bo := binary.LittleEndian
	size, err := c.Uint64(bo)
	if err != nil {
		return err
	}
	if size < fileInfoFixedSize || size > uint64(len(data)) {
		return cursor.ErrUnexpectedEnd
	}
	var info FileInfo
	if info.FileSize, err = c.Uint64(bo); err != nil {
		return err
	}
	if info.PhysicalSize, err = c.Uint64(bo); err != nil {
		return err
	}
	for _, t := range []*Time{&info.CreateTime, &info.LastAccessTime, &info.ModificationTime} {
		raw, err := c.Bytes(timeSize)
		if err != nil {
			return err
		}
		if _, err := binary.Decode(raw, bo, t); err != nil {
			return err
		}
	}
	attr, err := c.Uint64(bo)
	if err != nil {
		return err
	}
	info.Attribute = FileAttribute(attr)
	var name []uint16
	for c.Position() < int(size) {
		ch, err := c.Uint16(bo)
		if err != nil {
			return err
		}
		if ch == 0 {
			break
		}
		name = append(name, ch)
	}
	info.FileName = ucs2.Decode(name)
	*fi = info
	return nil
}

// Time is EFI_TIME.
type Time struct {
	Year       uint16
	Month      uint8
	Day        uint8
	Hour       uint8
	Minute     uint8
	Second     uint8
	_          uint8
	Nanosecond uint32
	TimeZone   int16
	Daylight   uint8
	_          uint8
}

const timeSize = 16

// unspecifiedTimeZone marks a local time.
const unspecifiedTimeZone = 0x07ff

// Time converts t. Times with an unspecified time zone are returned
// as UTC.
func (t Time) Time() time.Time {
	loc := time.UTC
	if t.TimeZone != unspecifiedTimeZone && t.TimeZone != 0 {
		loc = time.FixedZone("", -int(t.TimeZone)*60)
	}
	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day), int(t.Hour), int(t.Minute), int(t.Second), int(t.Nanosecond), loc)
}

// IsNotExist reports whether err reports a missing path.
func IsNotExist(err error) bool {
	var pe *PathError
	return errors.As(err, &pe)
}
