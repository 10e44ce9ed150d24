// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	ErrNotInitialized          = errors.New("uefi: not initialized")
	ErrAlreadyInitialized      = errors.New("uefi: already initialized")
	ErrBootServicesUnavailable = errors.New("uefi: boot services are unavailable")

	ErrOutOfMemory     = errors.New("uefi: out of memory")
	ErrNotSupported    = errors.New("uefi: not supported")
	ErrDeviceError     = errors.New("uefi: device error")
	ErrOperationDenied = errors.New("uefi: operation denied")

	ErrNoMedia               = errors.New("uefi: no medium")
	ErrMediaInvalidated      = errors.New("uefi: medium changed")
	ErrVolumeCorrupted       = errors.New("uefi: volume corrupted")
	ErrVolumeFull            = errors.New("uefi: volume full")
	ErrReadOnlyViolation     = errors.New("uefi: write to read-only file or volume")
	ErrNoWriteAccess         = errors.New("uefi: file not opened for writing")
	ErrFileOnlyOperation     = errors.New("uefi: operation requires a file")
	ErrDeleteFailed          = errors.New("uefi: delete failed")
	ErrUnsupportedFileSystem = errors.New("uefi: unsupported file system")
)

// InvalidArgumentError reports an argument the firmware rejected.
type InvalidArgumentError struct {
	Name string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("uefi: invalid argument %q", e.Name)
}

// PathError reports a path that does not exist on a volume.
type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return "uefi: " + e.Path + ": no such file or directory"
}

func (e *PathError) Is(target error) bool {
	return target == fs.ErrNotExist
}

// StatusError carries a firmware status with no more specific
// mapping.
type StatusError struct {
	Status Status
}

func (e StatusError) Error() string {
	return fmt.Sprintf("uefi: unexpected status %s", e.Status)
}

func invalidArgument(name string) error {
	return &InvalidArgumentError{Name: name}
}

// statusError maps the statuses shared by most services. Callers
// handle the statuses whose meaning depends on the service first.
func statusError(s Status) error {
	switch s {
	case Success:
		return nil
	case OutOfResources:
		return ErrOutOfMemory
	case Unsupported:
		return ErrNotSupported
	case DeviceError:
		return ErrDeviceError
	case NoMedia:
		return ErrNoMedia
	case MediaChanged:
		return ErrMediaInvalidated
	case VolumeCorrupted:
		return ErrVolumeCorrupted
	case VolumeFull:
		return ErrVolumeFull
	case WriteProtected:
		return ErrReadOnlyViolation
	case AccessDenied:
		return ErrOperationDenied
	default:
		return StatusError{Status: s}
	}
}
