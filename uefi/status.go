// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import "fmt"

// Status is an EFI_STATUS code. Error codes have the high bit set;
// non-zero codes without it are warnings.
type Status uint64

const errorBit = 1 << 63

const (
	Success Status = 0

	LoadError        Status = errorBit | 1
	InvalidParameter Status = errorBit | 2
	Unsupported      Status = errorBit | 3
	BadBufferSize    Status = errorBit | 4
	BufferTooSmall   Status = errorBit | 5
	NotReady         Status = errorBit | 6
	DeviceError      Status = errorBit | 7
	WriteProtected   Status = errorBit | 8
	OutOfResources   Status = errorBit | 9
	VolumeCorrupted  Status = errorBit | 10
	VolumeFull       Status = errorBit | 11
	NoMedia          Status = errorBit | 12
	MediaChanged     Status = errorBit | 13
	NotFound         Status = errorBit | 14
	AccessDenied     Status = errorBit | 15
	NoResponse       Status = errorBit | 16
	NoMapping        Status = errorBit | 17
	Timeout          Status = errorBit | 18
	NotStarted       Status = errorBit | 19
	AlreadyStarted   Status = errorBit | 20
	Aborted          Status = errorBit | 21

	WarnUnknownGlyph   Status = 1
	WarnDeleteFailure  Status = 2
	WarnWriteFailure   Status = 3
	WarnBufferTooSmall Status = 4
)

var statusNames = map[Status]string{
	Success:            "SUCCESS",
	LoadError:          "LOAD_ERROR",
	InvalidParameter:   "INVALID_PARAMETER",
	Unsupported:        "UNSUPPORTED",
	BadBufferSize:      "BAD_BUFFER_SIZE",
	BufferTooSmall:     "BUFFER_TOO_SMALL",
	NotReady:           "NOT_READY",
	DeviceError:        "DEVICE_ERROR",
	WriteProtected:     "WRITE_PROTECTED",
	OutOfResources:     "OUT_OF_RESOURCES",
	VolumeCorrupted:    "VOLUME_CORRUPTED",
	VolumeFull:         "VOLUME_FULL",
	NoMedia:            "NO_MEDIA",
	MediaChanged:       "MEDIA_CHANGED",
	NotFound:           "NOT_FOUND",
	AccessDenied:       "ACCESS_DENIED",
	NoResponse:         "NO_RESPONSE",
	NoMapping:          "NO_MAPPING",
	Timeout:            "TIMEOUT",
	NotStarted:         "NOT_STARTED",
	AlreadyStarted:     "ALREADY_STARTED",
	Aborted:            "ABORTED",
	WarnUnknownGlyph:   "WARN_UNKNOWN_GLYPH",
	WarnDeleteFailure:  "WARN_DELETE_FAILURE",
	WarnWriteFailure:   "WARN_WRITE_FAILURE",
	WarnBufferTooSmall: "WARN_BUFFER_TOO_SMALL",
}

func (s Status) IsError() bool {
	return s&errorBit != 0
}

func (s Status) IsWarning() bool {
	return s != Success && !s.IsError()
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	if s.IsError() {
		return fmt.Sprintf("ERROR(%#x)", uint64(s&^errorBit))
	}
	return fmt.Sprintf("WARNING(%#x)", uint64(s))
}
