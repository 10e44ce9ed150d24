// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import (
	"encoding/binary"
	"errors"
)

// HandleBuffer is a firmware allocated array of handles supporting a
// protocol. Close frees the array.
type HandleBuffer struct {
	guid    GUID
	addr    uint64
	handles []Handle
	closed  bool
}

// LocateHandleBuffer returns the handles supporting the protocol
// identified by guid. It fails with ErrNotSupported if there are none.
func LocateHandleBuffer(guid GUID) (*HandleBuffer, error) {
	s, bs, err := bootServices()
	if err != nil {
		return nil, err
	}
	var count, addr uint64
	switch st := bs.LocateHandleBuffer(ByProtocol, &guid, 0, &count, &addr); st {
	case Success:
	case NotFound:
		return nil, ErrNotSupported
	case OutOfResources:
		return nil, ErrOutOfMemory
	case InvalidParameter:
		return nil, invalidArgument("protocol")
	default:
		return nil, StatusError{Status: st}
	}
	hb := &HandleBuffer{guid: guid, addr: addr}
	raw := s.table.Memory(addr, count*8)
	if uint64(len(raw)) != count*8 {
		hb.Close()
		return nil, invalidArgument("buffer")
	}
	hb.handles = make([]Handle, count)
	for i := range hb.handles {
		hb.handles[i] = Handle(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return hb, nil
}

func (b *HandleBuffer) GUID() GUID {
	return b.guid
}

func (b *HandleBuffer) Len() int {
	return len(b.handles)
}

func (b *HandleBuffer) Handle(i int) Handle {
	return b.handles[i]
}

// Open opens the protocol on the i'th handle.
func (b *HandleBuffer) Open(i int) (*Protocol, error) {
	if i < 0 || i >= len(b.handles) {
		return nil, invalidArgument("index")
	}
	return OpenProtocol(b.handles[i], b.guid)
}

// Each opens the protocol on every handle in turn and calls f with
// it. The protocol is closed when f returns. Iteration stops at the
// first error.
func (b *HandleBuffer) Each(f func(p *Protocol) error) error {
	for i := range b.handles {
		p, err := b.Open(i)
		if err != nil {
			return err
		}
		err = f(p)
		if cerr := p.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Close frees the handle array. It is a no-op after the first call or
// once boot services have exited.
func (b *HandleBuffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	_, bs, err := bootServices()
	if err != nil {
		if errors.Is(err, ErrBootServicesUnavailable) {
			return nil
		}
		return err
	}
	if st := bs.FreePool(b.addr); st != Success {
		return StatusError{Status: st}
	}
	return nil
}

// Protocol is a protocol interface opened on a handle on behalf of
// the loader image. Close releases it.
type Protocol struct {
	handle Handle
	guid   GUID
	iface  any
	closed bool
}

// OpenProtocol opens the protocol identified by guid on handle.
func OpenProtocol(handle Handle, guid GUID) (*Protocol, error) {
	s, bs, err := bootServices()
	if err != nil {
		return nil, err
	}
	iface, st := bs.OpenProtocol(handle, &guid, s.image, 0, OpenByHandleProtocol)
	switch st {
	case Success:
	case InvalidParameter:
		return nil, invalidArgument("handle")
	case Unsupported:
		return nil, ErrNotSupported
	case AccessDenied:
		return nil, ErrOperationDenied
	default:
		return nil, StatusError{Status: st}
	}
	return &Protocol{handle: handle, guid: guid, iface: iface}, nil
}

func (p *Protocol) Handle() Handle {
	return p.handle
}

func (p *Protocol) GUID() GUID {
	return p.guid
}

// Interface returns the firmware interface, for example a
// FileProtocol for SimpleFileSystemProtocolGUID.
func (p *Protocol) Interface() any {
	return p.iface
}

// Close closes the protocol. It is a no-op after the first call or
// once boot services have exited.
func (p *Protocol) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	s, bs, err := bootServices()
	if err != nil {
		if errors.Is(err, ErrBootServicesUnavailable) {
			return nil
		}
		return err
	}
	if st := bs.CloseProtocol(p.handle, &p.guid, s.image, 0); st != Success {
		return StatusError{Status: st}
	}
	return nil
}
