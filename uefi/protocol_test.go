// SPDX-License-Identifier: Unlicense OR MIT

package uefi_test

import (
	"errors"
	"testing"

	"eliasnaur.com/efiboot/uefi"
	"eliasnaur.com/efiboot/uefi/uefitest"
)

func TestLocateHandleBuffer(t *testing.T) {
	f := uefitest.New()
	f.Modes = []uefi.ModeInformation{{HorizontalResolution: 640, VerticalResolution: 480, PixelsPerScanLine: 640}}
	f.Install(t)
	hb, err := uefi.LocateHandleBuffer(uefi.GraphicsOutputProtocolGUID)
	if err != nil {
		t.Fatal(err)
	}
	if hb.Len() != 1 || hb.Handle(0) != uefitest.GraphicsHandle {
		t.Errorf("handles: got %d handles, want [%d]", hb.Len(), uefitest.GraphicsHandle)
	}
	var visited int
	err = hb.Each(func(p *uefi.Protocol) error {
		visited++
		if _, ok := p.Interface().(uefi.GraphicsOutputProtocol); !ok {
			t.Errorf("interface %T is not a graphics output protocol", p.Interface())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if visited != 1 {
		t.Errorf("Each visited %d handles, want 1", visited)
	}
	if err := hb.Close(); err != nil {
		t.Fatal(err)
	}
	if err := hb.Close(); err != nil {
		t.Fatal(err)
	}
	if f.Calls.FreePool != 1 {
		t.Errorf("%d FreePool calls, want 1", f.Calls.FreePool)
	}
	if n := f.OpenProtocols(); n != 0 {
		t.Errorf("%d protocols left open", n)
	}
}

func TestLocateMissingProtocol(t *testing.T) {
	f := uefitest.New()
	f.Install(t)
	if _, err := uefi.LocateHandleBuffer(uefi.GraphicsOutputProtocolGUID); !errors.Is(err, uefi.ErrNotSupported) {
		t.Errorf("got %v, want %v", err, uefi.ErrNotSupported)
	}
}

func TestOpenProtocol(t *testing.T) {
	f := uefitest.New()
	f.Install(t)
	p, err := uefi.OpenProtocol(uefitest.ImageHandle, uefi.LoadedImageProtocolGUID)
	if err != nil {
		t.Fatal(err)
	}
	li, ok := p.Interface().(uefi.LoadedImageProtocol)
	if !ok {
		t.Fatalf("interface %T is not a loaded image protocol", p.Interface())
	}
	if h := li.DeviceHandle(); h != uefitest.DeviceHandle {
		t.Errorf("device handle %d, want %d", h, uefitest.DeviceHandle)
	}
	if f.OpenProtocols() != 1 {
		t.Errorf("%d open protocols, want 1", f.OpenProtocols())
	}
	p.Close()
	p.Close()
	if f.Calls.CloseProtocol != 1 {
		t.Errorf("%d CloseProtocol calls, want 1", f.Calls.CloseProtocol)
	}
	if _, err := uefi.OpenProtocol(uefitest.ImageHandle, uefi.GraphicsOutputProtocolGUID); !errors.Is(err, uefi.ErrNotSupported) {
		t.Errorf("unsupported protocol: got %v, want %v", err, uefi.ErrNotSupported)
	}
}
