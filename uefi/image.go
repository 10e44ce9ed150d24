// SPDX-License-Identifier: Unlicense OR MIT

package uefi

// VolumeContainingImage opens the file system of the device the
// loader image was loaded from.
func VolumeContainingImage() (*Volume, error) {
	image, err := ImageHandle()
	if err != nil {
		return nil, err
	}
	p, err := OpenProtocol(image, LoadedImageProtocolGUID)
	if err != nil {
		return nil, err
	}
	li, ok := p.Interface().(LoadedImageProtocol)
	if !ok {
		p.Close()
		return nil, invalidArgument("protocol")
	}
	device := li.DeviceHandle()
	if err := p.Close(); err != nil {
		return nil, err
	}
	fsp, err := OpenProtocol(device, SimpleFileSystemProtocolGUID)
	if err != nil {
		return nil, err
	}
	v, err := NewVolume(fsp)
	if err != nil {
		fsp.Close()
		return nil, err
	}
	return v, nil
}

// LocateVolumes returns the handles of every file system volume. Open
// them with HandleBuffer.Open and NewVolume.
func LocateVolumes() (*HandleBuffer, error) {
	return LocateHandleBuffer(SimpleFileSystemProtocolGUID)
}
