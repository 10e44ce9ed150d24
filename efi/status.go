// SPDX-License-Identifier: Unlicense OR MIT

package efi

import "eliasnaur.com/efiboot/uefi"

// status converts the error of a go-boot page service to a status.
// go-boot drops the status, and NOT_FOUND is what both page services
// report for a range the firmware does not own.
func status(err error) uefi.Status {
	if err != nil {
		return uefi.NotFound
	}
	return uefi.Success
}
