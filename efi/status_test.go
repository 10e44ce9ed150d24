// SPDX-License-Identifier: Unlicense OR MIT

package efi

import (
	"errors"
	"testing"

	"eliasnaur.com/efiboot/uefi"
)

func TestStatus(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want uefi.Status
	}{
		{"success", nil, uefi.Success},
		{"failure", errors.New("EFI_STATUS error 0x800000000000000e"), uefi.NotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := status(tc.err); got != tc.want {
				t.Errorf("status(%v): got %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
