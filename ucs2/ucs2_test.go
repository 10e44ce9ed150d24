// SPDX-License-Identifier: Unlicense OR MIT

package ucs2

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode(t *testing.T) {
	got, err := Encode(`boot\system\kernel`)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint16{'b', 'o', 'o', 't', '\\', 's', 'y', 's', 't', 'e', 'm', '\\', 'k', 'e', 'r', 'n', 'e', 'l', 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}
	if got := Decode(got); got != `boot\system\kernel` {
		t.Errorf("Decode; got %q", got)
	}
}

func TestEncodeBMP(t *testing.T) {
	got, err := Encode("é€")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{0xe9, 0x20ac, 0}, got); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRejectsSupplementary(t *testing.T) {
	for _, s := range []string{"a\U0001F600", "\xff"} {
		_, err := Encode(s)
		var encErr *EncodeError
		if !errors.As(err, &encErr) {
			t.Errorf("Encode(%q); got %v, wanted *EncodeError", s, err)
		}
	}
}

func TestDecodeStopsAtNUL(t *testing.T) {
	if got := Decode([]uint16{'a', 'b', 0, 'c'}); got != "ab" {
		t.Errorf("Decode; got %q, wanted %q", got, "ab")
	}
}
