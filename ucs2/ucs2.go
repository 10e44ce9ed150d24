// SPDX-License-Identifier: Unlicense OR MIT

// Package ucs2 converts between Go strings and the NUL-terminated
// UCS-2 strings firmware interfaces expect. UCS-2 is UTF-16 without
// surrogate pairs, so only the basic multilingual plane is encodable.
package ucs2

import (
	"fmt"
	"unicode/utf8"
)

// EncodeError reports a rune that has no UCS-2 representation.
type EncodeError struct {
	Rune   rune
	Offset int
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("ucs2: %U at offset %d is not encodable", e.Rune, e.Offset)
}

// Encode returns s as UCS-2 code units followed by a NUL terminator.
// Runes above U+FFFF, surrogate code points and invalid UTF-8 fail.
func Encode(s string) ([]uint16, error) {
	out := make([]uint16, 0, len(s)+1)
	for off, r := range s {
		if r == utf8.RuneError {
			if _, n := utf8.DecodeRuneInString(s[off:]); n <= 1 {
				return nil, &EncodeError{Rune: r, Offset: off}
			}
		}
		if r > 0xffff || (r >= 0xd800 && r <= 0xdfff) {
			return nil, &EncodeError{Rune: r, Offset: off}
		}
		out = append(out, uint16(r))
	}
	return append(out, 0), nil
}

// Decode converts UCS-2 code units up to the first NUL into a string.
func Decode(s []uint16) string {
	buf := make([]byte, 0, len(s))
	for _, c := range s {
		if c == 0 {
			break
		}
		r := rune(c)
		if r >= 0xd800 && r <= 0xdfff {
			r = utf8.RuneError
		}
		buf = utf8.AppendRune(buf, r)
	}
	return string(buf)
}
