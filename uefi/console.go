// SPDX-License-Identifier: Unlicense OR MIT

package uefi

import (
	"unicode/utf8"
)

// TextOutput writes UTF-8 text to a firmware text output. Newlines
// are expanded to CR LF and characters outside the basic multilingual
// plane are replaced.
type TextOutput struct {
	out SimpleTextOutputProtocol
	// partial holds the start of a rune split across writes.
	partial []byte
	buf     []uint16
}

// ConOut returns a writer for the console output device.
func ConOut() (*TextOutput, error) {
	s, err := loaded()
	if err != nil {
		return nil, err
	}
	return NewTextOutput(s.table.ConOut()), nil
}

// StdErr returns a writer for the standard error device.
func StdErr() (*TextOutput, error) {
	s, err := loaded()
	if err != nil {
		return nil, err
	}
	return NewTextOutput(s.table.StdErr()), nil
}

func NewTextOutput(out SimpleTextOutputProtocol) *TextOutput {
	return &TextOutput{out: out}
}

func (t *TextOutput) Write(p []byte) (int, error) {
	n := len(p)
	if len(t.partial) > 0 {
		p = append(t.partial, p...)
		t.partial = nil
	}
	t.buf = t.buf[:0]
	for len(p) > 0 {
		if !utf8.FullRune(p) {
			t.partial = append([]byte(nil), p...)
			break
		}
		r, size := utf8.DecodeRune(p)
		p = p[size:]
		switch {
		case r == '\n':
			t.buf = append(t.buf, '\r', '\n')
		case r > 0xffff, r >= 0xd800 && r < 0xe000:
			t.buf = append(t.buf, utf8.RuneError)
		default:
			t.buf = append(t.buf, uint16(r))
		}
	}
	if len(t.buf) == 0 {
		return n, nil
	}
	t.buf = append(t.buf, 0)
	if st := t.out.OutputString(t.buf); st.IsError() {
		return 0, StatusError{Status: st}
	}
	return n, nil
}
