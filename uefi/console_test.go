// SPDX-License-Identifier: Unlicense OR MIT

package uefi_test

import (
	"fmt"
	"testing"

	"eliasnaur.com/efiboot/uefi"
	"eliasnaur.com/efiboot/uefi/uefitest"
)

func TestTextOutput(t *testing.T) {
	f := uefitest.New()
	f.Install(t)
	out, err := uefi.ConOut()
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(out, "loading %s\n", "kernel")
	// A rune split across writes is held back until complete.
	euro := []byte("€")
	out.Write(euro[:1])
	out.Write(euro[1:])
	out.Write([]byte("\U0001F600\n"))
	want := "loading kernel\r\n€�\r\n"
	if got := f.Console.String(); got != want {
		t.Errorf("console: got %q, want %q", got, want)
	}
}

func TestStdErr(t *testing.T) {
	f := uefitest.New()
	f.Install(t)
	w, err := uefi.StdErr()
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(w, "panic")
	if got := f.Errors.String(); got != "panic" {
		t.Errorf("stderr: got %q", got)
	}
	if f.Console.Len() != 0 {
		t.Error("stderr text reached the console")
	}
}
