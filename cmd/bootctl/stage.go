// SPDX-License-Identifier: Unlicense OR MIT

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/google/subcommands"

	"eliasnaur.com/efiboot/loader"
)

// Stage implements subcommands.Command for the "stage" command.
type Stage struct {
	esp     string
	kernel  string
	initial string
	width   uint
	height  uint
	debug   bool
}

// Name implements subcommands.Command.
func (*Stage) Name() string {
	return "stage"
}

// Synopsis implements subcommands.Command.
func (*Stage) Synopsis() string {
	return "copies a kernel and loader configuration into an EFI system partition tree"
}

// Usage implements subcommands.Command.
func (*Stage) Usage() string {
	return "stage -esp <dir> -kernel <file> [-initial <file>] [flags]\n"
}

// SetFlags implements subcommands.Command.
func (s *Stage) SetFlags(f *flag.FlagSet) {
	def := loader.DefaultConfig()
	f.StringVar(&s.esp, "esp", "", "root of the EFI system partition tree.")
	f.StringVar(&s.kernel, "kernel", "", "kernel ELF image.")
	f.StringVar(&s.initial, "initial", "", "optional initial image.")
	f.UintVar(&s.width, "width", uint(def.Graphics.Width), "preferred horizontal resolution.")
	f.UintVar(&s.height, "height", uint(def.Graphics.Height), "preferred vertical resolution.")
	f.BoolVar(&s.debug, "debug", false, "mirror the loader log to COM1.")
}

// Execute implements subcommands.Command.
func (s *Stage) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if s.esp == "" || s.kernel == "" || f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := s.stage(); err != nil {
		glog.Errorf("stage: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (s *Stage) config() loader.Config {
	cfg := loader.DefaultConfig()
	cfg.Graphics.Width = uint32(s.width)
	cfg.Graphics.Height = uint32(s.height)
	cfg.Debug.Enabled = s.debug
	return cfg
}

func (s *Stage) stage() error {
	cfg := s.config()
	if err := cfg.Validate(); err != nil {
		return err
	}
	img, err := openImage(s.kernel)
	if err != nil {
		return err
	}
	err = writeFile(s.esp, cfg.Kernel, bytes.NewReader(img.data))
	img.Close()
	if err != nil {
		return err
	}
	if s.initial != "" {
		f, err := os.Open(s.initial)
		if err != nil {
			return err
		}
		err = writeFile(s.esp, cfg.Initial, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		return err
	}
	return writeFile(s.esp, loader.ConfigPath, &buf)
}

// writeFile copies r to the volume path name below root. Volume paths
// use backslashes.
func writeFile(root, name string, r io.Reader) error {
	dst := filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(name, `\`, "/")))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", dst, err)
	}
	glog.Infof("wrote %s (%d bytes)", dst, n)
	return nil
}
