// SPDX-License-Identifier: Unlicense OR MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/golang/glog"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"eliasnaur.com/efiboot/elf"
)

// Inspect implements subcommands.Command for the "inspect" command.
type Inspect struct {
	jobs int
}

// Name implements subcommands.Command.
func (*Inspect) Name() string {
	return "inspect"
}

// Synopsis implements subcommands.Command.
func (*Inspect) Synopsis() string {
	return "validates kernel images and lists their LOAD segments"
}

// Usage implements subcommands.Command.
func (*Inspect) Usage() string {
	return "inspect [flags] <kernel>...\n"
}

// SetFlags implements subcommands.Command.
func (i *Inspect) SetFlags(f *flag.FlagSet) {
	f.IntVar(&i.jobs, "j", 4, "number of images validated concurrently.")
}

// Execute implements subcommands.Command.
func (i *Inspect) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	reports, err := inspectImages(ctx, f.Args(), i.jobs)
	if err != nil {
		glog.Errorf("inspect: %v", err)
		return subcommands.ExitFailure
	}
	for _, r := range reports {
		if err := r.print(os.Stdout); err != nil {
			glog.Errorf("inspect: %v", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

type report struct {
	path     string
	entry    uint64
	base     uint64
	len      uint64
	segments []elf.ProgramHeader
}

// inspectImages validates every path, at most jobs at a time. The
// reports are in path order.
func inspectImages(ctx context.Context, paths []string, jobs int) ([]report, error) {
	reports := make([]report, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := inspectImage(path)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func inspectImage(path string) (report, error) {
	img, err := openImage(path)
	if err != nil {
		return report{}, err
	}
	defer img.Close()
	phdrs, err := img.kernel.File.ProgramHeaders()
	if err != nil {
		return report{}, fmt.Errorf("%s: %w", path, err)
	}
	r := report{
		path:  path,
		entry: img.kernel.Header.Entry,
		base:  img.kernel.Base,
		len:   img.kernel.Len(),
	}
	for _, ph := range phdrs {
		if ph.Loadable() {
			r.segments = append(r.segments, ph)
		}
	}
	glog.V(1).Infof("%s: %d LOAD segments", path, len(r.segments))
	return r, nil
}

func (r report) print(w io.Writer) error {
	fmt.Fprintf(w, "%s: entry %#x, mapped at %#x, %d bytes\n", r.path, r.entry, r.base, r.len)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "\tVADDR\tFILESZ\tMEMSZ\tFLAGS")
	for _, ph := range r.segments {
		fmt.Fprintf(tw, "\t%#x\t%#x\t%#x\t%s\n", ph.VirtualAddress, ph.FileSize, ph.MemorySize, flags(ph.Flags))
	}
	return tw.Flush()
}

func flags(f uint32) string {
	b := []byte("---")
	if f&elf.SegmentFlagRead != 0 {
		b[0] = 'r'
	}
	if f&elf.SegmentFlagWrite != 0 {
		b[1] = 'w'
	}
	if f&elf.SegmentFlagExecute != 0 {
		b[2] = 'x'
	}
	return string(b)
}
