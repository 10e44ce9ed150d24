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

	"eliasnaur.com/efiboot/bootinfo"
	"eliasnaur.com/efiboot/loader"
	"eliasnaur.com/efiboot/paging"
)

// Plan implements subcommands.Command for the "plan" command.
type Plan struct{}

// Name implements subcommands.Command.
func (*Plan) Name() string {
	return "plan"
}

// Synopsis implements subcommands.Command.
func (*Plan) Synopsis() string {
	return "prints the virtual layout the loader builds for a kernel"
}

// Usage implements subcommands.Command.
func (*Plan) Usage() string {
	return "plan <kernel>\n"
}

// SetFlags implements subcommands.Command.
func (*Plan) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*Plan) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	img, err := openImage(f.Arg(0))
	if err != nil {
		glog.Errorf("plan: %v", err)
		return subcommands.ExitFailure
	}
	defer img.Close()
	for _, levels := range []int{4, 5} {
		if err := printLayout(os.Stdout, levels, layout(img.kernel, levels)); err != nil {
			glog.Errorf("plan: %v", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

// region is a virtual range of the kernel's address space.
type region struct {
	Name       string
	Start, End uint64
	Size       paging.PageSize
}

// layout returns the regions mapped for k under the given number of
// paging levels. The physical map is shown at its largest extent.
func layout(k *loader.Kernel, levels int) []region {
	mapStart, mapSize := bootinfo.PhysicalMapSpan(levels)
	return []region{
		{Name: "physical map", Start: mapStart, End: mapStart + mapSize, Size: paging.PageSize1G},
		{Name: "stack", Start: bootinfo.StackVirtualBottom, End: bootinfo.StackVirtualTop, Size: paging.PageSize4K},
		{Name: "kernel", Start: k.Base, End: k.Base + k.Pages()*uint64(paging.PageSize4K), Size: paging.PageSize4K},
	}
}

func printLayout(w io.Writer, levels int, regions []region) error {
	fmt.Fprintf(w, "%d-level paging:\n", levels)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, r := range regions {
		fmt.Fprintf(tw, "\t%s\t%#016x-%#016x\t%s pages\n", r.Name, r.Start, r.End, r.Size)
	}
	return tw.Flush()
}
