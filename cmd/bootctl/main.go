// SPDX-License-Identifier: Unlicense OR MIT

// Command bootctl inspects kernel images and prepares EFI system
// partition trees for the loader.
//
//	bootctl inspect kernel...
//	bootctl plan kernel
//	bootctl stage -esp dir -kernel file [-initial file]
package main

import (
	"context"
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(Inspect), "")
	subcommands.Register(new(Plan), "")
	subcommands.Register(new(Stage), "")

	flag.Parse()
	defer glog.Flush()
	os.Exit(int(subcommands.Execute(context.Background())))
}
