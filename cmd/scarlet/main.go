// Command scarlet is the simulation harness entrypoint: a
// github.com/google/subcommands multi-command binary with boot, fsck,
// and probe-devices subcommands.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&bootCommand{}, "")
	subcommands.Register(&fsckCommand{}, "")
	subcommands.Register(&probeDevicesCommand{}, "")

	flag.Parse()

	os.Exit(int(subcommands.Execute(context.Background())))
}
