// Binary boxjail wires a Config, a listener set and an Executor together
// and reports the verdict for one supervised run. It is intentionally the
// thinnest useful shell around the engine packages: see spec.md §4.10.
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
	subcommands.Register(&Run{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
