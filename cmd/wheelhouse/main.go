package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Server  ServerCmd        `cmd:"" help:"Run the round engine server"`
	Verify  VerifyCmd        `cmd:"" help:"Verify a revealed round against its commitment"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wheelhouse"),
		kong.Description("Live round engine for wheel and crash games"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
