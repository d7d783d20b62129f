// Command perfmetrics-cli prints trailing performance metrics for symbols,
// computed locally or fetched from a perfmetrics-server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

const version = "0.1.0"

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	g := &globals{}
	commander.Register(&metricsCmd{g: g}, "")
	commander.Register(&refreshCmd{g: g}, "")
	commander.Register(&versionCmd{}, "")

	flag.StringVar(&g.server, "server", "", "perfmetrics-server base URL; empty computes locally")
	flag.StringVar(&g.configPath, "config", "", "config file for local mode (default $PERFMETRICS_CONFIG or config/perfmetrics.yaml)")
	flag.BoolVar(&g.json, "json", false, "print JSON instead of a table")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(int(commander.Execute(ctx)))
}
