package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/dvloznov/ledgersync/internal/logger"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&extractCmd{}, "offline")
	commander.Register(&syncCmd{}, "store")
	commander.Register(&replayCmd{}, "store")
	commander.Register(&recordsCmd{}, "store")
	commander.Register(&jobsCmd{}, "store")

	flag.Parse()

	log := logger.NewFromConfig(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	ctx := logger.WithContext(context.Background(), log)
	os.Exit(int(commander.Execute(ctx)))
}
