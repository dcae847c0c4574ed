// Package main starts the digiwin node: a simulated chain with the game
// contract deployed, served over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	nodecmd "github.com/MJE43/digiwin/internal/cmd/node"
	"github.com/MJE43/digiwin/internal/config"
)

func main() {
	cfg, err := nodecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := nodecmd.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("Error: serve: %v", err)
	}
}
