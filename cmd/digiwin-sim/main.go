// Package main provides a CLI for running digiwin scenario scripts.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	simcmd "github.com/MJE43/digiwin/internal/cmd/sim"
	"github.com/MJE43/digiwin/internal/config"
)

func main() {
	cfg, err := simcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := simcmd.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		config.Exitf("Error: %v", err)
	}
}
