// Package main provides the procluster command line entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/internal/cli"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// stdout carries results, so logs go to stderr
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Main(ctx, Version, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
