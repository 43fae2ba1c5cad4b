package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/germanoeich/dockctl/internal/cli"
)

func main() {
	opts, err := cli.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dockctl: %v\n", err)
		os.Exit(2)
	}
	if opts.ShowHelp || opts.ShowVersion {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "dockctl: %v\n", err)
		os.Exit(1)
	}
}
