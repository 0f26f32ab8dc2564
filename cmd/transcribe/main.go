package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HienH/sale-smell/internal/cli"
	"github.com/HienH/sale-smell/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Ctrl-C cancels the running transcription.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &cli.Dependencies{
		Config: cfg,
	}
	err = cli.NewRootCmd(deps).ExecuteContext(ctx)
	if deps.App != nil {
		deps.App.Shutdown()
	}
	return err
}
