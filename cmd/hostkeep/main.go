package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/g960059/hostkeep/internal/cli"
	"github.com/g960059/hostkeep/internal/config"
	"github.com/g960059/hostkeep/internal/logging"
)

func main() {
	cfg, err := config.LoadFile(config.DefaultConfigPath(), config.DefaultConfig())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "hostkeep: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Only warnings reach stderr so command output stays clean.
	logger := logging.NewWithWriter("warn", logging.FormatConsole, os.Stderr)
	r := cli.NewRunner(cfg.SocketPath, os.Stdout, os.Stderr).
		WithConfig(cfg).
		WithLogger(logger)
	code := r.Run(ctx, os.Args[1:])
	_ = logger.Sync()
	cancel()
	os.Exit(code)
}
