package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/g960059/hostkeep/internal/config"
	"github.com/g960059/hostkeep/internal/daemon"
	"github.com/g960059/hostkeep/internal/db"
	"github.com/g960059/hostkeep/internal/logging"
)

func main() {
	defaults := config.DefaultConfig()
	configPath := flag.String("config", config.DefaultConfigPath(), "YAML config file")
	socketPath := flag.String("socket", defaults.SocketPath, "UDS path for hostkeepd")
	dbPath := flag.String("db", defaults.DBPath, "SQLite path")
	logLevel := flag.String("log-level", defaults.LogLevel, "debug, info, warn or error")
	logFormat := flag.String("log-format", defaults.LogFormat, "console or json")
	metricsEnabled := flag.Bool("metrics", defaults.MetricsEnabled, "serve /metrics")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath, defaults)
	if err != nil {
		fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "socket":
			cfg.SocketPath = *socketPath
		case "db":
			cfg.DBPath = *dbPath
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "metrics":
			cfg.MetricsEnabled = *metricsEnabled
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("hostkeepd exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		return err
	}
	logger.Info("store ready", zap.String("db", cfg.DBPath))

	g, gctx := errgroup.WithContext(ctx)
	srv := daemon.NewServerWithDeps(cfg, store, logger)
	g.Go(func() error {
		if err := srv.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		checkpointLoop(gctx, store, cfg.CheckpointInterval, logger.Named(logging.ComponentStore))
		return nil
	})
	return g.Wait()
}

func checkpointLoop(ctx context.Context, store *db.Store, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Checkpoint(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("wal checkpoint failed", zap.Error(err))
			}
		}
	}
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "hostkeepd: %v\n", err)
	os.Exit(1)
}
