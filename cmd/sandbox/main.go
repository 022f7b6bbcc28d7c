package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/config"
	"github.com/dgnsrekt/flex-integration/internal/sandbox"
	"github.com/dgnsrekt/flex-integration/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// Load config
	cfg, err := config.LoadSandboxConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("marketplace", cfg.MarketplaceName),
		zap.String("clientId", cfg.ClientID),
		zap.String("seedFile", cfg.SeedFile),
		zap.Float64("commandRate", cfg.CommandRate),
		zap.Int("commandBurst", cfg.CommandBurst),
	)

	sb, err := sandbox.New(sandbox.Config{
		MarketplaceName: cfg.MarketplaceName,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		CommandRate:     cfg.CommandRate,
		CommandBurst:    cfg.CommandBurst,
		QueryRate:       cfg.QueryRate,
		QueryBurst:      cfg.QueryBurst,
	}, logger)
	if err != nil {
		logger.Error("failed to create sandbox", zap.Error(err))
		return 1
	}

	// Load seed data
	seed := sandbox.DefaultSeed
	if cfg.SeedFile != "" {
		seed, err = sandbox.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			logger.Error("failed to load seed", zap.Error(err))
			return 1
		}
	}
	if err := sb.Store.Seed(seed); err != nil {
		logger.Error("failed to apply seed", zap.Error(err))
		return 1
	}
	logger.Info("seed loaded",
		zap.Int("records", len(seed)),
		zap.Int64("lastSequenceId", sb.Store.LastSequenceID()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Serve(ctx, ":"+cfg.Port, sb.Handler(), logger); err != nil {
		logger.Error("server error", zap.Error(err))
		return 1
	}
	return 0
}
