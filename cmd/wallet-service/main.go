// Package main is the entry point of the wallet service.
// It owns the wallets: it provisions accounts, applies transfer requests to
// the ledger and answers the account directory.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"wallettx/internal/app"
	"wallettx/internal/config"
	"wallettx/internal/logging"

	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	cfg := config.Load(config.WalletService)

	logger, err := logging.New(config.IsProduction(), cfg.Service)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.ServicePasswordHash == "" {
		logger.Warn("SERVICE_PASSWORD_HASH is not set, the account directory rejects every caller")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Warn("failed to close connections", zap.Error(err))
		}
	}()

	proc, err := app.NewWalletProcess(cfg, infra.Deps)
	if err != nil {
		logger.Fatal("failed to assemble service", zap.Error(err))
	}

	if err := proc.Run(ctx); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}
}
