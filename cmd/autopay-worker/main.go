package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stash/internal/amqp"
	"stash/internal/config"
	"stash/internal/event"
	"stash/internal/ledger"
	"stash/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting autopay worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher event.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	alerts := ledger.AlertConfig{
		LargeTransactionCents: cfg.LargeTransactionCents,
		LowBalanceCents:       cfg.LowBalanceCents,
		CriticalBalanceCents:  cfg.CriticalBalanceCents,
	}
	txService := ledger.NewTransactionService(repo, publisher, alerts)
	goalService := ledger.NewGoalService(repo, txService, publisher)
	processor := ledger.NewAutoPayProcessor(repo, goalService, publisher)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run := func(now time.Time) {
		paid, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Auto transfer run failed", "error", err)
			return
		}
		if paid > 0 {
			logger.Info("Auto transfer run made payments", "payments", paid)
		}
	}

	// Run once at startup so restarts do not wait a full interval
	run(time.Now())

	ticker := time.NewTicker(cfg.AutoPayInterval)
	defer ticker.Stop()

	logger.Info("Autopay worker running", "interval", cfg.AutoPayInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Autopay worker shutdown complete")
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
