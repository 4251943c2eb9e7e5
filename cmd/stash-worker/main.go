package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"stash/internal/amqp"
	"stash/internal/config"
	"stash/internal/event"
	"stash/internal/export"
	"stash/internal/export/google"
	"stash/internal/export/memory"
	"stash/internal/storage"
	"stash/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting stash worker")

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

	// The worker exists to consume events; unlike the API it cannot run
	// without AMQP
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err, "url", cfg.AMQPURL)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var writer export.StatementWriter
	if cfg.GoogleSpreadsheetID != "" {
		sheets, err := google.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets writer", "error", err)
			os.Exit(1)
		}
		writer = sheets
		logger.Info("Statement export to Google Sheets enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = memory.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, statement rows stay in memory")
	}

	notifier := worker.NewNotifier(repo)
	exporter := worker.NewExporter(repo, writer, cfg.ExportBatchSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeEvents(gctx, func(e *event.Event) error {
			return notifier.HandleEvent(gctx, e)
		})
	})

	g.Go(func() error {
		return exporter.Run(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Stash worker shutdown complete")
}
