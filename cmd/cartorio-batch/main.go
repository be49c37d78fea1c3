package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/efddrsn/cartorio-AI/internal/app"
	"github.com/efddrsn/cartorio-AI/internal/async"
	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/ingest"
)

func main() {
	var (
		dir  = flag.String("dir", "", "inbox directory (defaults to INBOX_DIR)")
		once = flag.Bool("once", false, "process pending PDFs and exit instead of watching")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := common.LoadConfig()
	if *dir != "" {
		cfg.Batch.InboxDir = *dir
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if err := os.MkdirAll(cfg.Batch.InboxDir, 0o755); err != nil {
		logger.Error("create inbox", "dir", cfg.Batch.InboxDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	q := async.NewWorkerQueue(ingest.NewBatchHandler(a.Processor, logger), logger,
		async.WithWorkers(cfg.Batch.Workers),
		async.WithQueueSize(cfg.Batch.QueueSize),
		async.WithProcessTimeout(cfg.Batch.Timeout),
	)
	defer func() {
		// queued documents get the full per-job timeout to finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Batch.Timeout)
		defer cancel()
		q.Shutdown(shutdownCtx)
	}()

	enqueue := func(path string) bool {
		job := async.Job{Path: path, SubmittedAt: time.Now(), TraceID: uuid.NewString()}
		if err := q.Enqueue(ctx, job); err != nil {
			logger.Warn("enqueue failed", "path", path, "error", err)
			return false
		}
		return true
	}

	if *once {
		pending, err := ingest.Scan(cfg.Batch.InboxDir)
		if err != nil {
			logger.Error("scan inbox", "error", err)
			return
		}
		logger.Info("processing inbox", "dir", cfg.Batch.InboxDir, "pending", len(pending))
		for _, p := range pending {
			if !enqueue(p) {
				return
			}
		}
		return
	}

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Batch.InboxDir},
		InitialScan: true,
		Debounce:    cfg.Batch.Debounce,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("start watcher", "error", err)
		return
	}
	logger.Info("watching inbox", "dir", cfg.Batch.InboxDir, "workers", cfg.Batch.Workers)
	for {
		select {
		case p, ok := <-events:
			if !ok {
				logger.Info("shutting down...")
				return
			}
			enqueue(p)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}
