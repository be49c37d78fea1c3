package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/efddrsn/cartorio-AI/internal/app"
	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := common.LoadConfig()

	// Structured logger that keeps message and attributes but drops time/level
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var opts []server.HandlerOption
	if local := a.Persister.Local(); local != nil {
		opts = append(opts, server.WithDownloads(local))
	}
	if exp := a.Exporter(); exp != nil {
		opts = append(opts, server.WithExporter(exp))
	}
	h := server.NewHandler(a.Processor, cfg.Server.MaxUploadBytes, logger, opts...)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewRouter(h, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var health *server.HealthServer
	if cfg.Server.GRPCAddr != "" {
		health = server.NewHealthServer(logger)
		go func() {
			if err := health.Serve(ctx, cfg.Server.GRPCAddr); err != nil {
				logger.Error("grpc health serve failed", "error", err)
				stop()
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()
	h.SetReady(true)
	if health != nil {
		health.SetServing(true)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
		}
	}
	h.SetReady(false)
	if health != nil {
		health.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout+30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("stopped")
}
