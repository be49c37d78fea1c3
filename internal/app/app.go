package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/export"
	"github.com/efddrsn/cartorio-AI/internal/intake"
	"github.com/efddrsn/cartorio-AI/internal/llm"
	"github.com/efddrsn/cartorio-AI/internal/llm/openai"
	"github.com/efddrsn/cartorio-AI/internal/llm/vertex"
	"github.com/efddrsn/cartorio-AI/internal/ocr"
	"github.com/efddrsn/cartorio-AI/internal/pipeline"
	"github.com/efddrsn/cartorio-AI/internal/repository"
	"github.com/efddrsn/cartorio-AI/internal/schema"
	"github.com/efddrsn/cartorio-AI/internal/storage"
)

// App holds the wired pipeline shared by every binary.
type App struct {
	Config    *common.Config
	Schema    *schema.Schema
	OCR       *ocr.Extractor
	Intake    *intake.Intake
	Completer llm.Completer
	Persister *storage.Persister
	Processor *pipeline.Processor

	// DB and Jobs are nil when the ledger is disabled (empty DB_URL).
	DB   *repository.DB
	Jobs repository.ExtractionJobRepository

	logger  *slog.Logger
	closers []func() error
}

// Build wires every stage from cfg. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.OCR = ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	if cfg.OCR.CheckAtStart {
		if err := a.OCR.CheckToolchain(ctx); err != nil {
			return nil, err
		}
	}

	var err error
	a.Schema, err = schema.Load(cfg.Schema.File, cfg.Schema.Sheet, logger)
	if err != nil {
		return nil, err
	}

	a.Completer, err = a.newCompleter(ctx)
	if err != nil {
		return nil, err
	}
	fields := llm.NewExtractor(a.Completer, a.Schema, logger,
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
	)

	a.Persister, err = a.newPersister(ctx)
	if err != nil {
		return nil, err
	}

	var opts []pipeline.Option
	if cfg.Database.DSN != "" {
		a.DB, err = repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
		if err != nil {
			return nil, err
		}
		db := a.DB
		a.closers = append(a.closers, func() error { db.Close(logger); return nil })
		a.Jobs = repository.NewExtractionJobRepository(a.DB, logger)
		opts = append(opts, pipeline.WithLedger(a.Jobs))
	} else {
		logger.Warn("app.ledger.disabled")
	}

	a.Intake = intake.New(cfg.Server.UploadDir, cfg.Server.MaxUploadBytes, logger)
	a.Processor = pipeline.NewProcessor(logger, a.Intake, a.OCR, fields, a.Persister, opts...)

	logger.Info("app.ready",
		"provider", cfg.LLM.Provider,
		"model", a.Completer.Model(),
		"schema", a.Schema.Name(),
		"fields", a.Schema.Len(),
		"ocr_lang", a.OCR.Language(),
		"ledger", a.DB != nil,
		"local_store", a.Persister.Local() != nil,
		"gcs_bucket", cfg.Storage.GCSBucket,
	)
	ok = true
	return a, nil
}

func (a *App) newCompleter(ctx context.Context) (llm.Completer, error) {
	switch a.Config.LLM.Provider {
	case common.ProviderOpenAI:
		httpClient := &http.Client{Timeout: a.Config.LLM.Timeout + 5*time.Second}
		return openai.NewClient(openai.ConfigFrom(a.Config.LLM), httpClient, a.logger), nil
	case common.ProviderVertex:
		c, err := vertex.NewClient(ctx, vertex.ConfigFrom(a.Config.LLM), a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	default:
		return nil, common.ConfigurationError(fmt.Sprintf("unknown LLM provider %q", a.Config.LLM.Provider), nil)
	}
}

// newPersister keeps the local store alongside a GCS publisher; the local
// copy is what survives a failed publish.
func (a *App) newPersister(ctx context.Context) (*storage.Persister, error) {
	sc := a.Config.Storage
	opts := []storage.PersisterOption{storage.WithPublishRetries(sc.PublishMaxRetries)}
	if sc.ArtifactDir != "" {
		local, err := storage.NewLocalStore(sc.ArtifactDir, a.logger)
		if err != nil {
			return nil, common.ConfigurationError("open artifact dir", err)
		}
		opts = append(opts, storage.WithLocalStore(local))
	}
	if sc.GCSBucket != "" {
		pub, err := storage.NewGCSPublisher(ctx, sc.GCSBucket, sc.GCSPrefix, a.logger)
		if err != nil {
			return nil, common.ConfigurationError("create gcs publisher", err)
		}
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, storage.WithPublisher(pub))
	}
	return storage.NewPersister(a.logger, opts...), nil
}

// Exporter returns the ledger workbook service, or nil without a ledger.
func (a *App) Exporter() *export.Service {
	if a.Jobs == nil {
		return nil
	}
	return export.NewService(a.Jobs, a.Schema, a.logger)
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("app.close.failed", "error", err)
	}
}
