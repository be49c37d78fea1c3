package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language    string // tesseract language code, default "por"
	DPI         int    // rasterization DPI, default 300
	TessdataDir string

	// Workers bounds concurrent tesseract processes; 1 runs pages sequentially.
	Workers int
}

// ConfigFrom maps application config onto the OCR config.
func ConfigFrom(c common.OCRConfig) Config {
	return Config{
		Pdftoppm:    c.Pdftoppm,
		Tesseract:   c.Tesseract,
		Language:    c.Language,
		DPI:         c.DPI,
		TessdataDir: c.TessdataDir,
		Workers:     c.Workers,
	}
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Language == "" {
		c.Language = "por"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Result is the text of one document.
type Result struct {
	// Text is every page's text followed by "\n", in page order.
	Text      string
	PageTexts []string
	Pages     int
	Language  string
	Duration  time.Duration
}

// Extractor rasterizes a PDF and recognizes every page.
type Extractor struct {
	cfg        Config
	runner     Runner
	rasterizer *Rasterizer
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the command runner (tests).
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithInspector replaces the PDF preflight (tests).
func WithInspector(i Inspector) Option {
	return func(e *Extractor) {
		if i != nil {
			e.rasterizer.inspector = i
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	e := &Extractor{
		cfg:    cfg,
		runner: ExecRunner{Logger: logger},
		logger: logger,
	}
	e.rasterizer = &Rasterizer{cfg: cfg, inspector: PDFInspector{}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	e.rasterizer.runner = e.runner
	return e
}

// Language is the configured OCR language hint.
func (e *Extractor) Language() string { return e.cfg.Language }

// Extract rasterizes path into a private temp dir and OCRs every page.
// The temp dir is removed on every return path.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	rid := common.RequestIDFromContext(ctx)
	e.logger.Debug("ocr.extract.start", "req_id", rid, "path", path, "lang", e.cfg.Language, "dpi", e.cfg.DPI)

	tmpDir, err := os.MkdirTemp("", "cartorio-pages-*")
	if err != nil {
		return Result{}, fmt.Errorf("create page dir: %w", err)
	}
	defer func(dir string) {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("ocr.cleanup.failed", "req_id", rid, "dir", dir, "error", err)
		}
	}(tmpDir)

	pages, err := e.rasterizer.Rasterize(ctx, path, tmpDir)
	if err != nil {
		e.logger.Error("ocr.rasterize.failed", "req_id", rid, "path", path, "error", err)
		return Result{}, err
	}

	res, err := e.Recognize(ctx, pages)
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Error("ocr.recognize.failed", "req_id", rid, "path", path, "error", err)
		return res, err
	}
	e.logger.Info("ocr.extract.ok",
		"req_id", rid,
		"pages", res.Pages,
		"text_len", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
