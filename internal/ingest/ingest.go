package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/efddrsn/cartorio-AI/internal/async"
	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/pipeline"
	"github.com/efddrsn/cartorio-AI/internal/server"
)

// Runner runs the pipeline on one named document.
type Runner interface {
	Run(ctx context.Context, name string, r io.Reader) (*pipeline.Outcome, error)
}

// BatchHandler processes inbox documents and writes each response body
// next to its source as "{name}.result.json".
type BatchHandler struct {
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

var _ async.Handler = (*BatchHandler)(nil)

func NewBatchHandler(runner Runner, logger *slog.Logger) *BatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchHandler{runner: runner, logger: logger, inFlight: map[string]struct{}{}}
}

// Handle skips documents that already have a result or are being processed.
// The returned error is the pipeline's; the result file is written either way.
func (h *BatchHandler) Handle(ctx context.Context, job async.Job) error {
	ctx, rid := common.EnsureRequestID(ctx)
	if !h.claim(job.Path) {
		h.logger.Debug("ingest.skip.in_flight", "req_id", rid, "path", job.Path)
		return nil
	}
	defer h.release(job.Path)

	done, err := hasResult(job.Path)
	if err != nil {
		return fmt.Errorf("stat result for %s: %w", job.Path, err)
	}
	if done {
		h.logger.Debug("ingest.skip.done", "req_id", rid, "path", job.Path)
		return nil
	}

	f, err := os.Open(job.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			h.logger.Info("ingest.skip.gone", "req_id", rid, "path", job.Path)
			return nil
		}
		return fmt.Errorf("open %s: %w", job.Path, err)
	}
	out, runErr := h.runner.Run(ctx, filepath.Base(job.Path), f)
	if err := f.Close(); err != nil {
		h.logger.Warn("ingest.close.failed", "req_id", rid, "path", job.Path, "error", err)
	}

	status, body := server.Compose(out, runErr)
	dst := ResultPath(job.Path)
	if err := writeResult(dst, body); err != nil {
		h.logger.Error("ingest.result.failed", "req_id", rid, "path", dst, "error", err)
		return errors.Join(runErr, err)
	}
	h.logger.Info("ingest.result.written", "req_id", rid, "path", dst, "status", status)
	return runErr
}

func (h *BatchHandler) claim(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inFlight[path]; busy {
		return false
	}
	h.inFlight[path] = struct{}{}
	return true
}

func (h *BatchHandler) release(path string) {
	h.mu.Lock()
	delete(h.inFlight, path)
	h.mu.Unlock()
}

// writeResult writes body through a temp file so readers never see a partial result.
func writeResult(dst string, body map[string]any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".result-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
