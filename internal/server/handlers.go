package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/efddrsn/cartorio-AI/constants"
	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/pipeline"
	"github.com/efddrsn/cartorio-AI/internal/storage"
)

// multipartOverhead is the slack allowed on top of the file cap for form framing.
const multipartOverhead = 1 << 20

// Runner processes one uploaded document.
type Runner interface {
	Run(ctx context.Context, name string, r io.Reader) (*pipeline.Outcome, error)
}

// Exporter renders the job ledger as a workbook.
type Exporter interface {
	JobsXLSX(ctx context.Context, limit int) ([]byte, error)
}

// Handler serves the upload API.
type Handler struct {
	runner   Runner
	local    *storage.LocalStore
	exporter Exporter
	maxBytes int64
	ready    atomic.Bool
	logger   *slog.Logger
}

type HandlerOption func(*Handler)

// WithDownloads enables GET /download/{filename} from the local artifact store.
func WithDownloads(s *storage.LocalStore) HandlerOption {
	return func(h *Handler) { h.local = s }
}

// WithExporter enables GET /jobs.xlsx.
func WithExporter(e Exporter) HandlerOption {
	return func(h *Handler) { h.exporter = e }
}

func NewHandler(runner Runner, maxBytes int64, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = constants.MaxUploadBytes
	}
	h := &Handler{runner: runner, maxBytes: maxBytes, logger: logger}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetReady flips the health endpoint between 200 and 503.
func (h *Handler) SetReady(ok bool) { h.ready.Store(ok) }

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, indexData{Field: constants.UploadField, MaxMB: h.maxBytes >> 20}); err != nil {
		h.logger.Error("http.index.failed", "req_id", common.RequestIDFromContext(r.Context()), "error", err)
	}
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	part, err := filePart(r)
	if err != nil {
		status, body := Compose(&pipeline.Outcome{RequestID: common.RequestIDFromContext(ctx)}, err)
		writeJSON(w, status, body, h.logger)
		return
	}
	defer func() { _ = part.Close() }()

	out, err := h.runner.Run(ctx, part.FileName(), part)
	status, body := Compose(out, err)
	if err != nil {
		h.logger.Warn("http.upload.failed", "req_id", common.RequestIDFromContext(ctx), "status", status, "kind", common.KindOf(err))
	}
	writeJSON(w, status, body, h.logger)
}

// filePart streams the multipart body up to the document field.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, common.InputError("No file part", errors.Join(common.ErrInvalidInput, err))
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, common.InputError("No file part", common.ErrInvalidInput)
		}
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, common.InputError("file exceeds size limit", common.ErrTooLarge)
			}
			return nil, common.InputError("malformed multipart body", errors.Join(common.ErrInvalidInput, err))
		}
		if part.FormName() != constants.UploadField {
			_ = part.Close()
			continue
		}
		if part.FileName() == "" {
			_ = part.Close()
			return nil, common.InputError("No selected file", common.ErrInvalidInput)
		}
		return part, nil
	}
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	if h.local == nil {
		http.NotFound(w, r)
		return
	}
	name := chi.URLParam(r, "filename")
	rc, err := h.local.Open(r.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, common.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, common.ErrInvalidInput):
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{"error": http.StatusText(status)}, h.logger)
		return
	}
	defer func() { _ = rc.Close() }()

	ct := "application/octet-stream"
	switch filepath.Ext(name) {
	case ".txt":
		ct = constants.ContentTypeText
	case ".json":
		ct = constants.ContentTypeJSON
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("http.download.copy_failed", "req_id", common.RequestIDFromContext(r.Context()), "name", name, "error", err)
	}
}

func (h *Handler) exportJobs(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		http.NotFound(w, r)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a non-negative integer"}, h.logger)
			return
		}
		limit = n
	}
	b, err := h.exporter.JobsXLSX(r.Context(), limit)
	if err != nil {
		h.logger.Error("http.export.failed", "req_id", common.RequestIDFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "export failed"}, h.logger)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="jobs.xlsx"`)
	_, _ = w.Write(b)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "starting"}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"}, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		logger.Warn("http.response.encode_failed", "error", err)
	}
}
