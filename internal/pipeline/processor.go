package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/intake"
	"github.com/efddrsn/cartorio-AI/internal/llm"
	"github.com/efddrsn/cartorio-AI/internal/ocr"
	"github.com/efddrsn/cartorio-AI/internal/repository"
	"github.com/efddrsn/cartorio-AI/internal/schema"
	"github.com/efddrsn/cartorio-AI/internal/storage"
)

// TextExtractor turns a PDF on disk into text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (ocr.Result, error)
}

// ArtifactPersister stores a produced artifact; it never fails the request.
type ArtifactPersister interface {
	Persist(ctx context.Context, a storage.Artifact) storage.Reference
}

// Outcome is everything one invocation produced, including partial results on failure.
type Outcome struct {
	RequestID    string
	JobID        uuid.UUID
	OriginalName string
	WorkName     string

	// OCRDone is set once text extraction succeeded; Text may still be empty.
	OCRDone bool
	Text    string
	Pages   int
	OCRRef  *storage.Reference

	Record  schema.Record
	JSONRef *storage.Reference
	Model   string
	// Raw is the model response, kept for decode failures.
	Raw string

	Elapsed time.Duration
}

// Processor coordinates intake, OCR, field extraction and persistence.
type Processor struct {
	logger    *slog.Logger
	intake    *intake.Intake
	text      TextExtractor
	fields    llm.FieldExtractor
	persister ArtifactPersister
	jobs      repository.ExtractionJobRepository
}

type Option func(*Processor)

// WithLedger records every invocation in the job ledger.
func WithLedger(jobs repository.ExtractionJobRepository) Option {
	return func(p *Processor) { p.jobs = jobs }
}

func NewProcessor(logger *slog.Logger, in *intake.Intake, text TextExtractor, fields llm.FieldExtractor, persister ArtifactPersister, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if persister == nil {
		persister = storage.NewPersister(logger)
	}
	p := &Processor{logger: logger, intake: in, text: text, fields: fields, persister: persister}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run accepts an upload and processes it. The returned Outcome is never nil.
func (p *Processor) Run(ctx context.Context, name string, r io.Reader) (*Outcome, error) {
	ctx, rid := common.EnsureRequestID(ctx)
	doc, err := p.intake.Accept(ctx, name, r)
	if err != nil {
		p.logger.Warn("pipeline.intake.rejected", "req_id", rid, "file", name, "error", err)
		return &Outcome{RequestID: rid, OriginalName: name}, err
	}
	return p.Process(ctx, doc)
}

// Process runs OCR then field extraction on doc. doc's working file is
// removed before Process returns, on every path.
func (p *Processor) Process(ctx context.Context, doc *intake.Document) (out *Outcome, err error) {
	ctx, rid := common.EnsureRequestID(ctx)
	start := time.Now()
	out = &Outcome{RequestID: rid, OriginalName: doc.OriginalName, WorkName: doc.WorkName}

	defer func() {
		if rmErr := doc.Remove(); rmErr != nil {
			p.logger.Warn("pipeline.cleanup.failed", "req_id", rid, "path", doc.Path, "error", rmErr)
		}
		out.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			p.logger.Error("pipeline.panic", "req_id", rid, "file", doc.WorkName, "panic", r)
			p.failJob(ctx, out.JobID, common.NewAppError(common.KindInternal, "PANIC",
				fmt.Sprintf("panic during processing: %v", r), common.ErrInternal))
			panic(r)
		}
	}()

	out.JobID = p.startJob(ctx, doc)

	if err := p.runOCR(ctx, doc, out); err != nil {
		p.failJob(ctx, out.JobID, err)
		return out, err
	}
	if err := p.runParse(ctx, doc, out); err != nil {
		p.failJob(ctx, out.JobID, err)
		return out, err
	}

	p.logger.Info("pipeline.ok",
		"req_id", rid,
		"file", doc.WorkName,
		"pages", out.Pages,
		"found", out.Record.Found(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (p *Processor) startJob(ctx context.Context, doc *intake.Document) uuid.UUID {
	if p.jobs == nil {
		return uuid.Nil
	}
	job, err := p.jobs.Start(ctx, doc.WorkName)
	if err != nil {
		p.logger.Warn("pipeline.ledger.failed", "req_id", common.RequestIDFromContext(ctx), "op", "start", "error", err)
		return uuid.Nil
	}
	return job.ID
}

func (p *Processor) failJob(ctx context.Context, jobID uuid.UUID, cause error) {
	if p.jobs == nil || jobID == uuid.Nil {
		return
	}
	// the request context may already be done; the ledger write should still land
	ctx = context.WithoutCancel(ctx)
	if err := p.jobs.MarkFailed(ctx, jobID, string(common.KindOf(cause)), cause.Error()); err != nil {
		p.logger.Warn("pipeline.ledger.failed", "req_id", common.RequestIDFromContext(ctx), "op", "fail", "error", err)
	}
}
