package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/schema"
)

// Extractor maps OCR text onto the field schema through a Completer.
type Extractor struct {
	completer  Completer
	schema     *schema.Schema
	timeout    time.Duration
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

type Option func(*Extractor)

func WithTimeout(d time.Duration) Option {
	return func(x *Extractor) {
		if d > 0 {
			x.timeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(x *Extractor) {
		if n >= 0 {
			x.maxRetries = n
		}
	}
}

// WithBackOff overrides the retry schedule (tests use a zero backoff).
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(x *Extractor) {
		if fn != nil {
			x.newBackOff = fn
		}
	}
}

func NewExtractor(c Completer, s *schema.Schema, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Extractor{
		completer:  c,
		schema:     s,
		timeout:    90 * time.Second,
		maxRetries: 3,
		newBackOff: defaultBackOff,
		logger:     logger,
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // bounded by retry count
	return b
}

// ExtractFields runs the completion with retry and returns a schema-complete record.
// Request failures are LLMRequestError (or LLMTimeoutError); unusable output is DecodeError.
func (x *Extractor) ExtractFields(ctx context.Context, text string) (Extraction, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	prompt := BuildPrompt(x.schema, text)

	x.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", x.completer.Model(),
		"text_len", len(text),
		"fields", x.schema.Len(),
		"timeout", x.timeout.String(),
	)

	var (
		raw      string
		attempts int
	)
	op := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, x.timeout)
		defer cancel()

		out, err := x.completer.Complete(callCtx, prompt)
		if err == nil {
			raw = out
			return nil
		}
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(common.LLMRequestError("request cancelled", ctx.Err()))
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return backoff.Permanent(common.LLMTimeoutError("completion exceeded "+x.timeout.String(), common.ErrTimeout))
		case !IsRetryable(err):
			return backoff.Permanent(common.LLMRequestError("completion request failed", err))
		}
		x.logger.Warn("llm.extract.retry", "req_id", rid, "attempt", attempts, "error", err)
		return common.LLMRequestError("completion request failed", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(x.newBackOff(), uint64(x.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if _, ok := common.AsAppError(err); !ok {
			err = common.LLMRequestError("completion request failed", err)
		}
		x.logger.Error("llm.extract.request_failed",
			"req_id", rid, "attempts", attempts, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Extraction{Model: x.completer.Model(), Attempts: attempts}, err
	}

	rec, err := x.Decode(raw)
	if err != nil {
		x.logger.Error("llm.extract.decode_failed",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Extraction{Raw: raw, Model: x.completer.Model(), Attempts: attempts}, err
	}

	x.logger.Info("llm.extract.ok",
		"req_id", rid,
		"attempts", attempts,
		"found", rec.Found(),
		"fields", x.schema.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Extraction{Record: rec, Raw: raw, Model: x.completer.Model(), Attempts: attempts}, nil
}

// Decode cleans a raw completion and validates it against the schema.
// DecodeErrors carry the original raw text.
func (x *Extractor) Decode(raw string) (schema.Record, error) {
	cleaned := CleanResponse(raw)
	if cleaned == "" {
		return schema.Record{}, common.DecodeError("empty completion", raw, common.ErrNotJSONObject)
	}
	rec, err := x.schema.Validate([]byte(cleaned))
	if err != nil {
		if ae, ok := common.AsAppError(err); ok {
			ae.Raw = raw
		}
		return schema.Record{}, err
	}
	return rec, nil
}
