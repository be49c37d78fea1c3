package pipeline

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/intake"
	"github.com/efddrsn/cartorio-AI/internal/storage"
)

// runParse maps the OCR text onto the schema and persists the record.
func (p *Processor) runParse(ctx context.Context, doc *intake.Document, out *Outcome) error {
	rid := common.RequestIDFromContext(ctx)
	ext, err := p.fields.ExtractFields(ctx, out.Text)
	out.Model = ext.Model
	out.Raw = ext.Raw
	if err != nil {
		p.logger.Error("pipeline.parse.failed", "req_id", rid, "file", doc.WorkName, "kind", common.KindOf(err), "error", err)
		return err
	}
	out.Record = ext.Record

	artifact, err := storage.NewRecord(doc.Base(), ext.Record)
	if err != nil {
		return common.NewAppError(common.KindInternal, "ENCODE_ERROR", "encode record", err)
	}
	ref := p.persister.Persist(ctx, artifact)
	out.JSONRef = &ref

	if p.jobs != nil && out.JobID != uuid.Nil {
		// the ledger stores the same bytes that were persisted, minus indentation
		var compact bytes.Buffer
		if err := json.Compact(&compact, artifact.Data); err != nil {
			p.logger.Warn("pipeline.ledger.encode_failed", "req_id", rid, "error", err)
		}
		if err := p.jobs.MarkSucceeded(ctx, out.JobID, ext.Model, compact.Bytes()); err != nil {
			p.logger.Warn("pipeline.ledger.failed", "req_id", rid, "op", "succeed", "error", err)
		}
	}
	return nil
}
