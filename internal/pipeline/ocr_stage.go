package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/intake"
	"github.com/efddrsn/cartorio-AI/internal/storage"
)

// runOCR extracts the document text and persists it as the OCR artifact.
func (p *Processor) runOCR(ctx context.Context, doc *intake.Document, out *Outcome) error {
	rid := common.RequestIDFromContext(ctx)
	res, err := p.text.Extract(ctx, doc.Path)
	if err != nil {
		p.logger.Error("pipeline.ocr.failed", "req_id", rid, "file", doc.WorkName, "kind", common.KindOf(err), "error", err)
		return err
	}
	out.OCRDone = true
	out.Text = res.Text
	out.Pages = res.Pages
	p.logger.Info("pipeline.ocr.ok", "req_id", rid, "file", doc.WorkName, "pages", res.Pages, "text_len", len(res.Text))

	if p.jobs != nil && out.JobID != uuid.Nil {
		if err := p.jobs.MarkOCR(ctx, out.JobID, res.Pages, res.Text); err != nil {
			p.logger.Warn("pipeline.ledger.failed", "req_id", rid, "op", "ocr", "error", err)
		}
	}

	ref := p.persister.Persist(ctx, storage.NewOCRText(doc.Base(), res.Text))
	out.OCRRef = &ref
	return nil
}
