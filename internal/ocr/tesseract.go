package ocr

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

// Recognize OCRs the page images, keeping input order regardless of completion order.
// The first failing page aborts the document.
func (e *Extractor) Recognize(ctx context.Context, pages []string) (Result, error) {
	texts := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, img := range pages {
		g.Go(func() error {
			txt, err := e.recognizePage(gctx, img)
			if err != nil {
				return common.OCRError(fmt.Sprintf("page %d of %d", i+1, len(pages)), err)
			}
			texts[i] = txt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Pages: len(pages), Language: e.cfg.Language}, err
	}

	return Result{
		Text:      JoinPages(texts),
		PageTexts: texts,
		Pages:     len(pages),
		Language:  e.cfg.Language,
	}, nil
}

func (e *Extractor) recognizePage(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Language}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", common.ErrToolMissing, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return CleanPage(string(out)), nil
}
