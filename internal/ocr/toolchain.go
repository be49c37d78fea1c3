package ocr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

var lookPath = exec.LookPath

// CheckToolchain verifies that both binaries resolve and that tesseract has
// the configured language data. Failures are ConfigurationErrors.
func (e *Extractor) CheckToolchain(ctx context.Context) error {
	for _, bin := range []string{e.cfg.Pdftoppm, e.cfg.Tesseract} {
		if _, err := lookPath(bin); err != nil {
			return common.ConfigurationError(
				fmt.Sprintf("%s not found; install poppler-utils and tesseract-ocr or set PDFTOPPM_PATH/TESSERACT_PATH", bin),
				fmt.Errorf("%w: %v", common.ErrToolMissing, err))
		}
	}

	args := []string{"--list-langs"}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return common.ConfigurationError("tesseract --list-langs failed", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(errb))))
	}
	// Older tesseract builds print the list on stderr.
	available := parseLangs(string(out) + "\n" + string(errb))
	for _, lang := range strings.Split(e.cfg.Language, "+") {
		if _, ok := available[lang]; !ok {
			return common.ConfigurationError(
				fmt.Sprintf("tesseract language %q is not installed (tesseract-ocr-%s)", lang, lang),
				common.ErrToolMissing)
		}
	}
	e.logger.Info("ocr.toolchain.ok", "pdftoppm", e.cfg.Pdftoppm, "tesseract", e.cfg.Tesseract, "lang", e.cfg.Language)
	return nil
}

func parseLangs(s string) map[string]struct{} {
	langs := make(map[string]struct{})
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, " ") {
			continue // header: List of available languages in "..." (N):
		}
		langs[line] = struct{}{}
	}
	return langs
}
