package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

// Inspector validates a PDF before rasterization and reports its page count.
type Inspector interface {
	Inspect(path string) (pages int, err error)
}

// PDFInspector uses pdfcpu in relaxed validation mode.
type PDFInspector struct{}

func (PDFInspector) Inspect(path string) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return 0, classifyPDFError(err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, classifyPDFError(err)
	}
	return n, nil
}

func classifyPDFError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		return fmt.Errorf("%w: %v", common.ErrEncrypted, err)
	}
	return err
}

// Rasterizer renders PDF pages to PNG files with pdftoppm.
type Rasterizer struct {
	cfg       Config
	runner    Runner
	inspector Inspector
	logger    *slog.Logger
}

func NewRasterizer(cfg Config, runner Runner, inspector Inspector, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if inspector == nil {
		inspector = PDFInspector{}
	}
	return &Rasterizer{cfg: cfg.withDefaults(), runner: runner, inspector: inspector, logger: logger}
}

// Rasterize writes one PNG per page into outDir and returns their paths in page order.
// Every failure is a ConversionError.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	expected, err := r.inspector.Inspect(pdfPath)
	if err != nil {
		if errors.Is(err, common.ErrEncrypted) {
			return nil, common.ConversionError("pdf is encrypted and no password was supplied", err)
		}
		return nil, common.ConversionError("not a valid pdf", err)
	}
	if expected == 0 {
		return nil, common.ConversionError("pdf has no pages", nil)
	}

	prefix := filepath.Join(outDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-r", strconv.Itoa(r.cfg.DPI), "-png", pdfPath, prefix)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, common.ConversionError(fmt.Sprintf("%s not found", r.cfg.Pdftoppm), fmt.Errorf("%w: %v", common.ErrToolMissing, err))
		}
		if ctx.Err() != nil {
			return nil, common.ConversionError("rasterization cancelled", ctx.Err())
		}
		return nil, common.ConversionError("pdftoppm failed: "+truncate(strings.TrimSpace(string(errb)), 512), err)
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, common.ConversionError("list rendered pages", err)
	}
	pages, err := sortPages(prefix, matches)
	if err != nil {
		return nil, common.ConversionError("unexpected page file", err)
	}
	if len(pages) == 0 {
		return nil, common.ConversionError("pdftoppm produced no images", nil)
	}
	if len(pages) != expected {
		return nil, common.ConversionError(fmt.Sprintf("rendered %d pages, document has %d", len(pages), expected), nil)
	}
	r.logger.Debug("ocr.rasterize.ok", "req_id", common.RequestIDFromContext(ctx), "pages", len(pages), "dpi", r.cfg.DPI)
	return pages, nil
}

// sortPages orders "prefix-N.png" files by N numerically.
func sortPages(prefix string, paths []string) ([]string, error) {
	type page struct {
		n    int
		path string
	}
	out := make([]page, 0, len(paths))
	for _, p := range paths {
		num := strings.TrimSuffix(strings.TrimPrefix(p, prefix+"-"), ".png")
		n, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, page{n: n, path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	sorted := make([]string, len(out))
	for i, p := range out {
		sorted[i] = p.path
	}
	return sorted, nil
}
