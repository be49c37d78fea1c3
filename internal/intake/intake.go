package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/anyascii/go"
	"github.com/google/uuid"

	"github.com/efddrsn/cartorio-AI/constants"
	"github.com/efddrsn/cartorio-AI/internal/common"
)

// TimestampLayout is the second-resolution suffix appended to working names.
const TimestampLayout = "20060102_150405"

// Document is one uploaded file held on local disk for the duration of a request.
type Document struct {
	OriginalName string
	SafeName     string
	// WorkName is "{base}_{timestamp}_{suffix}.pdf" and is unique per invocation.
	WorkName string
	Path     string
	Size     int64
	SHA256   string
}

// Base returns WorkName without its extension; artifact names derive from it.
func (d *Document) Base() string {
	return strings.TrimSuffix(d.WorkName, filepath.Ext(d.WorkName))
}

// Remove deletes the working copy. Safe to call more than once.
func (d *Document) Remove() error {
	if d == nil || d.Path == "" {
		return nil
	}
	if err := os.Remove(d.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Intake validates uploads and stores them under uniquely named working files.
type Intake struct {
	dir       string
	maxBytes  int64
	logger    *slog.Logger
	now       func() time.Time
	newSuffix func() string
}

type Option func(*Intake)

// WithClock overrides the time source used for working names.
func WithClock(now func() time.Time) Option {
	return func(in *Intake) {
		if now != nil {
			in.now = now
		}
	}
}

// WithSuffix overrides the random suffix generator.
func WithSuffix(fn func() string) Option {
	return func(in *Intake) {
		if fn != nil {
			in.newSuffix = fn
		}
	}
}

func New(dir string, maxBytes int64, logger *slog.Logger, opts ...Option) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = constants.MaxUploadBytes
	}
	in := &Intake{
		dir:       dir,
		maxBytes:  maxBytes,
		logger:    logger,
		now:       time.Now,
		newSuffix: shortID,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Accept validates name, copies r into a new working file and returns its descriptor.
// Nothing is left on disk when an error is returned.
func (in *Intake) Accept(ctx context.Context, name string, r io.Reader) (*Document, error) {
	if strings.TrimSpace(name) == "" {
		return nil, common.InputError("no file selected", common.ErrInvalidInput)
	}
	safe := Sanitize(name)
	if safe == "" {
		return nil, common.InputError(fmt.Sprintf("invalid file name %q", name), common.ErrInvalidInput)
	}
	if !constants.IsAllowedExt(filepath.Ext(safe)) {
		return nil, common.InputError("only PDF files are accepted", common.ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	work := WorkingName(safe, in.now(), in.newSuffix())
	path := filepath.Join(in.dir, work)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create working file: %w", err)
	}

	h := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(f, h), io.LimitReader(r, in.maxBytes+1))
	closeErr := f.Close()

	fail := func(e error) (*Document, error) {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			in.logger.Warn("intake.cleanup.failed", "path", path, "error", rmErr)
		}
		return nil, e
	}
	switch {
	case copyErr != nil && isTooLarge(copyErr):
		return fail(common.InputError("file exceeds upload limit", common.ErrTooLarge))
	case copyErr != nil:
		return fail(fmt.Errorf("store upload: %w", copyErr))
	case closeErr != nil:
		return fail(fmt.Errorf("close upload: %w", closeErr))
	case n > in.maxBytes:
		return fail(common.InputError(fmt.Sprintf("file exceeds upload limit of %d bytes", in.maxBytes), common.ErrTooLarge))
	case n == 0:
		return fail(common.InputError("uploaded file is empty", common.ErrEmptyFile))
	}

	doc := &Document{
		OriginalName: name,
		SafeName:     safe,
		WorkName:     work,
		Path:         path,
		Size:         n,
		SHA256:       hex.EncodeToString(h.Sum(nil)),
	}
	in.logger.Info("intake.accepted",
		"req_id", common.RequestIDFromContext(ctx),
		"original", name,
		"work_name", work,
		"bytes", n,
		"sha256", doc.SHA256,
	)
	return doc, nil
}

// Open wraps an existing local file as a Document copy in the working dir.
func (in *Intake) Open(ctx context.Context, path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.InputError(fmt.Sprintf("file not found: %s", path), common.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			in.logger.Warn("intake.close.failed", "path", path, "error", err)
		}
	}(f)
	return in.Accept(ctx, filepath.Base(path), f)
}

// WorkingName builds "{base}_{YYYYMMDD_HHMMSS}_{suffix}{ext}" from a sanitized name.
func WorkingName(safe string, now time.Time, suffix string) string {
	ext := filepath.Ext(safe)
	base := strings.TrimSuffix(safe, ext)
	if base == "" {
		base = "document"
	}
	name := base + "_" + now.Format(TimestampLayout)
	if suffix != "" {
		name += "_" + suffix
	}
	return name + strings.ToLower(ext)
}

var (
	reUnsafe      = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	reUnderscores = regexp.MustCompile(`_+`)
	reDots        = regexp.MustCompile(`\.{2,}`)
)

var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// Sanitize reduces an uploaded name to a safe single path element.
// Returns "" when nothing usable remains.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = anyascii.Transliterate(name)
	name = reUnsafe.ReplaceAllString(name, "_")
	name = reUnderscores.ReplaceAllString(name, "_")
	name = reDots.ReplaceAllString(name, ".")
	name = strings.Trim(name, "_ .")
	if name == "" {
		return ""
	}
	stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	if reservedNames[stem] {
		name = "_" + name
	}
	return name
}

func shortID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
