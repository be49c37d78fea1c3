package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

// LocalStore keeps artifacts in a flat directory for the download endpoint.
type LocalStore struct {
	fs      afs.Service
	baseURL string
	logger  *slog.Logger
}

func NewLocalStore(dir string, logger *slog.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, common.ConfigurationError("artifact dir is empty", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, common.ConfigurationError("resolve artifact dir", err)
	}
	return &LocalStore{fs: afs.New(), baseURL: "file://" + filepath.ToSlash(abs), logger: logger}, nil
}

// Save writes a under its name, replacing any previous file.
func (s *LocalStore) Save(ctx context.Context, a Artifact) (string, error) {
	if err := checkName(a.Name); err != nil {
		return "", err
	}
	URL := url.Join(s.baseURL, a.Name)
	if err := s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(a.Data)); err != nil {
		return "", fmt.Errorf("store %s: %w", a.Name, err)
	}
	s.logger.Debug("storage.local.saved", "req_id", common.RequestIDFromContext(ctx), "name", a.Name, "bytes", len(a.Data))
	return a.Name, nil
}

// Open returns the stored artifact. Names with path components are rejected.
func (s *LocalStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	URL := url.Join(s.baseURL, name)
	ok, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if !ok {
		return nil, common.InputError(name+" not found", common.ErrNotFound)
	}
	return s.fs.OpenURL(ctx, URL)
}

func checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return common.InputError("invalid artifact name", common.ErrInvalidInput)
	case strings.ContainsAny(name, `/\`), strings.HasPrefix(name, "."):
		return common.InputError("invalid artifact name "+name, common.ErrInvalidInput)
	}
	return nil
}
