package ingest

import (
	"path/filepath"
	"strings"

	"github.com/efddrsn/cartorio-AI/constants"
)

// ResultSuffix is appended to a document's base name for its batch result.
const ResultSuffix = ".result.json"

// AllowedExt checks if a file extension is in the allowed set (pdf only).
func AllowedExt(ext string) bool {
	return constants.IsAllowedExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// ResultPath is "{dir}/{name}.result.json" for "{dir}/{name}.pdf".
func ResultPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ResultSuffix
}

func wanted(path string) bool {
	return !IsHidden(path) && AllowedExt(filepath.Ext(path))
}
