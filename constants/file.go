package constants

import "strings"

// MaxUploadBytes is the default cap for a single uploaded document (16 MiB).
const MaxUploadBytes int64 = 16 << 20

// UploadField is the multipart field carrying the document.
const UploadField = "file"

// Artifact kinds persisted per document.
const (
	ArtifactOCRText    = "ocr_text"
	ArtifactJSONRecord = "json_record"
)

// Content types used when persisting artifacts.
const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeJSON = "application/json"
)

// AllowedExtensions holds the file extensions accepted by intake.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without dot) is accepted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
