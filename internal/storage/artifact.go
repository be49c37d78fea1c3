package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"

	"github.com/efddrsn/cartorio-AI/constants"
)

// Artifact is one file produced for a document.
type Artifact struct {
	Kind        string // constants.ArtifactOCRText or constants.ArtifactJSONRecord
	Name        string
	ContentType string
	Data        []byte
}

// Key is the logical object key: "{folder}/{name}".
func (a Artifact) Key() string {
	return path.Join(folder(a.Kind), a.Name)
}

// Reference tells the caller where a persisted artifact can be fetched.
type Reference struct {
	Kind string
	Name string
	// Remote is set when a publisher is configured; URL stays empty if publishing failed.
	Remote bool
	URL    string
	// File is the local artifact name served by the download endpoint, if stored.
	File string
}

func folder(kind string) string {
	switch kind {
	case constants.ArtifactOCRText:
		return "ocr"
	case constants.ArtifactJSONRecord:
		return "json"
	}
	return "misc"
}

// OCRTextName and RecordName derive artifact names from a document's working base name.
func OCRTextName(base string) string { return base + "_ocr.txt" }
func RecordName(base string) string  { return base + "_data.json" }

func NewOCRText(base, text string) Artifact {
	return Artifact{
		Kind:        constants.ArtifactOCRText,
		Name:        OCRTextName(base),
		ContentType: constants.ContentTypeText,
		Data:        []byte(text),
	}
}

// NewRecord encodes v with two-space indent; non-ASCII and HTML characters are kept as-is.
func NewRecord(base string, v any) (Artifact, error) {
	b, err := EncodeJSON(v)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Kind:        constants.ArtifactJSONRecord,
		Name:        RecordName(base),
		ContentType: constants.ContentTypeJSON,
		Data:        b,
	}, nil
}

func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
