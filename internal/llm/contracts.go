package llm

import (
	"context"

	"github.com/efddrsn/cartorio-AI/internal/schema"
)

// Prompt is one structured-output completion request.
type Prompt struct {
	System string
	User   string
	// SchemaName and Schema constrain the output when the provider supports it.
	SchemaName string
	Schema     map[string]any
}

// Temperature is the sampling temperature every provider sends. Extraction
// is deterministic, so it is not configurable.
const Temperature float32 = 0

// Completer is a text-completion provider. Implementations must send
// Temperature and return the model's raw text.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Model() string
}

// Extraction is a validated record plus what produced it.
type Extraction struct {
	Record   schema.Record
	Raw      string
	Model    string
	Attempts int
}

// FieldExtractor is the interface our pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (Extraction, error)
}
