package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/anyascii/go"

	"github.com/efddrsn/cartorio-AI/constants"
	"github.com/efddrsn/cartorio-AI/internal/common"
)

// Field is one named attribute of the target record.
type Field struct {
	Name        string `yaml:"field" json:"field"`
	Description string `yaml:"description" json:"description"`
}

// Schema is the ordered, read-only set of fields extracted per document.
// Build it once at startup and share it.
type Schema struct {
	name   string
	fields []Field
	index  map[string]int
	json   map[string]any
	check  *validator
}

var (
	reSeparators  = regexp.MustCompile(`[/\\\s\-]+`)
	reInvalidKey  = regexp.MustCompile(`[^a-z0-9_]+`)
	reUnderscores = regexp.MustCompile(`_+`)
)

// NormalizeName turns a field label into a JSON key: ASCII, lowercase,
// with slashes, whitespace and dashes replaced by underscores.
// It is idempotent.
func NormalizeName(label string) string {
	s := strings.TrimSpace(anyascii.Transliterate(label))
	s = strings.ToLower(s)
	s = reSeparators.ReplaceAllString(s, "_")
	s = reInvalidKey.ReplaceAllString(s, "")
	s = reUnderscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// New normalizes field names and rejects empty or duplicate schemas.
func New(name string, fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, common.ConfigurationError("schema has no fields", common.ErrInvalidInput)
	}
	if name == "" {
		name = constants.SchemaName
	}
	s := &Schema{name: name, fields: make([]Field, 0, len(fields)), index: make(map[string]int, len(fields))}
	for i, f := range fields {
		key := NormalizeName(f.Name)
		if key == "" {
			return nil, common.ConfigurationError(fmt.Sprintf("field %d has an empty name", i+1), common.ErrInvalidInput)
		}
		if _, dup := s.index[key]; dup {
			return nil, common.ConfigurationError(fmt.Sprintf("duplicate field %q (from %q)", key, f.Name), common.ErrInvalidInput)
		}
		s.index[key] = len(s.fields)
		s.fields = append(s.fields, Field{Name: key, Description: strings.TrimSpace(f.Description)})
	}
	s.json = s.buildJSONSchema()
	check, err := newValidator(s.json)
	if err != nil {
		return nil, common.ConfigurationError("compile field schema", err)
	}
	s.check = check
	return s, nil
}

// Builtin returns the default registry schema.
func Builtin() *Schema {
	fields := make([]Field, len(constants.RegistryFields))
	for i, f := range constants.RegistryFields {
		fields[i] = Field{Name: f.Name, Description: f.Description}
	}
	s, err := New(constants.SchemaName, fields)
	if err != nil {
		panic(err) // static table
	}
	return s
}

// Name is the structured-output contract name.
func (s *Schema) Name() string { return s.name }

// Len is the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the fields in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field keys in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Has reports whether key is a schema field.
func (s *Schema) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Describe renders "name: description" lines for prompts.
func (s *Schema) Describe() string {
	var b strings.Builder
	for _, f := range s.fields {
		b.WriteString("- ")
		b.WriteString(f.Name)
		if f.Description != "" {
			b.WriteString(": ")
			b.WriteString(f.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
