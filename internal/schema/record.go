package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

// Record holds one value per schema field; nil means "not found in the text".
// Its JSON form lists keys in schema order, so equal records encode to equal bytes.
type Record struct {
	schema *Schema
	values []*string
}

// Get returns the value of key and whether it is non-null.
func (r Record) Get(key string) (string, bool) {
	if r.schema == nil {
		return "", false
	}
	i, ok := r.schema.index[key]
	if !ok || r.values[i] == nil {
		return "", false
	}
	return *r.values[i], true
}

// Keys returns the record's keys in schema order.
func (r Record) Keys() []string {
	if r.schema == nil {
		return nil
	}
	return r.schema.Names()
}

// Found counts non-null values.
func (r Record) Found() int {
	n := 0
	for _, v := range r.values {
		if v != nil {
			n++
		}
	}
	return n
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.schema == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	buf.WriteByte('{')
	for i, f := range r.schema.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(f.Name); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends '\n'
		buf.WriteByte(':')
		if err := enc.Encode(r.values[i]); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Validate turns an untrusted JSON document into a Record.
//
// Unknown keys and non-scalar values are rejected with a DecodeError carrying raw.
// Missing keys become null. Numbers and booleans are kept as their JSON text,
// and the literal string "null" becomes null.
func (s *Schema) Validate(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Record{}, common.DecodeError("response is not valid json", string(raw), err)
	}
	if dec.More() {
		return Record{}, common.DecodeError("trailing data after json object", string(raw), common.ErrNotJSONObject)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Record{}, common.DecodeError("response is not a json object", string(raw), common.ErrNotJSONObject)
	}

	var unknown []string
	for k := range obj {
		if !s.Has(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Record{}, common.DecodeError(
			fmt.Sprintf("unexpected fields: %s", strings.Join(unknown, ", ")),
			string(raw), common.ErrUnknownKey)
	}

	rec := Record{schema: s, values: make([]*string, len(s.fields))}
	normalized := make(map[string]any, len(s.fields))
	for i, f := range s.fields {
		v, present := obj[f.Name]
		if !present {
			normalized[f.Name] = nil
			continue
		}
		str, isNull, err := scalarString(v)
		if err != nil {
			return Record{}, common.DecodeError(fmt.Sprintf("field %q: %v", f.Name, err), string(raw), err)
		}
		if isNull {
			normalized[f.Name] = nil
			continue
		}
		rec.values[i] = &str
		normalized[f.Name] = str
	}

	if err := s.check.validate(normalized); err != nil {
		return Record{}, common.DecodeError("record failed schema validation", string(raw), err)
	}
	return rec, nil
}

func scalarString(v any) (string, bool, error) {
	switch t := v.(type) {
	case nil:
		return "", true, nil
	case string:
		if strings.EqualFold(strings.TrimSpace(t), "null") {
			return "", true, nil
		}
		return t, false, nil
	case json.Number:
		return t.String(), false, nil
	case bool:
		if t {
			return "true", false, nil
		}
		return "false", false, nil
	default:
		return "", false, fmt.Errorf("expected string or null, got %T", v)
	}
}

// NewRecord builds a record from a key/value map, applying the same rules as Validate.
func (s *Schema) NewRecord(values map[string]*string) (Record, error) {
	b, err := json.Marshal(values)
	if err != nil {
		return Record{}, err
	}
	return s.Validate(b)
}
