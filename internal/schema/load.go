package schema

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/efddrsn/cartorio-AI/constants"
	"github.com/efddrsn/cartorio-AI/internal/common"
)

// Load returns the builtin schema when path is empty, otherwise reads a
// field-definition table (.xlsx or .yaml/.yml).
func Load(path, sheet string, logger *slog.Logger) (*Schema, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		s := Builtin()
		logger.Info("schema.loaded", "source", "builtin", "fields", s.Len())
		return s, nil
	}
	var (
		fields []Field
		err    error
	)
	switch ext := constants.NormalizeExt(filepath.Ext(path)); ext {
	case "xlsx", "xlsm":
		fields, err = readXLSX(path, sheet)
	case "yaml", "yml":
		fields, err = readYAML(path)
	default:
		return nil, common.ConfigurationError(fmt.Sprintf("unsupported schema file type %q", ext), common.ErrUnsupported)
	}
	if err != nil {
		return nil, common.ConfigurationError("read schema file "+path, err)
	}
	s, err := New(constants.SchemaName, fields)
	if err != nil {
		return nil, err
	}
	logger.Info("schema.loaded", "source", path, "fields", s.Len())
	return s, nil
}

// readXLSX reads (field, description) pairs from the first two columns.
// A header row whose first cell reads "campo" or "field" is skipped.
func readXLSX(path, sheet string) ([]Field, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	var fields []Field
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if i == 0 && isHeader(row[0]) {
			continue
		}
		fd := Field{Name: row[0]}
		if len(row) > 1 {
			fd.Description = row[1]
		}
		fields = append(fields, fd)
	}
	return fields, nil
}

func isHeader(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "campo", "campos", "field", "fields", "nome do campo":
		return true
	}
	return false
}

type yamlSchema struct {
	Fields []Field `yaml:"fields"`
}

// readYAML accepts either a top-level list or a {fields: [...]} document.
func readYAML(path string) ([]Field, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if bytes.HasPrefix(b, []byte("-")) {
		var list []Field
		if err := yaml.Unmarshal(b, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var doc yamlSchema
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc.Fields, nil
}

// WriteXLSX writes the schema as a two-column definition table.
func (s *Schema) WriteXLSX(path string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	const sheet = "Campos"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &[]any{"campo", "descricao"}); err != nil {
		return err
	}
	for i, fd := range s.fields {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &[]any{fd.Name, fd.Description}); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
