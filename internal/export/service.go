package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/efddrsn/cartorio-AI/internal/entity"
	"github.com/efddrsn/cartorio-AI/internal/repository"
	"github.com/efddrsn/cartorio-AI/internal/schema"
)

const sheet = "Jobs"

// Service produces XLSX bytes for ledger exports.
type Service struct {
	jobs   repository.ExtractionJobRepository
	schema *schema.Schema
	logger *slog.Logger
}

func NewService(jobs repository.ExtractionJobRepository, s *schema.Schema, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, schema: s, logger: logger}
}

var fixedHeaders = []string{
	"Job ID",
	"File",
	"Status",
	"Pages",
	"Model",
	"Started At",
	"Finished At",
	"Error Kind",
	"Error",
}

// JobsXLSX returns a workbook with one row per job, most recent first,
// followed by one column per schema field.
func (s *Service) JobsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := append(append([]string{}, fixedHeaders...), s.schema.Names()...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, j := range jobs {
		writeJob(f, i+2, j, s.schema)
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // id
	_ = f.SetColWidth(sheet, "B", "B", 48) // file
	_ = f.SetColWidth(sheet, "F", "G", 22) // timestamps
	_ = f.SetColWidth(sheet, "I", "I", 60) // error
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeJob(f *excelize.File, row int, j *entity.ExtractionJob, sc *schema.Schema) {
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(1, j.ID.String())
	write(2, j.FileName)
	write(3, string(j.Status))
	write(4, j.Pages)
	write(5, deref(j.ModelName))
	write(6, j.StartedAt.Format(time.RFC3339))
	if j.FinishedAt != nil {
		write(7, j.FinishedAt.Format(time.RFC3339))
	}
	write(8, deref(j.ErrorKind))
	write(9, truncate(deref(j.ErrorMessage), 140))

	fields := j.Fields()
	for i, name := range sc.Names() {
		if v := fields[name]; v != nil {
			write(len(fixedHeaders)+i+1, *v)
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
