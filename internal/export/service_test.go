package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/efddrsn/cartorio-AI/internal/repository"
	"github.com/efddrsn/cartorio-AI/internal/schema"
)

func TestJobsXLSX(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{DSN: "file:" + filepath.Join(t.TempDir(), "l.db")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close(nil)
	jobs := repository.NewExtractionJobRepository(db, nil)

	ok, _ := jobs.Start(ctx, "ok.pdf")
	_ = jobs.MarkOCR(ctx, ok.ID, 2, "texto")
	_ = jobs.MarkSucceeded(ctx, ok.ID, "gpt-4o", json.RawMessage(`{"zona":"Urbana"}`))
	bad, _ := jobs.Start(ctx, "bad.pdf")
	_ = jobs.MarkFailed(ctx, bad.ID, "conversion", strings.Repeat("é", 200))

	sc := schema.Builtin()
	b, err := NewService(jobs, sc, nil).JobsXLSX(ctx, 0)
	if err != nil {
		t.Fatalf("JobsXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if got := len(rows[0]); got != len(fixedHeaders)+sc.Len() {
		t.Fatalf("header columns = %d", got)
	}

	byFile := map[string][]string{}
	for _, r := range rows[1:] {
		byFile[r[1]] = r
	}
	zonaCol := len(fixedHeaders) + indexOf(sc.Names(), "zona")
	if okRow := byFile["ok.pdf"]; okRow[2] != "LLM_OK" || okRow[zonaCol] != "Urbana" {
		t.Fatalf("ok row = %v", okRow)
	}
	badRow := byFile["bad.pdf"]
	if badRow[2] != "FAILED" || badRow[7] != "conversion" {
		t.Fatalf("bad row = %v", badRow)
	}
	if n := len([]rune(badRow[8])); n != 140 {
		t.Fatalf("error not truncated: %d runes", n)
	}
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}
