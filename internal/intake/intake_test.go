package intake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

func fixedIntake(t *testing.T, max int64) (*Intake, string) {
	t.Helper()
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return New(dir, max, nil, WithClock(clock), WithSuffix(func() string { return "abcd1234" })), dir
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"matrícula 123.pdf":       "matricula_123.pdf",
		"../../etc/passwd.pdf":    "passwd.pdf",
		`C:\Users\x\registro.PDF`: "registro.PDF",
		"  ..hidden.pdf":          "hidden.pdf",
		"a<>b?.pdf":               "a_b_.pdf",
		"con.pdf":                 "_con.pdf",
		"////":                    "",
		"...":                     "",
		"matricula..v2.pdf":       "matricula.v2.pdf",
		"a_..._b.pdf":             "a_._b.pdf",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWorkingName(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := WorkingName("doc.PDF", now, "ff00ff00"); got != "doc_20240102_030405_ff00ff00.pdf" {
		t.Fatalf("got %q", got)
	}
	if got := WorkingName("doc.pdf", now, ""); got != "doc_20240102_030405.pdf" {
		t.Fatalf("got %q", got)
	}
}

func TestAcceptStoresFile(t *testing.T) {
	in, dir := fixedIntake(t, 1024)
	doc, err := in.Accept(context.Background(), "Matrícula Nº 5.pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if doc.WorkName != "Matricula_No_5_20240309_140507_abcd1234.pdf" {
		t.Fatalf("work name = %q", doc.WorkName)
	}
	if doc.Base() != "Matricula_No_5_20240309_140507_abcd1234" {
		t.Fatalf("base = %q", doc.Base())
	}
	if filepath.Dir(doc.Path) != dir {
		t.Fatalf("path outside upload dir: %s", doc.Path)
	}
	b, err := os.ReadFile(doc.Path)
	if err != nil || string(b) != "%PDF-1.4 body" {
		t.Fatalf("stored content = %q, %v", b, err)
	}
	if len(doc.SHA256) != 64 {
		t.Fatalf("sha256 = %q", doc.SHA256)
	}
	if err := doc.Remove(); err != nil {
		t.Fatal(err)
	}
	if err := doc.Remove(); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestAcceptRejects(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		body     string
		sentinel error
	}{
		{"no name", "", "x", common.ErrInvalidInput},
		{"unusable name", "///", "x", common.ErrInvalidInput},
		{"not pdf", "photo.jpg", "x", common.ErrUnsupported},
		{"empty", "doc.pdf", "", common.ErrEmptyFile},
		{"too large", "doc.pdf", strings.Repeat("x", 17), common.ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, dir := fixedIntake(t, 16)
			_, err := in.Accept(context.Background(), tc.fileName, strings.NewReader(tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if common.KindOf(err) != common.KindInput {
				t.Fatalf("kind = %s (%v)", common.KindOf(err), err)
			}
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("err = %v, want %v", err, tc.sentinel)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Fatalf("left %d files behind", len(entries))
			}
		})
	}
}

func TestAcceptMaxBytesReader(t *testing.T) {
	in, dir := fixedIntake(t, 1<<20)
	rec := httptest.NewRecorder()
	body := http.MaxBytesReader(rec, io.NopCloser(bytes.NewReader(make([]byte, 64))), 8)
	_, err := in.Accept(context.Background(), "big.pdf", body)
	if !errors.Is(err, common.ErrTooLarge) {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("left %d files behind", len(entries))
	}
}

func TestOpenMissing(t *testing.T) {
	in, _ := fixedIntake(t, 16)
	_, err := in.Open(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSuffixesDiffer(t *testing.T) {
	a, b := shortID(), shortID()
	if len(a) != 8 || a == b {
		t.Fatalf("suffixes %q %q", a, b)
	}
}
