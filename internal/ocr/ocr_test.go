package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

// fakeRunner renders `pages` images for pdftoppm and answers tesseract from texts.
type fakeRunner struct {
	mu       sync.Mutex
	pages    int
	texts    map[string]string // image base name -> OCR output
	failPage string
	ppmErr   error
	langs    string
	calls    []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()

	switch name {
	case "pdftoppm":
		if f.ppmErr != nil {
			return nil, []byte("Syntax Error: broken"), f.ppmErr
		}
		prefix := args[len(args)-1]
		width := len(fmt.Sprint(f.pages))
		for i := 1; i <= f.pages; i++ {
			p := fmt.Sprintf("%s-%0*d.png", prefix, width, i)
			if err := os.WriteFile(p, []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		if args[0] == "--list-langs" {
			return []byte(f.langs), nil, nil
		}
		base := filepath.Base(args[0])
		if base == f.failPage {
			return nil, []byte("Error in pixReadStream"), errors.New("exit status 1")
		}
		return []byte(f.texts[base]), nil, nil
	}
	return nil, nil, exec.ErrNotFound
}

type stubInspector struct {
	pages int
	err   error
}

func (s stubInspector) Inspect(string) (int, error) { return s.pages, s.err }

func newTestExtractor(r *fakeRunner, insp Inspector, workers int) *Extractor {
	return NewExtractor(Config{Workers: workers}, nil, WithRunner(r), WithInspector(insp))
}

func TestExtractTwoPages(t *testing.T) {
	r := &fakeRunner{
		pages: 2,
		texts: map[string]string{
			"page-1.png": "Rua das Flores, 123\n\f",
			"page-2.png": "Area: 120m²\r\n",
		},
	}
	e := newTestExtractor(r, stubInspector{pages: 2}, 4)
	res, err := e.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != "Rua das Flores, 123\nArea: 120m²\n" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Pages != 2 || res.Language != "por" {
		t.Fatalf("result = %+v", res)
	}
	var sawLang bool
	for _, c := range r.calls {
		if strings.HasPrefix(c, "tesseract ") && strings.Contains(c, "stdout -l por") {
			sawLang = true
		}
		if strings.HasPrefix(c, "pdftoppm ") && !strings.Contains(c, "-r 300 -png doc.pdf") {
			t.Errorf("pdftoppm args = %q", c)
		}
	}
	if !sawLang {
		t.Errorf("tesseract never called with por: %v", r.calls)
	}
}

func TestRecognizeKeepsOrderAndEmptyPages(t *testing.T) {
	const n = 12
	texts := map[string]string{}
	for i := 1; i <= n; i++ {
		if i == 5 {
			continue // blank page
		}
		texts[fmt.Sprintf("page-%02d.png", i)] = fmt.Sprintf("p%d", i)
	}
	r := &fakeRunner{pages: n, texts: texts}
	e := newTestExtractor(r, stubInspector{pages: n}, 3)
	res, err := e.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	segments := strings.Split(strings.TrimSuffix(res.Text, "\n"), "\n")
	if len(segments) != n {
		t.Fatalf("segments = %d, want %d (%q)", len(segments), n, res.Text)
	}
	for i, s := range segments {
		want := fmt.Sprintf("p%d", i+1)
		if i == 4 {
			want = ""
		}
		if s != want {
			t.Fatalf("segment %d = %q, want %q", i, s, want)
		}
	}
}

func TestRecognizeFailedPageAborts(t *testing.T) {
	r := &fakeRunner{pages: 3, texts: map[string]string{"page-1.png": "a", "page-3.png": "c"}, failPage: "page-2.png"}
	e := newTestExtractor(r, stubInspector{pages: 3}, 1)
	res, err := e.Extract(context.Background(), "doc.pdf")
	if err == nil {
		t.Fatal("expected error")
	}
	if common.KindOf(err) != common.KindOCR {
		t.Fatalf("kind = %s", common.KindOf(err))
	}
	if !strings.Contains(err.Error(), "page 2 of 3") {
		t.Fatalf("err = %v", err)
	}
	if res.Text != "" {
		t.Fatalf("partial text leaked: %q", res.Text)
	}
}

func TestRasterizeErrorsAreConversionErrors(t *testing.T) {
	cases := []struct {
		name string
		r    *fakeRunner
		insp stubInspector
		want error
	}{
		{"invalid pdf", &fakeRunner{}, stubInspector{err: errors.New("pdfcpu: no header")}, nil},
		{"encrypted", &fakeRunner{}, stubInspector{err: fmt.Errorf("%w: x", common.ErrEncrypted)}, common.ErrEncrypted},
		{"tool missing", &fakeRunner{ppmErr: exec.ErrNotFound}, stubInspector{pages: 1}, common.ErrToolMissing},
		{"tool failed", &fakeRunner{ppmErr: errors.New("exit status 1")}, stubInspector{pages: 1}, nil},
		{"page mismatch", &fakeRunner{pages: 1}, stubInspector{pages: 2}, nil},
		{"no pages", &fakeRunner{}, stubInspector{pages: 0}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestExtractor(tc.r, tc.insp, 1)
			_, err := e.Extract(context.Background(), "doc.pdf")
			if common.KindOf(err) != common.KindConversion {
				t.Fatalf("err = %v (kind %s)", err, common.KindOf(err))
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestClassifyPDFError(t *testing.T) {
	if err := classifyPDFError(errors.New("pdfcpu: please provide the correct password")); !errors.Is(err, common.ErrEncrypted) {
		t.Fatalf("err = %v", err)
	}
	if err := classifyPDFError(errors.New("pdfcpu: corrupt xref")); errors.Is(err, common.ErrEncrypted) {
		t.Fatalf("err = %v", err)
	}
}

func TestSortPagesNumeric(t *testing.T) {
	prefix := filepath.Join("tmp", "page")
	in := []string{prefix + "-10.png", prefix + "-9.png", prefix + "-1.png"}
	got, err := sortPages(prefix, in)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got[0]) != "page-1.png" || filepath.Base(got[2]) != "page-10.png" {
		t.Fatalf("order = %v", got)
	}
	if _, err := sortPages(prefix, []string{prefix + "-x.png"}); err == nil {
		t.Fatal("expected error for non-numeric page")
	}
}

func TestCleanPage(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"a\r\nb\r\n\f":       "a\nb",
		"\n\nline  \t\n":     "line",
		"x\n\n\n\n\ny":       "x\n\ny",
		"top\n-----\nbottom": "top\n\nbottom",
		"Área: 120m²   ":     "Área: 120m²",
	}
	for in, want := range cases {
		if got := CleanPage(in); got != want {
			t.Errorf("CleanPage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckToolchain(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })

	lookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }
	r := &fakeRunner{langs: "List of available languages in \"/usr/share/tessdata/\" (3):\neng\nosd\npor\n"}
	e := newTestExtractor(r, stubInspector{}, 1)
	if err := e.CheckToolchain(context.Background()); err != nil {
		t.Fatalf("CheckToolchain: %v", err)
	}

	r.langs = "List of available languages (1):\neng\n"
	err := e.CheckToolchain(context.Background())
	if common.KindOf(err) != common.KindConfiguration || !strings.Contains(err.Error(), "por") {
		t.Fatalf("err = %v", err)
	}

	lookPath = func(file string) (string, error) { return "", exec.ErrNotFound }
	err = e.CheckToolchain(context.Background())
	if !errors.Is(err, common.ErrToolMissing) {
		t.Fatalf("err = %v", err)
	}
}
