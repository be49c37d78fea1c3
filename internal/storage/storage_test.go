package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"

	"github.com/efddrsn/cartorio-AI/constants"
	"github.com/efddrsn/cartorio-AI/internal/common"
)

type fakePublisher struct {
	failures int
	err      error
	calls    int
	keys     []string
}

func (f *fakePublisher) Publish(_ context.Context, key string, _ Artifact) (string, error) {
	f.calls++
	f.keys = append(f.keys, key)
	if f.calls <= f.failures {
		return "", f.err
	}
	return ObjectURL("bucket", "cartorio/"+key), nil
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestArtifactNames(t *testing.T) {
	a := NewOCRText("doc_20240309_140507_abcd1234", "texto\n")
	if a.Key() != "ocr/doc_20240309_140507_abcd1234_ocr.txt" {
		t.Fatalf("key = %q", a.Key())
	}
	r, err := NewRecord("doc", map[string]any{"zona": "Área & <Centro>"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Key() != "json/doc_data.json" || r.Kind != constants.ArtifactJSONRecord {
		t.Fatalf("record = %+v", r)
	}
	if string(r.Data) != "{\n  \"zona\": \"Área & <Centro>\"\n}" {
		t.Fatalf("data = %q", r.Data)
	}
}

func TestLocalStoreSaveOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	name, err := s.Save(ctx, NewOCRText("doc", "linha 1\n"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if b, err := os.ReadFile(filepath.Join(dir, name)); err != nil || string(b) != "linha 1\n" {
		t.Fatalf("on disk = %q, %v", b, err)
	}
	rc, err := s.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "linha 1\n" {
		t.Fatalf("read = %q", b)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "..", "../secret.txt", "a/b.txt", `a\b.txt`, ".env"} {
		if _, err := s.Open(context.Background(), name); !errors.Is(err, common.ErrInvalidInput) {
			t.Errorf("Open(%q) err = %v", name, err)
		}
	}
	if _, err := s.Open(context.Background(), "missing.txt"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestLocalStoreAcceptsInnerDots(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	name, err := s.Save(ctx, NewOCRText("matricula..v2_20261016_101010_abcd1234", "texto"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	rc, err := s.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open(%q): %v", name, err)
	}
	_ = rc.Close()
}

func TestPersistRetriesThenPublishes(t *testing.T) {
	pub := &fakePublisher{failures: 2, err: errors.New("connection reset")}
	p := NewPersister(nil, WithPublisher(pub), WithPublishBackOff(zeroBackOff), WithPublishRetries(3))
	ref := p.Persist(context.Background(), NewOCRText("doc", "x"))
	if pub.calls != 3 {
		t.Fatalf("calls = %d", pub.calls)
	}
	if ref.URL != "https://storage.googleapis.com/bucket/cartorio/ocr/doc_ocr.txt" || !ref.Remote {
		t.Fatalf("ref = %+v", ref)
	}
}

func TestPersistPublishFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocalStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	pub := &fakePublisher{failures: 100, err: errors.New("unavailable")}
	p := NewPersister(nil, WithLocalStore(local), WithPublisher(pub), WithPublishBackOff(zeroBackOff), WithPublishRetries(2))
	ref := p.Persist(context.Background(), NewOCRText("doc", "x"))
	if ref.URL != "" || !ref.Remote {
		t.Fatalf("ref = %+v", ref)
	}
	if ref.File != "doc_ocr.txt" {
		t.Fatalf("local copy missing: %+v", ref)
	}
	if pub.calls != 3 {
		t.Fatalf("calls = %d", pub.calls)
	}
}

func TestPersistPermanentPublishError(t *testing.T) {
	pub := &fakePublisher{failures: 100, err: &googleapi.Error{Code: http.StatusForbidden, Message: "denied"}}
	p := NewPersister(nil, WithPublisher(pub), WithPublishBackOff(zeroBackOff))
	ref := p.Persist(context.Background(), NewOCRText("doc", "x"))
	if pub.calls != 1 || ref.URL != "" {
		t.Fatalf("calls = %d ref = %+v", pub.calls, ref)
	}
}

func TestPersistLocalOnly(t *testing.T) {
	p := NewPersister(nil)
	ref := p.Persist(context.Background(), NewOCRText("doc", "x"))
	if ref.Remote || ref.URL != "" || ref.File != "" {
		t.Fatalf("ref = %+v", ref)
	}
}

func TestPublishErrorClassification(t *testing.T) {
	if !alreadyExists(&googleapi.Error{Code: http.StatusPreconditionFailed}) {
		t.Fatal("412 should count as already published")
	}
	if permanentPublishError(&googleapi.Error{Code: http.StatusServiceUnavailable}) {
		t.Fatal("503 should retry")
	}
	if !permanentPublishError(context.Canceled) {
		t.Fatal("cancellation should stop retries")
	}
	if got := normalizePrefix("/cartorio/"); got != "cartorio/" {
		t.Fatalf("prefix = %q", got)
	}
	if !strings.HasPrefix(ObjectURL("b", "k"), "https://storage.googleapis.com/b/") {
		t.Fatal("object url")
	}
}
