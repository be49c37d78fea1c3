package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("GCS_BUCKET", "")
	cfg := common.LoadConfig()
	cfg.OCR.CheckAtStart = false
	cfg.Server.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.ArtifactDir = filepath.Join(dir, "artifacts")
	cfg.Database.DSN = "file:" + filepath.Join(dir, "ledger.db")
	return cfg
}

func TestBuildWiresEveryStage(t *testing.T) {
	cfg := testConfig(t)
	a, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Processor == nil || a.Intake == nil || a.OCR == nil {
		t.Fatal("pipeline not wired")
	}
	if a.Completer.Model() != "gpt-4o" {
		t.Errorf("model = %q", a.Completer.Model())
	}
	if a.Schema.Len() != 31 {
		t.Errorf("fields = %d", a.Schema.Len())
	}
	if a.Persister.Local() == nil {
		t.Error("local store missing")
	}
	if a.Jobs == nil || a.Exporter() == nil {
		t.Error("ledger missing")
	}
	if err := a.DB.HealthCheck(context.Background(), 0, nil); err != nil {
		t.Errorf("health: %v", err)
	}
}

func TestBuildWithoutLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DSN = ""
	a, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()
	if a.DB != nil || a.Exporter() != nil {
		t.Fatal("ledger should be disabled")
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "other"
	_, err := Build(context.Background(), cfg, nil)
	if common.KindOf(err) != common.KindConfiguration {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildRejectsBadSchemaFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schema.File = filepath.Join(t.TempDir(), "campos.csv")
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}
