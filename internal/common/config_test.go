package common

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "OPENAI_MODEL", "OCR_LANG", "MAX_UPLOAD_BYTES", "LLM_TIMEOUT", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Fatalf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.OCR.Language != "por" {
		t.Errorf("ocr lang = %q", cfg.OCR.Language)
	}
	if cfg.Server.MaxUploadBytes != 16<<20 {
		t.Errorf("max upload = %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.LLM.Timeout != 90*time.Second {
		t.Errorf("timeout = %s", cfg.LLM.Timeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Vertex")
	t.Setenv("VERTEX_MODEL", "gemini-test")
	t.Setenv("OCR_DPI", "150")
	t.Setenv("CORS_ORIGINS", "http://a, http://b ,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadConfig()
	if cfg.LLM.Provider != ProviderVertex || cfg.LLM.Model != "gemini-test" {
		t.Fatalf("llm = %+v", cfg.LLM)
	}
	if cfg.OCR.DPI != 150 {
		t.Errorf("dpi = %d", cfg.OCR.DPI)
	}
	if got := strings.Join(cfg.Server.CORSOrigins, "|"); got != "http://a|http://b" {
		t.Errorf("cors = %q", got)
	}
	if cfg.LogLevel.String() != "DEBUG" {
		t.Errorf("level = %s", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("LLM_PROVIDER", "")
		return LoadConfig()
	}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing key", mutate: func(c *Config) { c.LLM.APIKey = "" }, wantErr: "OPENAI_API_KEY"},
		{name: "bad provider", mutate: func(c *Config) { c.LLM.Provider = "other" }, wantErr: "LLM_PROVIDER"},
		{name: "vertex without project", mutate: func(c *Config) {
			c.LLM.Provider = ProviderVertex
			c.LLM.VertexProject = ""
		}, wantErr: "VERTEX_PROJECT"},
		{name: "zero upload cap", mutate: func(c *Config) { c.Server.MaxUploadBytes = 0 }, wantErr: "MAX_UPLOAD_BYTES"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want mention of %s", err, tc.wantErr)
			}
			if KindOf(err) != KindConfiguration {
				t.Errorf("kind = %s", KindOf(err))
			}
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := DecodeError("bad json", "{oops", ErrNotJSONObject)
	wrapped := WrapError(base, "extract")
	if KindOf(wrapped) != KindDecode {
		t.Fatalf("kind = %s", KindOf(wrapped))
	}
	ae, ok := AsAppError(wrapped)
	if !ok || ae.Raw != "{oops" {
		t.Fatalf("raw not preserved: %+v", ae)
	}
	if !errors.Is(wrapped, ErrNotJSONObject) {
		t.Fatal("sentinel lost through wrapping")
	}
	if InputError("x", nil).HTTPStatus() != 400 || OCRError("x", nil).HTTPStatus() != 500 {
		t.Fatal("unexpected status mapping")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("plain errors should be internal")
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("OCR_CHECK_TOOLCHAIN", "false")
	if LoadConfig().OCR.CheckAtStart {
		t.Fatal("expected toolchain check disabled")
	}
	t.Setenv("OCR_CHECK_TOOLCHAIN", "not-a-bool")
	if !LoadConfig().OCR.CheckAtStart {
		t.Fatal("invalid value should fall back to default")
	}
}
