package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/efddrsn/cartorio-AI/constants"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	OCR      OCRConfig
	Schema   SchemaConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Batch    BatchConfig
	LogLevel slog.Level
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string // empty disables the health probe
	MaxUploadBytes int64
	UploadDir      string
	CORSOrigins    []string
}

// OCRConfig holds rasterization and OCR toolchain configuration
type OCRConfig struct {
	Pdftoppm    string
	Tesseract   string
	Language    string
	DPI         int
	TessdataDir string
	Workers     int

	// CheckAtStart verifies the toolchain before serving.
	CheckAtStart bool
}

// SchemaConfig points at an optional field-definition table.
type SchemaConfig struct {
	File  string
	Sheet string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	VertexProject  string
	VertexLocation string
}

// StorageConfig holds local and remote artifact storage configuration
type StorageConfig struct {
	ArtifactDir       string
	GCSBucket         string
	GCSPrefix         string
	PublishMaxRetries int
}

// DatabaseConfig holds job ledger configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// BatchConfig holds inbox watcher configuration
type BatchConfig struct {
	InboxDir  string
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Debounce  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI))
	model := getEnv("OPENAI_MODEL", "gpt-4o")
	if provider == ProviderVertex {
		model = getEnv("VERTEX_MODEL", "gemini-1.5-pro")
	}
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":5000"),
			GRPCAddr:       getEnv("GRPC_ADDR", ""),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", constants.MaxUploadBytes),
			UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
			CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		OCR: OCRConfig{
			Pdftoppm:    getEnv("PDFTOPPM_PATH", "pdftoppm"),
			Tesseract:   getEnv("TESSERACT_PATH", "tesseract"),
			Language:    getEnv("OCR_LANG", "por"),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			Workers:     getEnvAsInt("OCR_WORKERS", 4),

			CheckAtStart: getEnvAsBool("OCR_CHECK_TOOLCHAIN", true),
		},
		Schema: SchemaConfig{
			File:  getEnv("SCHEMA_FILE", ""),
			Sheet: getEnv("SCHEMA_SHEET", ""),
		},
		LLM: LLMConfig{
			Provider:       provider,
			Model:          model,
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", 90*time.Second),
			MaxRetries:     getEnvAsInt("LLM_MAX_RETRIES", 3),
			VertexProject:  getEnv("VERTEX_PROJECT", getEnv("GOOGLE_CLOUD_PROJECT", "")),
			VertexLocation: getEnv("VERTEX_LOCATION", "us-central1"),
		},
		Storage: StorageConfig{
			ArtifactDir:       getEnv("ARTIFACT_DIR", "artifacts"),
			GCSBucket:         getEnv("GCS_BUCKET", ""),
			GCSPrefix:         getEnv("GCS_PREFIX", ""),
			PublishMaxRetries: getEnvAsInt("PUBLISH_MAX_RETRIES", 3),
		},
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", "file:cartorio.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Batch: BatchConfig{
			InboxDir:  getEnv("INBOX_DIR", "inbox"),
			Workers:   getEnvAsInt("BATCH_WORKERS", 2),
			QueueSize: getEnvAsInt("BATCH_QUEUE_SIZE", 64),
			Timeout:   getEnvAsDuration("BATCH_TIMEOUT", 5*time.Minute),
			Debounce:  getEnvAsDuration("BATCH_DEBOUNCE", 750*time.Millisecond),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(value)); err != nil {
		return defaultValue
	}
	return lvl
}

// Validate checks that credentials and limits required at startup are present.
// Toolchain presence is verified separately by ocr.CheckToolchain.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("LLM_PROVIDER", c.LLM.Provider, OneOf(ProviderOpenAI, ProviderVertex))
	switch c.LLM.Provider {
	case ProviderOpenAI:
		v.Field("OPENAI_API_KEY", c.LLM.APIKey, Required)
		v.Field("OPENAI_BASE_URL", c.LLM.BaseURL, Required)
	case ProviderVertex:
		v.Field("VERTEX_PROJECT", c.LLM.VertexProject, Required)
		v.Field("VERTEX_LOCATION", c.LLM.VertexLocation, Required)
	}
	v.Field("LLM_MODEL", c.LLM.Model, Required)
	v.Field("LLM_TIMEOUT", int64(c.LLM.Timeout), Positive)
	v.Field("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes, Positive)
	v.Field("OCR_LANG", c.OCR.Language, Required)
	v.Field("OCR_DPI", c.OCR.DPI, Positive)
	v.Field("PDFTOPPM_PATH", c.OCR.Pdftoppm, Required)
	v.Field("TESSERACT_PATH", c.OCR.Tesseract, Required)
	return ValidateAndReturnError(v)
}
