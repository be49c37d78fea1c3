package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/llm"
)

const provider = "vertex"

// Config for the Vertex AI Gemini client.
type Config struct {
	Project  string
	Location string
	Model    string // default gemini-1.5-pro
}

func ConfigFrom(c common.LLMConfig) Config {
	return Config{
		Project:  c.VertexProject,
		Location: c.VertexLocation,
		Model:    c.Model,
	}
}

// Client implements llm.Completer on Gemini with a JSON response schema.
type Client struct {
	cfg    Config
	base   *genai.Client
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, common.ConfigurationError("vertex project and location must be set", nil)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := genai.NewClient(ctx, cfg.Project, cfg.Location)
	if err != nil {
		return nil, common.ConfigurationError("create vertex client", err)
	}
	return &Client{cfg: cfg, base: base, logger: logger}, nil
}

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

func (c *Client) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	model := c.base.GenerativeModel(c.cfg.Model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	model.GenerationConfig = generationConfig(p)

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		c.logger.Error("llm.vertex.generate_failed", "req_id", common.RequestIDFromContext(ctx), "error", err)
		return "", &llm.RequestError{Provider: provider, Retryable: retryableCode(status.Code(err)), Err: err}
	}
	return responseText(resp), nil
}

func generationConfig(p llm.Prompt) genai.GenerationConfig {
	return genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ResponseSchema(p.Schema),
		Temperature:      genai.Ptr(llm.Temperature),
	}
}

// ResponseSchema converts the record's JSON schema into a Gemini schema.
// Gemini has no additionalProperties, so only properties and required carry over.
func ResponseSchema(js map[string]any) *genai.Schema {
	if js == nil {
		return nil
	}
	out := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	props, _ := js["properties"].(map[string]any)
	for name, v := range props {
		prop := &genai.Schema{Type: genai.TypeString, Nullable: true}
		if m, ok := v.(map[string]any); ok {
			if d, ok := m["description"].(string); ok {
				prop.Description = d
			}
		}
		out.Properties[name] = prop
	}
	if req, ok := js["required"].([]string); ok {
		out.Required = append([]string(nil), req...)
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func retryableCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Aborted:
		return true
	}
	return false
}

var _ llm.Completer = (*Client)(nil)

// String is used in startup logs.
func (c *Client) String() string {
	return fmt.Sprintf("vertex(%s/%s/%s)", c.cfg.Project, c.cfg.Location, c.cfg.Model)
}
