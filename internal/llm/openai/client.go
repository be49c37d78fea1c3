package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/efddrsn/cartorio-AI/internal/llm"
)

const provider = "openai"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float32        `json:"temperature"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
			Refusal *string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete implements llm.Completer via chat/completions with structured output.
// Without a schema in the prompt it falls back to json_object mode.
func (c *Client) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	format := responseFormat{Type: "json_object"}
	if p.Schema != nil {
		format = responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: p.SchemaName, Strict: true, Schema: p.Schema},
		}
	}
	body := chatRequest{
		Model:       c.cfg.Model,
		Temperature: llm.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		ResponseFormat: format,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, provider, endpoint, body, headers, c.logger)
	if err != nil {
		return "", err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", &llm.RequestError{Provider: provider, Err: fmt.Errorf("decode response envelope: %w", err)}
	}
	if len(cc.Choices) == 0 {
		return "", &llm.RequestError{Provider: provider, Err: errors.New("no choices in response")}
	}
	msg := cc.Choices[0].Message
	if msg.Refusal != nil && *msg.Refusal != "" {
		return "", &llm.RequestError{Provider: provider, Err: fmt.Errorf("model refused: %s", *msg.Refusal)}
	}
	if msg.Content == nil {
		return "", nil
	}
	return *msg.Content, nil
}
