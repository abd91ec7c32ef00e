// Package narrative generates the ten-page story by calling an OpenAI
// chat-completions endpoint with a structured prompt.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storybook/internal/domain"
)

const defaultTimeout = 90 * time.Second

// Options controls how the OpenAI narrative client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client calls the chat-completions API and parses the fixed-shape story JSON.
// It is a pure transform: one upstream call, no retries, no side effects.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewClient constructs a narrative client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("narrative: api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4-turbo-preview"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiKey: opts.APIKey, baseURL: baseURL, model: model, client: client}, nil
}

// Generate produces the narrative for the given profile. Upstream failures
// wrap domain.ErrGeneration; a successful call whose payload violates the
// ten-page JSON contract wraps domain.ErrMalformedNarrative. The shape is
// never coerced.
func (c *Client) Generate(ctx context.Context, profile domain.ChildProfile, locale string) (*domain.Narrative, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: BuildPrompt(profile, locale)},
		},
		MaxTokens:      2000,
		Temperature:    0.8,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrGeneration, err)
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		detail := apiErr.Error.Message
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: upstream status %d: %s", domain.ErrGeneration, resp.StatusCode, detail)
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response envelope: %v", domain.ErrGeneration, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: response contains no choices", domain.ErrGeneration)
	}

	return parseNarrative(out.Choices[0].Message.Content)
}

// parseNarrative decodes and validates the model's story payload.
func parseNarrative(content string) (*domain.Narrative, error) {
	var narrative domain.Narrative
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &narrative); err != nil {
		return nil, fmt.Errorf("%w: parse story content: %v", domain.ErrMalformedNarrative, err)
	}
	if err := narrative.Validate(); err != nil {
		return nil, err
	}
	return &narrative, nil
}

// stripCodeFence removes markdown fencing some models wrap JSON payloads in.
// Transport framing only; the JSON itself is parsed strictly.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
