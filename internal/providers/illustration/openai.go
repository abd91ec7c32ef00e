// Package illustration renders page images through an OpenAI images endpoint
// and hands the raw bytes back for durable storage.
package illustration

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

const (
	defaultTimeout = 120 * time.Second
	defaultSize    = "1024x1024"
	maxImageBytes  = 16 << 20
)

// Options controls how the image client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client calls the images API for a single page at a time. The API returns a
// short-lived hosted URL; the client downloads it so the caller can re-upload
// the bytes to durable storage.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	N       int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient constructs an illustration client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("illustration: api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "dall-e-3"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiKey: opts.APIKey, baseURL: baseURL, model: model, client: client}, nil
}

// Generate renders one image for the prompt and returns its bytes and content
// type. All failures wrap domain.ErrIllustration.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	payload := imageRequest{
		Model:   c.model,
		Prompt:  prompt,
		Size:    defaultSize,
		Quality: "standard",
		N:       1,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, "", fmt.Errorf("%w: encode request: %v", domain.ErrIllustration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", &buf)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build request: %v", domain.ErrIllustration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrIllustration, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read response: %v", domain.ErrIllustration, err)
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		detail := apiErr.Error.Message
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, "", fmt.Errorf("%w: upstream status %d: %s", domain.ErrIllustration, resp.StatusCode, detail)
	}

	var out imageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, "", fmt.Errorf("%w: decode response: %v", domain.ErrIllustration, err)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return nil, "", fmt.Errorf("%w: response contains no image", domain.ErrIllustration)
	}

	return c.download(ctx, out.Data[0].URL)
}

// download fetches the generated image from its temporary hosted URL.
func (c *Client) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build download request: %v", domain.ErrIllustration, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: download image: %v", domain.ErrIllustration, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: download status %d", domain.ErrIllustration, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read image bytes: %v", domain.ErrIllustration, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return data, contentType, nil
}
