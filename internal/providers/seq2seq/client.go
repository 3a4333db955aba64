package seq2seq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"buddy/internal/providers"
)

type Config struct {
	// URL is the full model endpoint, e.g. https://api-inference.huggingface.co/models/google/flan-t5-large.
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// Client talks to hosted sequence-to-sequence inference endpoints that take
// {"inputs": ...} and answer with a list of generations.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.ChatResponse{}, providers.ErrMissingCredential
	}
	if strings.TrimSpace(c.cfg.URL) == "" {
		return providers.ChatResponse{}, fmt.Errorf("inference url is empty")
	}

	inputs := req.UserPrompt
	if strings.TrimSpace(req.SystemPrompt) != "" {
		inputs = req.SystemPrompt + " " + req.UserPrompt
	}
	body, err := json.Marshal(map[string]any{"inputs": inputs})
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("marshal inference payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("build inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ChatResponse{}, fmt.Errorf("inference status %d", resp.StatusCode)
	}

	text, err := extractText(b)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

// extractText takes the first generation from a list response. Any other
// valid JSON shape is echoed back as-is.
func extractText(body []byte) (string, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}

	list, ok := raw.([]any)
	if !ok {
		return strings.TrimSpace(string(body)), nil
	}
	if len(list) == 0 {
		return "", fmt.Errorf("empty generation list")
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return "", fmt.Errorf("generation is not an object")
	}
	text, ok := first["generated_text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("missing generated_text in inference response")
	}
	return text, nil
}
