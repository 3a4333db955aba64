package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"buddy/internal/providers"
)

type Config struct {
	APIKey string
	// BaseURL overrides the SDK's default endpoint when set.
	BaseURL    string
	HTTPClient *http.Client
}

// contentGenerator is the part of *genai.Models the adapter needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client wraps the native Gemini SDK.
type Client struct {
	models contentGenerator
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, providers.ErrMissingCredential
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{models: c.Models}, nil
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	var genCfg *genai.GenerateContentConfig
	if req.SystemPrompt != "" || req.MaxTokens > 0 || req.Temperature > 0 {
		genCfg = &genai.GenerateContentConfig{}
		if req.SystemPrompt != "" {
			genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
		}
		if req.MaxTokens > 0 {
			genCfg.MaxOutputTokens = int32(req.MaxTokens)
		}
		if req.Temperature > 0 {
			genCfg.Temperature = genai.Ptr(float32(req.Temperature))
		}
	}

	resp, err := c.models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), genCfg)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return providers.ChatResponse{}, providers.ErrEmptyResponse
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return providers.ChatResponse{}, providers.ErrEmptyResponse
	}
	return providers.ChatResponse{Text: text}, nil
}
