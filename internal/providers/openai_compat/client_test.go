package openai_compat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"buddy/internal/providers"
)

func TestBuildPayloadChatCompletions(t *testing.T) {
	c := New(Config{BaseURL: "https://api.groq.com/openai/v1", APIKey: "k"})

	body, endpoint, err := c.buildPayload(providers.ChatRequest{
		Model:        "llama-3.3-70b-versatile",
		SystemPrompt: "You are Buddy, a helpful assistant.",
		UserPrompt:   "hello",
		MaxTokens:    2000,
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if endpoint != "https://api.groq.com/openai/v1/chat/completions" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}

	var payload struct {
		Model       string              `json:"model"`
		Messages    []map[string]string `json:"messages"`
		MaxTokens   int                 `json:"max_tokens"`
		Temperature float64             `json:"temperature"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("expected model llama-3.3-70b-versatile, got %q", payload.Model)
	}
	if len(payload.Messages) != 2 || payload.Messages[0]["role"] != "system" || payload.Messages[1]["content"] != "hello" {
		t.Fatalf("unexpected messages %#v", payload.Messages)
	}
	if payload.MaxTokens != 2000 || payload.Temperature != 0.7 {
		t.Fatalf("unexpected sampling params %d %v", payload.MaxTokens, payload.Temperature)
	}
}

func TestChatSendsBearerAndParsesContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "secret"})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{Model: "m", UserPrompt: "Say ok"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("expected ok, got %q", resp.Text)
	}
}

func TestChatNon2xxIsError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "secret"})
	if _, err := c.Chat(context.Background(), providers.ChatRequest{UserPrompt: "hi"}); err == nil {
		t.Fatalf("expected error on 503")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
}

func TestChatMissingKey(t *testing.T) {
	c := New(Config{BaseURL: "https://example.invalid"})
	_, err := c.Chat(context.Background(), providers.ChatRequest{UserPrompt: "hi"})
	if !errors.Is(err, providers.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
}

func TestParseChatCompletionsMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":   `<html>`,
		"no choices": `{"choices":[]}`,
		"no content": `{"choices":[{"message":{}}]}`,
	} {
		if _, err := parseChatCompletions([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestChatErrorKeepsAPIMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "bad"})
	_, err := c.Chat(context.Background(), providers.ChatRequest{UserPrompt: "hi"})
	if err == nil || err.Error() != "provider status 401: Invalid API Key" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseChatCompletionsContentParts(t *testing.T) {
	text, err := parseChatCompletions([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if text != "a\nb" {
		t.Fatalf("expected joined parts, got %q", text)
	}
}
