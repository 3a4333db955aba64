package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ID names one of the fixed set of backends.
type ID string

const (
	Gemini      ID = "gemini"
	Groq        ID = "groq"
	HuggingFace ID = "huggingface"
)

// All lists the known providers in display order.
var All = []ID{Gemini, Groq, HuggingFace}

func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Config is the per-provider settings resolved at startup. Zero values fall
// back to the built-in defaults for the provider.
type Config struct {
	ID              ID
	DisplayName     string
	Credential      string
	Endpoint        string
	Model           string
	GenerateTimeout time.Duration
	TestTimeout     time.Duration
}

type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

type ChatResponse struct {
	Text string
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

var (
	ErrUnavailable       = errors.New("provider unavailable")
	ErrMissingCredential = errors.New("missing api key")
	ErrEmptyResponse     = errors.New("empty response")
)

// DetailLimit caps how much of a remote error reaches the transcript.
const DetailLimit = 50

// Error is the single failure type of a provider call.
type Error struct {
	Provider ID
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Detail())
}

// Detail is the cause text cut to DetailLimit characters.
func (e *Error) Detail() string {
	if e.Cause == nil {
		return "unknown error"
	}
	return Truncate(e.Cause.Error(), DetailLimit)
}

func (e *Error) Unwrap() error { return e.Cause }

func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
