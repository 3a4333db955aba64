package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"buddy/internal/metrics"
	"buddy/internal/providers"
	"buddy/internal/providers/gemini"
	"buddy/internal/providers/openai_compat"
	"buddy/internal/providers/seq2seq"
)

// Spec is everything needed to call one provider: connection settings plus
// the fixed request shape for live and connectivity calls.
type Spec struct {
	providers.Config

	SystemPrompt  string
	PromptPrefix  string
	MaxTokens     int
	Temperature   float64
	TestPrompt    string
	TestMaxTokens int
}

const assistantPrompt = "You are Buddy, a helpful assistant."

// Defaults returns the built-in table of providers.
func Defaults() map[providers.ID]Spec {
	return map[providers.ID]Spec{
		providers.Gemini: {
			Config: providers.Config{
				ID:              providers.Gemini,
				DisplayName:     "Google Gemini",
				Model:           "gemini-2.0-flash-exp",
				GenerateTimeout: 30 * time.Second,
				TestTimeout:     15 * time.Second,
			},
			TestPrompt: "Say 'ok' only",
		},
		providers.Groq: {
			Config: providers.Config{
				ID:              providers.Groq,
				DisplayName:     "Groq Llama 3.3",
				Endpoint:        "https://api.groq.com/openai/v1",
				Model:           "llama-3.3-70b-versatile",
				GenerateTimeout: 30 * time.Second,
				TestTimeout:     15 * time.Second,
			},
			SystemPrompt:  assistantPrompt,
			MaxTokens:     2000,
			Temperature:   0.7,
			TestPrompt:    "Say ok",
			TestMaxTokens: 10,
		},
		providers.HuggingFace: {
			Config: providers.Config{
				ID:              providers.HuggingFace,
				DisplayName:     "HuggingFace Flan-T5",
				Endpoint:        "https://api-inference.huggingface.co/models",
				Model:           "google/flan-t5-large",
				GenerateTimeout: 60 * time.Second,
				TestTimeout:     30 * time.Second,
			},
			PromptPrefix: "Answer this question as Buddy assistant: ",
			TestPrompt:   "Say ok",
		},
	}
}

// merge overlays the non-zero fields of cfg onto the built-in spec.
func merge(base Spec, cfg providers.Config) Spec {
	if cfg.DisplayName != "" {
		base.DisplayName = cfg.DisplayName
	}
	if cfg.Endpoint != "" {
		base.Endpoint = cfg.Endpoint
	}
	if cfg.Model != "" {
		base.Model = cfg.Model
	}
	if cfg.GenerateTimeout > 0 {
		base.GenerateTimeout = cfg.GenerateTimeout
	}
	if cfg.TestTimeout > 0 {
		base.TestTimeout = cfg.TestTimeout
	}
	base.Credential = cfg.Credential
	return base
}

type BuildOptions struct {
	Spec       Spec
	HTTPClient *http.Client
}

// Build binds an identifier to its adapter.
func Build(ctx context.Context, opts BuildOptions) (providers.Provider, error) {
	if strings.TrimSpace(opts.Spec.Credential) == "" {
		return nil, providers.ErrMissingCredential
	}
	switch opts.Spec.ID {
	case providers.Gemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:     opts.Spec.Credential,
			BaseURL:    opts.Spec.Endpoint,
			HTTPClient: opts.HTTPClient,
		})

	case providers.Groq:
		return openai_compat.New(openai_compat.Config{
			BaseURL:    opts.Spec.Endpoint,
			APIKey:     opts.Spec.Credential,
			HTTPClient: opts.HTTPClient,
		}), nil

	case providers.HuggingFace:
		return seq2seq.New(seq2seq.Config{
			URL:        strings.TrimRight(opts.Spec.Endpoint, "/") + "/" + opts.Spec.Model,
			APIKey:     opts.Spec.Credential,
			HTTPClient: opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q", opts.Spec.ID)
	}
}

type Options struct {
	// Providers holds per-provider overrides; providers not listed still get
	// an entry and resolve as unavailable without a credential.
	Providers  []providers.Config
	HTTPClient *http.Client
	// Clients replaces the built adapter for an identifier.
	Clients map[providers.ID]providers.Provider
	Logger  zerolog.Logger
}

type entry struct {
	spec     Spec
	client   providers.Provider
	buildErr error
	status   providers.Status
}

// Registry owns the provider table and the status of each provider.
type Registry struct {
	mu      sync.RWMutex
	entries map[providers.ID]*entry
	log     zerolog.Logger
}

// Info is a read-only view of one provider for display.
type Info struct {
	ID          providers.ID
	DisplayName string
	Model       string
	Status      providers.Status
}

// New resolves every provider once. Providers without a credential or whose
// client could not be built are marked unavailable.
func New(ctx context.Context, opts Options) *Registry {
	overrides := make(map[providers.ID]providers.Config, len(opts.Providers))
	for _, cfg := range opts.Providers {
		overrides[cfg.ID] = cfg
	}

	r := &Registry{entries: make(map[providers.ID]*entry, len(providers.All)), log: opts.Logger}
	defaults := Defaults()
	for _, id := range providers.All {
		spec := merge(defaults[id], overrides[id])
		e := &entry{spec: spec}

		if c, ok := opts.Clients[id]; ok && c != nil {
			e.client = c
		} else {
			e.client, e.buildErr = Build(ctx, BuildOptions{Spec: spec, HTTPClient: opts.HTTPClient})
		}

		if e.buildErr != nil {
			e.status = providers.StatusUnavailable
			r.log.Warn().Str("provider", string(id)).Err(e.buildErr).Msg("provider unavailable")
		} else {
			e.status = providers.StatusConfigured
			r.log.Info().Str("provider", string(id)).Str("model", spec.Model).Msg("provider configured")
		}
		r.entries[id] = e
	}
	return r
}

func (r *Registry) lookup(id providers.ID) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	return e, nil
}

func (r *Registry) unavailable(id providers.ID, e *entry) *providers.Error {
	cause := e.buildErr
	if cause == nil {
		cause = providers.ErrUnavailable
	}
	return &providers.Error{Provider: id, Cause: cause}
}

// Generate sends one prompt to the provider and returns its reply text. Any
// failure is a *providers.Error. Status is left to the caller.
func (r *Registry) Generate(ctx context.Context, id providers.ID, prompt string) (string, error) {
	e, err := r.lookup(id)
	if err != nil {
		return "", &providers.Error{Provider: id, Cause: err}
	}
	if e.client == nil {
		metrics.Global().ObserveGeneration(string(id), metrics.OutcomeUnavailable)
		return "", r.unavailable(id, e)
	}

	ctx, cancel := context.WithTimeout(ctx, e.spec.GenerateTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.Chat(ctx, providers.ChatRequest{
		Model:        e.spec.Model,
		SystemPrompt: e.spec.SystemPrompt,
		UserPrompt:   e.spec.PromptPrefix + prompt,
		MaxTokens:    e.spec.MaxTokens,
		Temperature:  e.spec.Temperature,
	})
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = providers.ErrEmptyResponse
	}
	if err != nil {
		err = timeoutCause(err, e.spec.GenerateTimeout)
		metrics.Global().ObserveGeneration(string(id), metrics.OutcomeError)
		r.log.Warn().Str("provider", string(id)).Dur("elapsed", time.Since(start)).Err(err).Msg("generation failed")
		return "", &providers.Error{Provider: id, Cause: err}
	}

	metrics.Global().ObserveGeneration(string(id), metrics.OutcomeOK)
	r.log.Debug().Str("provider", string(id)).Dur("elapsed", time.Since(start)).Int("chars", len(resp.Text)).Msg("generation done")
	return resp.Text, nil
}

// TestConnection sends the minimal probe request. ok reports success; detail
// is "Connected" or the truncated failure.
func (r *Registry) TestConnection(ctx context.Context, id providers.ID) (bool, string) {
	e, err := r.lookup(id)
	if err != nil {
		return false, providers.Truncate(err.Error(), providers.DetailLimit)
	}
	if e.client == nil {
		metrics.Global().ObserveCheck(string(id), metrics.OutcomeUnavailable)
		return false, r.unavailable(id, e).Detail()
	}

	ctx, cancel := context.WithTimeout(ctx, e.spec.TestTimeout)
	defer cancel()

	_, err = e.client.Chat(ctx, providers.ChatRequest{
		Model:      e.spec.Model,
		UserPrompt: e.spec.TestPrompt,
		MaxTokens:  e.spec.TestMaxTokens,
	})
	if err != nil {
		perr := &providers.Error{Provider: id, Cause: timeoutCause(err, e.spec.TestTimeout)}
		metrics.Global().ObserveCheck(string(id), metrics.OutcomeError)
		r.log.Warn().Str("provider", string(id)).Err(perr).Msg("connectivity check failed")
		return false, perr.Detail()
	}
	metrics.Global().ObserveCheck(string(id), metrics.OutcomeOK)
	return true, "Connected"
}

func timeoutCause(err error, after time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s", after)
	}
	return err
}

// SetStatus records a status transition. Unavailable providers stay
// unavailable for the lifetime of the process.
func (r *Registry) SetStatus(id providers.ID, s providers.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.status == providers.StatusUnavailable {
		return
	}
	e.status = s
}

func (r *Registry) Status(id providers.ID) providers.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.status
	}
	return providers.StatusUnavailable
}

func (r *Registry) DisplayName(id providers.ID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok && e.spec.DisplayName != "" {
		return e.spec.DisplayName
	}
	return string(id)
}

// Info lists the providers in display order.
func (r *Registry) Info() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(providers.All))
	for _, id := range providers.All {
		e := r.entries[id]
		out = append(out, Info{ID: id, DisplayName: e.spec.DisplayName, Model: e.spec.Model, Status: e.status})
	}
	return out
}
