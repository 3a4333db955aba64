package config

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"

	"buddy/internal/providers"
)

// EnvVars maps each provider to the environment variable holding its key.
var EnvVars = map[providers.ID]string{
	providers.Gemini:      "GEMINI_API_KEY",
	providers.Groq:        "GROQ_API_KEY",
	providers.HuggingFace: "HF_API_KEY",
}

// Credentials looks up API keys: explicit value, then environment, then the
// OS keyring under Service with the provider id as the account.
type Credentials struct {
	Service string
	Keyring bool
	Getenv  func(string) string
	Logger  zerolog.Logger
}

func NewCredentials(cfg KeyringConfig, logger zerolog.Logger) *Credentials {
	return &Credentials{Service: cfg.Service, Keyring: cfg.Enabled, Getenv: os.Getenv, Logger: logger}
}

func (c *Credentials) Resolve(id providers.ID, explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if name, ok := EnvVars[id]; ok {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v
		}
	}
	if !c.Keyring || c.Service == "" {
		return ""
	}
	v, err := keyring.Get(c.Service, string(id))
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			c.Logger.Debug().Err(err).Str("provider", string(id)).Msg("keyring lookup failed")
		}
		return ""
	}
	return strings.TrimSpace(v)
}

// Store saves a key in the OS keyring.
func (c *Credentials) Store(id providers.ID, secret string) error {
	return keyring.Set(c.Service, string(id), secret)
}

// Forget removes a key from the OS keyring.
func (c *Credentials) Forget(id providers.ID) error {
	err := keyring.Delete(c.Service, string(id))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
