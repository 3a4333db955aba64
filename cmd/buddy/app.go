package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"buddy/internal/attachment"
	"buddy/internal/commands"
	"buddy/internal/config"
	"buddy/internal/conversation"
	"buddy/internal/crypto"
	"buddy/internal/dispatch"
	"buddy/internal/metrics"
	"buddy/internal/providers"
	"buddy/internal/providers/registry"
	"buddy/internal/session"
	"buddy/internal/storage"
	"buddy/internal/voice"
)

type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	creds   *config.Credentials
	backend storage.Backend
	reg     *registry.Registry
	ctrl    *session.Controller
	httpSrv *http.Server

	voiceReady  bool
	speechReady bool
}

func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTP.ClientTimeout}
}

// providerClientTimeout widens http.client_timeout to the longest provider
// timeout, so the per-call deadline set by the registry is the one that fires.
func providerClientTimeout(cfg *config.Config) time.Duration {
	t := cfg.HTTP.ClientTimeout
	if t <= 0 {
		return 0
	}
	for _, s := range registry.Defaults() {
		t = max(t, s.GenerateTimeout, s.TestTimeout)
	}
	for _, p := range cfg.Providers {
		t = max(t, p.GenerateTimeout, p.TestTimeout)
	}
	return t
}

func newRegistry(ctx context.Context, cfg *config.Config, creds *config.Credentials, logger zerolog.Logger) *registry.Registry {
	return registry.New(ctx, registry.Options{
		Providers:  cfg.ProviderConfigs(creds),
		HTTPClient: &http.Client{Timeout: providerClientTimeout(cfg)},
		Logger:     logger.With().Str("component", "providers").Logger(),
	})
}

// historyKeyAccount is the keyring account holding the history key.
const historyKeyAccount = "history-key"

func openHistory(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	h := cfg.History
	var sealer storage.Sealer
	if h.Encrypt {
		key, err := crypto.KeyringKey(cfg.Keyring.Service, historyKeyAccount)
		if err != nil {
			return nil, fmt.Errorf("history key: %w", err)
		}
		s, err := crypto.NewSealer(historyKeyAccount, map[string][]byte{historyKeyAccount: key})
		if err != nil {
			return nil, err
		}
		sealer = s
	}
	return storage.Open(ctx, storage.Options{
		Backend:       h.Backend,
		Path:          h.Path,
		DSN:           h.DSN,
		AutoMigrate:   h.AutoMigrate,
		RedisAddr:     h.RedisAddr,
		RedisPassword: h.RedisPassword,
		RedisDB:       h.RedisDB,
		RedisKey:      h.RedisKey,
		Sealer:        sealer,
	})
}

// buildApp wires every component of an interactive session. Optional parts
// that cannot start (history backend, microphone, speech) are logged and left
// out rather than failing the session.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	a.creds = config.NewCredentials(cfg.Keyring, logger)
	a.reg = newRegistry(ctx, cfg, a.creds, logger)

	backend, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.History.Backend).Msg("history backend unavailable, running without persistence")
	} else {
		a.backend = backend
	}

	dcfg := dispatch.Config{
		Backend: a.reg,
		Logger:  logger.With().Str("component", "dispatch").Logger(),
	}
	if l := a.newListener(); l != nil {
		dcfg.Listener = l
		a.voiceReady = true
	}
	speaker := &voice.CommandSpeaker{Command: cfg.Voice.TTSCommand, Rate: cfg.Voice.TTSRate, Logger: logger}
	if speaker.Available() {
		dcfg.Speaker = speaker
		a.speechReady = true
	} else {
		logger.Info().Msg("speech command not found, speech output disabled")
	}

	var persister conversation.Persister
	if a.backend != nil {
		persister = a.backend
	}
	a.ctrl = session.New(session.Config{
		Store:      conversation.NewStore(),
		Persister:  persister,
		Providers:  a.reg,
		Dispatcher: dispatch.New(dcfg),
		Attachments: attachment.NewSet(attachment.Reader{
			MaxBytes: cfg.Attachments.MaxBytes,
			MaxChars: cfg.Attachments.MaxChars,
			MaxPages: cfg.Attachments.MaxPages,
		}),
		Interceptor:     commands.Interceptor{Jokes: commands.EmbeddedJokes},
		Window:          cfg.Prompt.Window,
		DefaultProvider: providers.ID(cfg.DefaultProvider),
		TTS:             cfg.Voice.TTS && a.speechReady,
		Capabilities: map[string]bool{
			"Voice input":     a.voiceReady,
			"Speech output":   a.speechReady,
			"PDF attachments": true,
			"Chat history":    a.backend != nil,
		},
		Logger: logger.With().Str("component", "session").Logger(),
	})
	return a, nil
}

// newListener returns nil when voice input is off, the recorder is missing or
// no transcription key is configured.
func (a *app) newListener() *voice.Listener {
	vc := a.cfg.Voice
	if !vc.Enabled {
		return nil
	}
	rec := &voice.Recorder{
		Command:       vc.RecordCommand,
		Args:          vc.RecordArgs,
		ListenTimeout: vc.ListenTimeout,
		PhraseLimit:   vc.PhraseLimit,
		Logger:        a.logger,
	}
	if !rec.Available() {
		a.logger.Info().Msg("recording command not found, voice input disabled")
		return nil
	}
	key := a.creds.Resolve(providers.Groq, a.cfg.Providers[string(providers.Groq)].APIKey)
	if key == "" {
		a.logger.Info().Msg("no transcription key, voice input disabled")
		return nil
	}
	return &voice.Listener{
		Capturer: rec,
		Recognizer: &voice.WhisperRecognizer{
			BaseURL:    vc.TranscribeURL,
			APIKey:     key,
			Model:      vc.TranscribeModel,
			Language:   vc.Language,
			HTTPClient: newHTTPClient(a.cfg),
			Logger:     a.logger,
		},
		Logger: a.logger,
	}
}

// startMetrics serves the Prometheus endpoint when metrics.addr is set.
func (a *app) startMetrics() {
	mc := a.cfg.Metrics
	if mc.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(mc.Path, metrics.Handler())
	a.httpSrv = &http.Server{
		Addr:              mc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info().Str("addr", mc.Addr).Msg("metrics server started")
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func (a *app) stopMetrics(ctx context.Context) {
	if a.httpSrv == nil {
		return
	}
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("failed to stop metrics server")
	}
}

func (a *app) close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close history backend")
		}
	}
}
