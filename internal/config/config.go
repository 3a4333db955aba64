package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"buddy/internal/providers"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	EnvPrefix = "BUDDY"
)

var (
	ErrInvalidBackend  = errors.New("history.backend must be file, sqlite, postgres or redis")
	ErrMissingDSN      = errors.New("history.dsn is required for sql backends")
	ErrInvalidProvider = errors.New("default_provider must be gemini, groq or huggingface")
	ErrInvalidWindow   = errors.New("prompt.window must be > 0")
	ErrInvalidInterval = errors.New("history.autosave_interval must be >= 1s")
	ErrEncryptBackend  = errors.New("history.encrypt needs the file or redis backend")
	ErrEncryptKeyring  = errors.New("history.encrypt needs keyring.enabled")
)

type Config struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
	History         HistoryConfig             `mapstructure:"history"`
	Prompt          PromptConfig              `mapstructure:"prompt"`
	Attachments     AttachmentConfig          `mapstructure:"attachments"`
	Voice           VoiceConfig               `mapstructure:"voice"`
	HTTP            HTTPConfig                `mapstructure:"http"`
	Metrics         MetricsConfig             `mapstructure:"metrics"`
	Log             LogConfig                 `mapstructure:"log"`
	Keyring         KeyringConfig             `mapstructure:"keyring"`
}

type ProviderConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	Endpoint        string        `mapstructure:"endpoint"`
	Model           string        `mapstructure:"model"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
	TestTimeout     time.Duration `mapstructure:"test_timeout"`
}

type HistoryConfig struct {
	Backend          string        `mapstructure:"backend"`
	Path             string        `mapstructure:"path"`
	DSN              string        `mapstructure:"dsn"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
	RedisAddr        string        `mapstructure:"redis_addr"`
	RedisPassword    string        `mapstructure:"redis_password"`
	RedisDB          int           `mapstructure:"redis_db"`
	RedisKey         string        `mapstructure:"redis_key"`
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	// Encrypt seals the snapshot with a key kept in the OS keyring.
	Encrypt bool `mapstructure:"encrypt"`
}

type PromptConfig struct {
	Window int `mapstructure:"window"`
}

type AttachmentConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
	MaxChars int   `mapstructure:"max_chars"`
	MaxPages int   `mapstructure:"max_pages"`
}

type VoiceConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RecordCommand   string        `mapstructure:"record_command"`
	RecordArgs      []string      `mapstructure:"record_args"`
	ListenTimeout   time.Duration `mapstructure:"listen_timeout"`
	PhraseLimit     time.Duration `mapstructure:"phrase_limit"`
	TranscribeURL   string        `mapstructure:"transcribe_url"`
	TranscribeModel string        `mapstructure:"transcribe_model"`
	Language        string        `mapstructure:"language"`
	TTS             bool          `mapstructure:"tts"`
	TTSCommand      string        `mapstructure:"tts_command"`
	TTSRate         int           `mapstructure:"tts_rate"`
}

type HTTPConfig struct {
	ClientTimeout time.Duration `mapstructure:"client_timeout"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type KeyringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Service string `mapstructure:"service"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_provider", string(providers.Gemini))
	for _, id := range providers.All {
		base := "providers." + string(id)
		v.SetDefault(base+".api_key", "")
		v.SetDefault(base+".endpoint", "")
		v.SetDefault(base+".model", "")
		v.SetDefault(base+".generate_timeout", time.Duration(0))
		v.SetDefault(base+".test_timeout", time.Duration(0))
	}

	v.SetDefault("history.backend", BackendFile)
	v.SetDefault("history.path", "chat_history.json")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.auto_migrate", true)
	v.SetDefault("history.redis_addr", "127.0.0.1:6379")
	v.SetDefault("history.redis_password", "")
	v.SetDefault("history.redis_db", 0)
	v.SetDefault("history.redis_key", "buddy:history")
	v.SetDefault("history.autosave_interval", 5*time.Minute)
	v.SetDefault("history.encrypt", false)

	v.SetDefault("prompt.window", 5)

	v.SetDefault("attachments.max_bytes", 5<<20)
	v.SetDefault("attachments.max_chars", 50000)
	v.SetDefault("attachments.max_pages", 5)

	v.SetDefault("voice.enabled", true)
	v.SetDefault("voice.record_command", "")
	v.SetDefault("voice.record_args", []string{})
	v.SetDefault("voice.listen_timeout", 5*time.Second)
	v.SetDefault("voice.phrase_limit", 10*time.Second)
	v.SetDefault("voice.transcribe_url", "https://api.groq.com/openai/v1")
	v.SetDefault("voice.transcribe_model", "whisper-large-v3-turbo")
	v.SetDefault("voice.language", "")
	v.SetDefault("voice.tts", true)
	v.SetDefault("voice.tts_command", "")
	v.SetDefault("voice.tts_rate", 175)

	v.SetDefault("http.client_timeout", 60*time.Second)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "buddy.log")

	v.SetDefault("keyring.enabled", true)
	v.SetDefault("keyring.service", "buddy")
}

// Load reads defaults, then the optional YAML file, then BUDDY_* environment
// variables (BUDDY_HISTORY_BACKEND overrides history.backend).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("buddy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/buddy")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.DefaultProvider = strings.ToLower(strings.TrimSpace(c.DefaultProvider))
	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
}

func (c *Config) Validate() error {
	switch c.History.Backend {
	case BackendFile, BackendRedis:
	case BackendSQLite, BackendPostgres:
		if strings.TrimSpace(c.History.DSN) == "" {
			return ErrMissingDSN
		}
	default:
		return ErrInvalidBackend
	}
	if _, err := providers.ParseID(c.DefaultProvider); err != nil {
		return ErrInvalidProvider
	}
	if c.Prompt.Window <= 0 {
		return ErrInvalidWindow
	}
	if c.History.AutosaveInterval < time.Second {
		return ErrInvalidInterval
	}
	if c.History.Encrypt {
		if c.History.Backend != BackendFile && c.History.Backend != BackendRedis {
			return ErrEncryptBackend
		}
		if !c.Keyring.Enabled {
			return ErrEncryptKeyring
		}
	}
	return nil
}

// ProviderConfigs resolves each provider's settings, filling credentials from
// creds when none is configured.
func (c *Config) ProviderConfigs(creds *Credentials) []providers.Config {
	out := make([]providers.Config, 0, len(providers.All))
	for _, id := range providers.All {
		pc := c.Providers[string(id)]
		key := pc.APIKey
		if creds != nil {
			key = creds.Resolve(id, key)
		}
		out = append(out, providers.Config{
			ID:              id,
			Credential:      key,
			Endpoint:        pc.Endpoint,
			Model:           pc.Model,
			GenerateTimeout: pc.GenerateTimeout,
			TestTimeout:     pc.TestTimeout,
		})
	}
	return out
}
