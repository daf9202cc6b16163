// Package config loads the daemon's configuration: a YAML file for
// non-secret settings, overridden by environment variables, validated
// before use. LLM, TTS, and webhook credentials are never read from the
// YAML file — only from the environment — so they can never end up
// committed to a config file by accident.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	Notify NotifyConfig `yaml:"notify"`

	// Credentials is populated exclusively from the environment; it is
	// tagged yaml:"-", so the decoder never fills it and
	// decoder.KnownFields(true) rejects a credentials key in a config file.
	Credentials Credentials `yaml:"-"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
}

// StoreConfig configures the durable store.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// AuthConfig configures bearer-key enforcement.
type AuthConfig struct {
	RequireAuth bool `yaml:"require_auth"`
}

// NotifyConfig configures transaction tracking and channel defaults.
type NotifyConfig struct {
	ThresholdMs    int64         `yaml:"threshold_ms"`
	StaleMaxAge    time.Duration `yaml:"stale_max_age"`
	TTSEnabled     bool          `yaml:"tts_enabled"`
	DiscordEnabled bool          `yaml:"discord_enabled"`
	ConsoleEnabled bool          `yaml:"console_enabled"`
}

// Credentials holds secrets sourced only from environment variables.
type Credentials struct {
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	DiscordWebhookURL string
	ElevenLabsAPIKey string
}

// Load reads path (a YAML file), applies defaults, environment overrides,
// validates the result, and loads Credentials from the environment.
//
// development selects the same production/development signal the caller
// uses to pick its slog handler (JSON in production, text in development);
// it decides the built-in default for Auth.RequireAuth before the YAML
// file or REQUIRE_AUTH env var get a chance to override it.
func Load(path string, development bool) (*Config, error) {
	var cfg Config
	applyDefaults(&cfg, development)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		decoder := yaml.NewDecoder(strings.NewReader(expanded))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("config: %s: expected a single YAML document", path)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.Credentials = loadCredentials()

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults seeds cfg with built-in defaults before the YAML file and
// environment overrides are applied, so either can still override them.
func applyDefaults(cfg *Config, development bool) {
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8787
	cfg.Store.DataDir = "./data"
	cfg.Notify.ThresholdMs = 30_000
	cfg.Notify.StaleMaxAge = time.Hour
	// Production runs reject unauthenticated requests unless told otherwise;
	// development runs stay open unless REQUIRE_AUTH says otherwise.
	cfg.Auth.RequireAuth = !development
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("TRAK_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("TRAK_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("TRAK_PUBLIC_URL")); value != "" {
		cfg.Server.PublicURL = value
	}
	if value := strings.TrimSpace(os.Getenv("TRAK_DATA_DIR")); value != "" {
		cfg.Store.DataDir = value
	}
	if value := strings.TrimSpace(os.Getenv("REQUIRE_AUTH")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			cfg.Auth.RequireAuth = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("TRAK_NOTIFY_THRESHOLD_MS")); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			cfg.Notify.ThresholdMs = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("TRAK_STALE_MAX_AGE")); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			cfg.Notify.StaleMaxAge = parsed
		}
	}
}

func loadCredentials() Credentials {
	return Credentials{
		AnthropicAPIKey:   strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		DiscordWebhookURL: strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK_URL")),
		ElevenLabsAPIKey:  strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
	}
}

// ValidationError aggregates every validation issue found, so an operator
// sees the whole list instead of one failure at a time.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		issues = append(issues, "server.port must be in (0,65535]")
	}
	if cfg.Store.DataDir == "" {
		issues = append(issues, "store.data_dir must not be empty")
	}
	if cfg.Notify.ThresholdMs < 0 {
		issues = append(issues, "notify.threshold_ms must not be negative")
	}
	if cfg.Notify.StaleMaxAge <= 0 {
		issues = append(issues, "notify.stale_max_age must be positive")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
