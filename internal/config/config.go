package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvAPIURL    = "SUPPORTCHAT_API_URL"
	EnvStatePath = "SUPPORTCHAT_STATE_PATH"
	EnvConfig    = "SUPPORTCHAT_CONFIG"
)

// DefaultWelcome is shown when the backend settings cannot be fetched.
const DefaultWelcome = "Hello! How can I help you today?"

// Config holds application configuration
type Config struct {
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Debug     bool            `yaml:"debug"`
}

// APIConfig points the front-ends at the remote support API
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"-"` // zero means no timeout

	TimeoutRaw string `yaml:"timeout"`
}

// StorageConfig locates the durable local state (session, active conversation)
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ChatConfig holds chat client behaviour
type ChatConfig struct {
	// WelcomeMessage overrides the backend's welcome_message when set.
	WelcomeMessage  string        `yaml:"welcome_message"`
	FallbackWelcome string        `yaml:"fallback_welcome"`
	NoticeDuration  time.Duration `yaml:"-"`

	NoticeDurationRaw string `yaml:"notice_duration"`
}

// LoggingConfig holds log file configuration
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// TelemetryConfig holds OpenTelemetry exporter configuration
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
		},
		Storage: StorageConfig{
			Path: "~/.config/supportchat/state.db",
		},
		Chat: ChatConfig{
			FallbackWelcome: DefaultWelcome,
			NoticeDuration:  3 * time.Second,
		},
		Logging: LoggingConfig{
			Dir:   "logs",
			File:  "supportchat.log",
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			Dir:         "logs",
			ServiceName: "supportchat",
		},
	}
}

// Load reads the YAML file at path on top of Default. An empty path skips the
// file. Environment variables in the form ${VAR_NAME} are expanded, and the
// SUPPORTCHAT_* variables override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	expanded, err := homedir.Expand(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding storage.path: %w", err)
	}
	cfg.Storage.Path = expanded

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Chat.NoticeDuration < 0 {
		return fmt.Errorf("chat.notice_duration must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvStatePath); v != "" {
		cfg.Storage.Path = v
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.API.TimeoutRaw != "" {
		cfg.API.Timeout, err = time.ParseDuration(cfg.API.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing api.timeout %q: %w", cfg.API.TimeoutRaw, err)
		}
	}

	if cfg.Chat.NoticeDurationRaw != "" {
		cfg.Chat.NoticeDuration, err = time.ParseDuration(cfg.Chat.NoticeDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing chat.notice_duration %q: %w", cfg.Chat.NoticeDurationRaw, err)
		}
	}

	return nil
}
