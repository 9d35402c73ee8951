// ABOUTME: Configuration loading for chatctl.
// ABOUTME: YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete chatctl configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Push    PushConfig    `yaml:"push"`
	Archive ArchiveConfig `yaml:"archive"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the conversation API endpoints.
type ServerConfig struct {
	// BaseURL is the REST endpoint, e.g. "http://localhost:8000".
	BaseURL string `yaml:"base_url"`
	// PushURL is the websocket endpoint. Defaults to BaseURL with the
	// scheme switched to ws(s).
	PushURL string `yaml:"push_url"`
}

// PushConfig tunes the push channel's reconnect and heartbeat policy.
type PushConfig struct {
	InitialDelay      time.Duration `yaml:"-"`
	HeartbeatInterval time.Duration `yaml:"-"`
	MaxRetries        int           `yaml:"max_retries"`

	// Raw string values for YAML unmarshaling
	InitialDelayRaw      string `yaml:"initial_delay"`
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
}

// ArchiveConfig controls the optional local transcript mirror.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives a JSON copy of every log line in addition
	// to the terminal output.
	File string `yaml:"file"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
		},
		Archive: ArchiveConfig{
			Path: defaultArchivePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file and returns a parsed Config. Environment
// variables in the ${VAR_NAME} format are expanded before parsing. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultPath returns the config file location under the user's config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "chatctl.yaml"
	}
	return filepath.Join(dir, "chatctl", "config.yaml")
}

func defaultArchivePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "chatctl-archive.db"
	}
	return filepath.Join(dir, "chatctl", "archive.db")
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive is enabled")
	}
	return nil
}

// PushBaseURL returns the websocket endpoint, deriving it from the REST
// endpoint when not set explicitly.
func (c *Config) PushBaseURL() string {
	if c.Server.PushURL != "" {
		return c.Server.PushURL
	}
	return c.Server.BaseURL
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Push.InitialDelayRaw != "" {
		cfg.Push.InitialDelay, err = time.ParseDuration(cfg.Push.InitialDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing initial_delay %q: %w", cfg.Push.InitialDelayRaw, err)
		}
	}

	if cfg.Push.HeartbeatIntervalRaw != "" {
		cfg.Push.HeartbeatInterval, err = time.ParseDuration(cfg.Push.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Push.HeartbeatIntervalRaw, err)
		}
	}

	return nil
}
