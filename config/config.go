// Package config loads gzweb client configuration from TOML or JSON files,
// applies environment overrides and validates the result before any socket
// is opened.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gazebo-web/gzweb-sub000/errors"
)

// Environment variables that override file-provided values.
const (
	EnvServerURL = "GZWEB_URL"
	EnvAuthKey   = "GZWEB_KEY"
)

// Duration wraps time.Duration so it can be written as "30s" or "1m" in both
// TOML and JSON configuration files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalJSON accepts either a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var asString string
	if err := json.Unmarshal(b, &asString); err == nil {
		return d.UnmarshalText([]byte(asString))
	}
	var asNanos int64
	if err := json.Unmarshal(b, &asNanos); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %w", err)
	}
	d.Duration = time.Duration(asNanos)
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// ServerConfig locates the simulation server.
type ServerConfig struct {
	URL string `toml:"url" json:"url"`
}

// AuthConfig holds the optional authorization key sent during the handshake.
type AuthConfig struct {
	Key string `toml:"key" json:"key"`
}

// ConnectionConfig tunes socket behavior.
type ConnectionConfig struct {
	HandshakeTimeout Duration `toml:"handshake_timeout" json:"handshake_timeout"`

	AutoReconnect         bool     `toml:"auto_reconnect" json:"auto_reconnect"`
	ReconnectMaxAttempts  int      `toml:"reconnect_max_attempts" json:"reconnect_max_attempts"`
	ReconnectInitialDelay Duration `toml:"reconnect_initial_delay" json:"reconnect_initial_delay"`
	ReconnectMaxDelay     Duration `toml:"reconnect_max_delay" json:"reconnect_max_delay"`

	// PublishRateLimit caps outbound publishes per second; zero disables
	// the limiter.
	PublishRateLimit float64 `toml:"publish_rate_limit" json:"publish_rate_limit"`
	PublishBurst     int     `toml:"publish_burst" json:"publish_burst"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Port    int    `toml:"port" json:"port"`
	Path    string `toml:"path" json:"path"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// Config is the full client configuration.
type Config struct {
	Server     ServerConfig     `toml:"server" json:"server"`
	Auth       AuthConfig       `toml:"auth" json:"auth"`
	Connection ConnectionConfig `toml:"connection" json:"connection"`
	Metrics    MetricsConfig    `toml:"metrics" json:"metrics"`
	Logging    LoggingConfig    `toml:"logging" json:"logging"`
}

// DefaultConfig returns sensible defaults for a local simulation server.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			URL: "ws://localhost:7681",
		},
		Connection: ConnectionConfig{
			HandshakeTimeout:      Duration{10 * time.Second},
			AutoReconnect:         false,
			ReconnectMaxAttempts:  60,
			ReconnectInitialDelay: Duration{500 * time.Millisecond},
			ReconnectMaxDelay:     Duration{30 * time.Second},
			PublishBurst:          1,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9091,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path, chosen by file extension (.toml or
// .json), then applies environment overrides. An empty path yields the
// defaults plus environment overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".toml":
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, errors.WrapInvalid(err, "config", "Load", "parse "+path)
			}
		case ".json":
			raw, err := os.ReadFile(path)
			if err != nil {
				return Config{}, errors.Wrap(err, "config", "Load", "read "+path)
			}
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return Config{}, errors.WrapInvalid(err, "config", "Load", "parse "+path)
			}
		default:
			return Config{}, errors.WrapInvalid(
				fmt.Errorf("unsupported config extension %q", ext),
				"config", "Load", "open "+path)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvServerURL); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv(EnvAuthKey); v != "" {
		c.Auth.Key = v
	}
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	invalid := func(detail string) error {
		return errors.WrapInvalid(fmt.Errorf("%s", detail), "config", "Validate", "check configuration")
	}

	if c.Server.URL == "" {
		return invalid("server url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return invalid(fmt.Sprintf("server url %q does not parse: %v", c.Server.URL, err))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return invalid(fmt.Sprintf("server url scheme must be ws or wss, got %q", u.Scheme))
	}

	if c.Connection.HandshakeTimeout.Duration < 0 {
		return invalid("handshake_timeout cannot be negative")
	}
	if c.Connection.AutoReconnect {
		if c.Connection.ReconnectMaxAttempts < 1 {
			return invalid("reconnect_max_attempts must be >= 1 when auto_reconnect is on")
		}
		if c.Connection.ReconnectMaxDelay.Duration < c.Connection.ReconnectInitialDelay.Duration {
			return invalid("reconnect_max_delay must be >= reconnect_initial_delay")
		}
	}
	if c.Connection.PublishRateLimit < 0 {
		return invalid("publish_rate_limit cannot be negative")
	}
	if c.Connection.PublishRateLimit > 0 && c.Connection.PublishBurst < 1 {
		return invalid("publish_burst must be >= 1 when publish_rate_limit is set")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid(fmt.Sprintf("metrics port %d out of range", c.Metrics.Port))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics path must start with /")
		}
	}

	if !logLevels[c.Logging.Level] {
		return invalid(fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return invalid(fmt.Sprintf("log format must be text or json, got %q", c.Logging.Format))
	}

	return nil
}
