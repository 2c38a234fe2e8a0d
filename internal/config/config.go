package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sdlcboard/internal/events"
)

// FileName is the workspace config file.
const FileName = "sdlcboard.yml"

// Config models sdlcboard.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"server" json:"server"`
	Auth struct {
		// DevLogin enables POST /auth/dev/login, which mints tokens for any role.
		DevLogin               bool `yaml:"dev_login" json:"dev_login"`
		AllowLegacyActorHeader bool `yaml:"allow_legacy_actor_header" json:"allow_legacy_actor_header"`
	} `yaml:"auth" json:"auth"`
	Database struct {
		DSN string `yaml:"dsn" json:"dsn,omitempty"`
	} `yaml:"database" json:"database"`
	Refresh struct {
		TimeoutSeconds  int `yaml:"timeout_seconds" json:"timeout_seconds"`
		IntervalSeconds int `yaml:"interval_seconds" json:"interval_seconds"`
	} `yaml:"refresh" json:"refresh"`
	Telemetry struct {
		Exporter string `yaml:"exporter" json:"exporter"`
		LogLevel string `yaml:"log_level" json:"log_level"`
	} `yaml:"telemetry" json:"telemetry"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// RefreshTimeout returns the per-fetch timeout, zero meaning none.
func (c *Config) RefreshTimeout() time.Duration {
	return time.Duration(c.Refresh.TimeoutSeconds) * time.Second
}

// RefreshInterval returns the background refresh period, zero meaning disabled.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalSeconds) * time.Second
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Refresh.TimeoutSeconds < 0 {
		return fmt.Errorf("config.refresh.timeout_seconds must not be negative")
	}
	if c.Refresh.IntervalSeconds < 0 {
		return fmt.Errorf("config.refresh.interval_seconds must not be negative")
	}
	switch c.Telemetry.Exporter {
	case "", "stdout", "none":
	default:
		return fmt.Errorf("config.telemetry.exporter must be stdout or none")
	}
	switch strings.ToLower(c.Telemetry.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.telemetry.log_level %q is not a known level", c.Telemetry.LogLevel)
	}
	known := map[string]bool{}
	for _, t := range events.Types() {
		known[t] = true
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %d has invalid url %q", i, hook.URL)
		}
		for _, evt := range hook.Events {
			if !known[evt] {
				return fmt.Errorf("webhook %d subscribes to unknown event %s", i, evt)
			}
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sdlc config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  dev_login: false
  allow_legacy_actor_header: false

database:
  dsn: ""

refresh:
  timeout_seconds: 10
  interval_seconds: 0

telemetry:
  exporter: none
  log_level: info

webhooks: []
`
