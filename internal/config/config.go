package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "tabtask.yml"

// Config models tabtask.yml.
type Config struct {
	Remote struct {
		// URL of a tabtask server. Empty means the workspace database is the
		// remote store, accessed in-process as Owner.
		URL     string        `yaml:"url"`
		Token   string        `yaml:"token"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
		Owner   string        `yaml:"owner"`
	} `yaml:"remote"`
	Retention struct {
		PurgeHorizon    time.Duration `yaml:"purge_horizon"`
		CompletedWindow time.Duration `yaml:"completed_window"`
	} `yaml:"retention"`
	Tabs struct {
		DefaultTitle         string `yaml:"default_title"`
		RestoreFallbackTitle string `yaml:"restore_fallback_title"`
	} `yaml:"tabs"`
	Server struct {
		Addr          string `yaml:"addr"`
		BasePath      string `yaml:"base_path"`
		JWTSecret     string `yaml:"jwt_secret"`
		AllowDevLogin bool   `yaml:"allow_dev_login"`
	} `yaml:"server"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tabtask init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.remote.url must be an absolute http(s) url, got %q", c.Remote.URL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("config.remote.url scheme must be http or https, got %q", u.Scheme)
		}
		if c.Remote.Token != "" && c.Remote.APIKey != "" {
			return fmt.Errorf("config.remote: set token or api_key, not both")
		}
	} else if strings.TrimSpace(c.Remote.Owner) == "" {
		return fmt.Errorf("config.remote.owner is required when remote.url is empty")
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("config.remote.timeout must not be negative")
	}
	if c.Retention.PurgeHorizon <= 0 {
		return fmt.Errorf("config.retention.purge_horizon must be positive")
	}
	if c.Retention.CompletedWindow <= 0 {
		return fmt.Errorf("config.retention.completed_window must be positive")
	}
	if strings.TrimSpace(c.Tabs.DefaultTitle) == "" {
		return fmt.Errorf("config.tabs.default_title is required")
	}
	if strings.TrimSpace(c.Tabs.RestoreFallbackTitle) == "" {
		return fmt.Errorf("config.tabs.restore_fallback_title is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `remote:
  # Leave url empty to keep tabs and tasks in the workspace database.
  url: ""
  token: ""
  api_key: ""
  timeout: 10s
  owner: local

retention:
  purge_horizon: 720h
  completed_window: 168h

tabs:
  default_title: "My Tasks"
  restore_fallback_title: "Restored"

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""
  allow_dev_login: false
`
