package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"snagline/internal/domain"
)

const fileName = "snagline.yml"

// Config models snagline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret       string `yaml:"jwt_secret"`
		TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	} `yaml:"auth"`
	Defaults struct {
		Priority string `yaml:"priority"`
	} `yaml:"defaults"`
	Seed struct {
		Admin struct {
			Name     string `yaml:"name"`
			Email    string `yaml:"email"`
			Password string `yaml:"password"`
		} `yaml:"admin"`
		Demo bool `yaml:"demo"`
	} `yaml:"seed"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig subscribes a URL to new history events.
type WebhookConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Default returns the seed configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v1"
	cfg.Auth.TokenTTLMinutes = 480
	cfg.Defaults.Priority = string(domain.PriorityMedium)
	cfg.Seed.Admin.Name = "Administrator"
	cfg.Seed.Admin.Email = "admin@local.com"
	return cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// Load reads and validates config from workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileName, err)
	}
	return cfg, cfg.Validate()
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must be positive")
	}
	if !domain.Priority(c.Defaults.Priority).Valid() {
		return fmt.Errorf("config.defaults.priority %q is not a known priority", c.Defaults.Priority)
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// DefaultPriority returns the configured default as a typed priority.
func (c *Config) DefaultPriority() domain.Priority {
	return domain.Priority(c.Defaults.Priority)
}
