package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models raidbot.yml.
type Config struct {
	Chat struct {
		APIBase       string `yaml:"api_base"`
		Token         string `yaml:"token"`
		WebhookSecret string `yaml:"webhook_secret"`
		TimeoutMS     int    `yaml:"timeout_ms"`
	} `yaml:"chat"`
	Rewards struct {
		MessagePoints  int64 `yaml:"message_points"`
		ReactionPoints int64 `yaml:"reaction_points"`
	} `yaml:"rewards"`
	Limits struct {
		CompletionsPerHour  int `yaml:"completions_per_hour"`
		PerAddress          int `yaml:"per_address"`
		PerAddressWindowMin int `yaml:"per_address_window_minutes"`
	} `yaml:"limits"`
	Broadcast struct {
		PaceMS int `yaml:"pace_ms"`
	} `yaml:"broadcast"`
	Server struct {
		Listen    string `yaml:"listen"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// Default returns the configuration used when no raidbot.yml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Chat.APIBase = "https://chat.invalid/bot"
	cfg.Chat.TimeoutMS = 5000
	cfg.Rewards.MessagePoints = 1
	cfg.Rewards.ReactionPoints = 1
	cfg.Limits.CompletionsPerHour = 5
	cfg.Limits.PerAddress = 3
	cfg.Limits.PerAddressWindowMin = 10
	cfg.Broadcast.PaceMS = 700
	cfg.Server.Listen = ":8080"
	return cfg
}

// Path returns the config path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "raidbot.yml")
}

// Load reads config from workspace, falling back to defaults when the file
// is missing.
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
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Chat.APIBase == "" {
		return fmt.Errorf("config.chat.api_base is required")
	}
	if c.Rewards.MessagePoints < 0 || c.Rewards.ReactionPoints < 0 {
		return fmt.Errorf("config.rewards points must not be negative")
	}
	if c.Limits.CompletionsPerHour <= 0 {
		return fmt.Errorf("config.limits.completions_per_hour must be positive")
	}
	if c.Limits.PerAddress <= 0 {
		return fmt.Errorf("config.limits.per_address must be positive")
	}
	if c.Limits.PerAddressWindowMin <= 0 {
		return fmt.Errorf("config.limits.per_address_window_minutes must be positive")
	}
	if c.Broadcast.PaceMS < 0 {
		return fmt.Errorf("config.broadcast.pace_ms must not be negative")
	}
	return nil
}

// ChatTimeout returns the bounded per-call transport timeout.
func (c *Config) ChatTimeout() time.Duration {
	if c.Chat.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Chat.TimeoutMS) * time.Millisecond
}

// AddressWindow returns the per-origin-address rate window.
func (c *Config) AddressWindow() time.Duration {
	return time.Duration(c.Limits.PerAddressWindowMin) * time.Minute
}

// Pace returns the delay inserted between successive broadcast jobs.
func (c *Config) Pace() time.Duration {
	return time.Duration(c.Broadcast.PaceMS) * time.Millisecond
}
