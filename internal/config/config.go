package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config represents the main Rentora configuration
type Config struct {
	// Telegram login handshake
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Database
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram login configuration
type TelegramConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	BotToken    string `json:"bot_token" mapstructure:"bot_token"`
	BotUsername string `json:"bot_username" mapstructure:"bot_username"`

	// SiteBaseURL is the public base URL of the web client, used to build
	// the completion link sent back to the user.
	SiteBaseURL string `json:"site_base_url" mapstructure:"site_base_url"`

	// PublicBaseURL is the public base URL of this service, used to
	// register the inbound webhook with Telegram.
	PublicBaseURL string `json:"public_base_url" mapstructure:"public_base_url"`

	// SessionTTLMinutes bounds how long an unconfirmed login session is
	// kept before the retention sweeper removes it.
	SessionTTLMinutes int `json:"session_ttl_minutes" mapstructure:"session_ttl_minutes"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled:           false,
			SessionTTLMinutes: 30,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Active reports whether the Telegram login feature is enabled and has the
// minimum configuration required to run. A disabled or unconfigured feature
// degrades to inactive, it never fails the process.
func (c *TelegramConfig) Active() bool {
	return c.Enabled && strings.TrimSpace(c.BotToken) != ""
}

// Validate checks the configuration for states that cannot be degraded
// around. It intentionally does not fail on a missing bot token: that case
// turns the Telegram feature off instead.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Telegram.Active() {
		if err := validateBaseURL(c.Telegram.SiteBaseURL, "site_base_url"); err != nil {
			return err
		}
		if c.Telegram.PublicBaseURL != "" {
			if err := validateBaseURL(c.Telegram.PublicBaseURL, "public_base_url"); err != nil {
				return err
			}
		}
		if c.Telegram.SessionTTLMinutes <= 0 {
			return fmt.Errorf("telegram session_ttl_minutes must be positive, got %d", c.Telegram.SessionTTLMinutes)
		}
	}

	return nil
}

func validateBaseURL(raw, field string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("telegram %s is required when telegram login is enabled", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("telegram %s must be an absolute URL: %q", field, raw)
	}
	return nil
}
