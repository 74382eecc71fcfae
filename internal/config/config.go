package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Relay     RelayConfig
	Graph     GraphConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8189"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// TerminalConfig holds terminal session configuration.
type TerminalConfig struct {
	// Command is the default command to launch in new sessions. Empty means
	// auto-detect the assistant CLI, falling back to a bare shell.
	Command string `envconfig:"TERMINAL_CMD" default:""`
	// ReadBufferSize is the PTY read chunk size in bytes.
	ReadBufferSize int `envconfig:"TERMINAL_READ_BUF" default:"4096"`
}

// RelayConfig holds command relay configuration.
type RelayConfig struct {
	// Timeout bounds how long a submitter blocks waiting for a result.
	Timeout time.Duration `envconfig:"RELAY_TIMEOUT" default:"5s"`
	// ResultTTL bounds how long an uncollected result is retained.
	ResultTTL time.Duration `envconfig:"RELAY_RESULT_TTL" default:"30s"`
	// MaxResults caps the result store regardless of TTL.
	MaxResults int `envconfig:"RELAY_MAX_RESULTS" default:"256"`
}

// GraphConfig holds graph-host client configuration.
type GraphConfig struct {
	// URL is the base URL of the graph editor host API.
	URL string `envconfig:"GRAPH_URL" default:"http://127.0.0.1:8188"`
	// CatalogTTL controls how long the node catalog is cached.
	CatalogTTL time.Duration `envconfig:"GRAPH_CATALOG_TTL" default:"5m"`
	// Timeout is the per-request timeout for ordinary calls.
	Timeout time.Duration `envconfig:"GRAPH_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8189",
			Host: "127.0.0.1",
		},
		Terminal: TerminalConfig{
			ReadBufferSize: 4096,
		},
		Relay: RelayConfig{
			Timeout:    5 * time.Second,
			ResultTTL:  30 * time.Second,
			MaxResults: 256,
		},
		Graph: GraphConfig{
			URL:        "http://127.0.0.1:8188",
			CatalogTTL: 5 * time.Minute,
			Timeout:    10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           false,
		},
	}
}
