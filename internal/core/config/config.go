// Package config provides configuration management for formkeeper services.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig
	Rules    RulesConfig
	Database DatabaseConfig
	Log      LogConfig
}

// ServerConfig holds configuration for the gRPC rule engine service.
type ServerConfig struct {
	Host           string
	Port           int
	MetricsAddr    string // empty disables the /metrics listener
	MaxConnections int
	RequestTimeout time.Duration
}

// RulesConfig controls where rules come from and how they are evaluated.
type RulesConfig struct {
	BundlePath     string // empty uses the embedded default bundle
	Watch          bool
	WatchDebounce  time.Duration
	TriggerActions bool
}

// DatabaseConfig enables the persistent rule store when URL is set.
type DatabaseConfig struct {
	URL string
}

// LogConfig selects zerolog level and output format.
type LogConfig struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or text
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			MetricsAddr:    ":9090",
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
		},
		Rules: RulesConfig{
			WatchDebounce:  200 * time.Millisecond,
			TriggerActions: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// NewLogger builds the process logger. Text format writes through
// zerolog.ConsoleWriter for local use; json is the production default.
func NewLogger(cfg LogConfig, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	switch cfg.Format {
	case "", "json":
	case "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("log format must be json or text, got %q", cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
