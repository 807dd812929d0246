package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// New returns a viper instance with formkeeper defaults and FK_ environment binding.
// Callers may bind cobra flags to it before calling Load.
func New() *viper.Viper {
	d := Default()
	v := viper.New()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.metrics_addr", d.Server.MetricsAddr)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("rules.bundle_path", d.Rules.BundlePath)
	v.SetDefault("rules.watch", d.Rules.Watch)
	v.SetDefault("rules.watch_debounce", d.Rules.WatchDebounce.String())
	v.SetDefault("rules.trigger_actions", d.Rules.TriggerActions)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	// Bind environment variables with FK_ prefix
	v.SetEnvPrefix("FK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return Load(New(), configPath)
}

// Load reads configPath (if set) into v and decodes the result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Security check against the file alone, so an env override is not mistaken for file content
		file := viper.New()
		file.SetConfigFile(configPath)
		if err := file.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateNoCredentialsInConfig(file); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MetricsAddr:    v.GetString("server.metrics_addr"),
			MaxConnections: v.GetInt("server.max_connections"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Rules: RulesConfig{
			BundlePath:     v.GetString("rules.bundle_path"),
			Watch:          v.GetBool("rules.watch"),
			WatchDebounce:  v.GetDuration("rules.watch_debounce"),
			TriggerActions: v.GetBool("rules.trigger_actions"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive limits and consistent rule settings.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Rules.Watch && cfg.Rules.BundlePath == "" {
		return fmt.Errorf("rules.watch requires rules.bundle_path")
	}
	if cfg.Rules.WatchDebounce < 0 {
		return fmt.Errorf("watch_debounce must not be negative, got %v", cfg.Rules.WatchDebounce)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoCredentialsInConfig enforces environment-only secrets (12-factor principle).
func validateNoCredentialsInConfig(v *viper.Viper) error {
	raw := v.GetString("database.url")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid database.url: %w", err)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return fmt.Errorf("database credentials not allowed in config files (use FK_DATABASE_URL environment variable)")
	}
	return nil
}
