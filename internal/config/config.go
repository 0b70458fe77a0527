// Package config loads fixhub configuration from defaults, an optional
// fixhub.yaml and FIXHUB_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the fixhub configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// DatabaseConfig represents database pool configuration
type DatabaseConfig struct {
	URL              string        `mapstructure:"url"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig represents token verification settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RateLimitConfig represents request rate limiting
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Limit     int           `mapstructure:"limit"`
	Window    time.Duration `mapstructure:"window"`
}

// LogConfig represents logger settings
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AuditConfig toggles audit entries for mutations
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads the configuration. An empty path searches the working
// directory for fixhub.yaml; a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fixhub")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FIXHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the conventional variable wins over the prefixed one
	if err := v.BindEnv("database.url", "DATABASE_URL", "FIXHUB_DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind database url: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "fixhub")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.redis_addr", "")
	v.SetDefault("ratelimit.limit", 100)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("audit.enabled", true)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.APIPrefix != "" {
		if !strings.HasPrefix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must start with '/', got: %s", cfg.Server.APIPrefix)
		}
		if strings.HasSuffix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must not end with '/', got: %s", cfg.Server.APIPrefix)
		}
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Database.StatementTimeout < 0 {
		return fmt.Errorf("database.statement_timeout must not be negative")
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.Limit <= 0 || cfg.RateLimit.Window <= 0) {
		return fmt.Errorf("ratelimit.limit and ratelimit.window must be positive when enabled")
	}
	return nil
}

// RequireServe checks the settings the HTTP server cannot start without
func (c *Config) RequireServe() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (set DATABASE_URL)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	return nil
}
