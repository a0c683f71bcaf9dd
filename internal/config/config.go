// Package config loads runtime configuration from the environment.
//
// Values come from CATALOG_* environment variables, optionally seeded from a
// .env file in the working directory. Command-line flags override them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-client/pkg/client"
	"github.com/Sternrassler/catalog-client/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// Prefix is the environment variable prefix.
const Prefix = "CATALOG"

// Config holds runtime configuration.
type Config struct {
	BaseURL   string `envconfig:"BASE_URL" default:"https://dummyjson.com"`
	UserAgent string `envconfig:"USER_AGENT" default:"catalog-client/1.0"`

	// RedisURL enables the shared response cache and rate limit tracking.
	// Either redis://host:port/db or host:port.
	RedisURL string `envconfig:"REDIS_URL"`

	Port        string        `envconfig:"PORT" default:"8080"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"0s"`
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"1"`
	PageSize    int           `envconfig:"PAGE_SIZE" default:"6"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
	LogFile   string `envconfig:"LOG_FILE"`
}

// Load reads the given .env files (default ".env"; missing files are
// ignored) and processes CATALOG_* variables.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%s_BASE_URL must not be empty", Prefix)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%s_PAGE_SIZE must be > 0 (got %d)", Prefix, c.PageSize)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%s_MAX_ATTEMPTS must be >= 1 (got %d)", Prefix, c.MaxAttempts)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%s_TIMEOUT must not be negative (got %v)", Prefix, c.Timeout)
	}
	return nil
}

// RedisOptions parses RedisURL. It returns nil when Redis is not configured.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if !strings.Contains(c.RedisURL, "://") {
		return &redis.Options{Addr: c.RedisURL}, nil
	}
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s_REDIS_URL: %w", Prefix, err)
	}
	return opts, nil
}

// Client returns the catalog client configuration. rdb may be nil.
func (c *Config) Client(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.BaseURL
	cfg.UserAgent = c.UserAgent
	cfg.Redis = rdb
	cfg.Timeout = c.Timeout
	cfg.MaxAttempts = c.MaxAttempts
	cfg.PageSize = c.PageSize
	return cfg
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	cfg.File = c.LogFile
	return cfg
}
