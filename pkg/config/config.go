// Package config loads dexmirror settings from defaults, an optional config
// file, a .env file and DEXMIRROR_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Sternrassler/dexmirror/pkg/client"
	"github.com/Sternrassler/dexmirror/pkg/cursor"
	"github.com/Sternrassler/dexmirror/pkg/ingest"
	"github.com/Sternrassler/dexmirror/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DEXMIRROR"

// DotEnvFile is loaded from the working directory when present.
const DotEnvFile = ".env"

// AppConfig holds the complete configuration for the application.
type AppConfig struct {
	LogLevel   string         `mapstructure:"log_level"`
	LogPretty  bool           `mapstructure:"log_pretty"`
	DBPath     string         `mapstructure:"db_path"`
	ListenAddr string         `mapstructure:"listen_addr"`
	Upstream   UpstreamConfig `mapstructure:"upstream"`
	Ingest     IngestConfig   `mapstructure:"ingest"`
	Cursor     CursorConfig   `mapstructure:"cursor"`
}

type UpstreamConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Resource  string        `mapstructure:"resource"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	Total  int           `mapstructure:"total"`
	Delay  time.Duration `mapstructure:"delay"`
	Policy string        `mapstructure:"policy"`
}

type CursorConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	Key       string `mapstructure:"key"`
}

// New returns a viper instance carrying the defaults and environment
// bindings. Callers may bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	// Default values
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("db_path", "data/dexmirror.db")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("upstream.base_url", "https://pokeapi.co/api/v2")
	v.SetDefault("upstream.resource", "pokemon")
	v.SetDefault("upstream.user_agent", "dexmirror/0.1.0")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("ingest.total", 0)
	v.SetDefault("ingest.delay", 500*time.Millisecond)
	v.SetDefault("ingest.policy", string(ingest.PolicyMaxID))
	v.SetDefault("cursor.backend", cursor.BackendNone)
	v.SetDefault("cursor.path", "data/cursor")
	v.SetDefault("cursor.redis_addr", "localhost:6379")
	v.SetDefault("cursor.key", "dexmirror:ingest:cursor")

	// Environment variables: DEXMIRROR_UPSTREAM_BASE_URL etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the .env file (if any), the config file at path (if set) and
// the environment into v, then validates the result.
func Load(v *viper.Viper, path string) (*AppConfig, error) {
	// Variables already present in the environment win over .env entries.
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DotEnvFile, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *AppConfig) Validate() error {
	if !logging.ValidLevel(logging.LogLevel(c.LogLevel)) {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if c.Upstream.Resource == "" {
		return errors.New("upstream.resource is required")
	}
	if c.Upstream.UserAgent == "" {
		return errors.New("upstream.user_agent is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive (got %s)", c.Upstream.Timeout)
	}
	if c.Ingest.Total < 0 {
		return fmt.Errorf("ingest.total must not be negative (got %d)", c.Ingest.Total)
	}
	if c.Ingest.Delay < 0 {
		return fmt.Errorf("ingest.delay must not be negative (got %s)", c.Ingest.Delay)
	}
	policy, err := ingest.ParsePolicy(c.Ingest.Policy)
	if err != nil {
		return fmt.Errorf("ingest.policy: %w", err)
	}

	switch c.Cursor.Backend {
	case cursor.BackendNone:
		if policy == ingest.PolicyCursor {
			return errors.New("ingest.policy cursor requires cursor.backend file or redis")
		}
	case cursor.BackendFile:
		if c.Cursor.Path == "" {
			return errors.New("cursor.path is required for the file backend")
		}
	case cursor.BackendRedis:
		if c.Cursor.RedisAddr == "" {
			return errors.New("cursor.redis_addr is required for the redis backend")
		}
		if c.Cursor.Key == "" {
			return errors.New("cursor.key is required for the redis backend")
		}
	default:
		return fmt.Errorf("cursor.backend %q is not one of none, file, redis", c.Cursor.Backend)
	}

	return nil
}

// LoggingConfig returns the logger settings.
func (c *AppConfig) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// ClientConfig returns the upstream client settings.
func (c *AppConfig) ClientConfig() client.Config {
	return client.Config{
		BaseURL:   c.Upstream.BaseURL,
		Resource:  c.Upstream.Resource,
		UserAgent: c.Upstream.UserAgent,
		Timeout:   c.Upstream.Timeout,
	}
}

// CursorStoreConfig returns the cursor backend settings.
func (c *AppConfig) CursorStoreConfig() cursor.Config {
	return cursor.Config{
		Backend:   c.Cursor.Backend,
		Path:      c.Cursor.Path,
		RedisAddr: c.Cursor.RedisAddr,
		Key:       c.Cursor.Key,
	}
}

// Policy returns the parsed resume policy. Validate has already accepted it.
func (c *AppConfig) Policy() ingest.Policy {
	p, _ := ingest.ParsePolicy(c.Ingest.Policy)
	return p
}
