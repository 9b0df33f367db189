// Package config loads settings for the feed client and the dev server.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1 << 20

// Config is the full configuration tree.
type Config struct {
	Client ClientConfig `koanf:"client"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
}

// ClientConfig controls how the client reaches the API.
type ClientConfig struct {
	BaseURL  string        `koanf:"base_url"`
	Timeout  time.Duration `koanf:"timeout"`
	PageSize int           `koanf:"page_size"`
	RPS      float64       `koanf:"rps"`
	Burst    int           `koanf:"burst"`
	Token    string        `koanf:"token"`
}

// ServerConfig controls the dev API server.
type ServerConfig struct {
	Port        int     `koanf:"port"`
	DatabaseURL string  `koanf:"database_url"`
	CORSOrigin  string  `koanf:"cors_origin"`
	AdminToken  string  `koanf:"admin_token"`
	CreateRPS   float64 `koanf:"create_rps"`
	CreateBurst int     `koanf:"create_burst"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads configuration from the YAML file at path (optional), then
// overrides it with environment variables, then fills defaults.
//
// Environment variables map on the first underscore:
//
//	CLIENT_BASE_URL     -> client.base_url
//	SERVER_DATABASE_URL -> server.database_url
//	LOG_LEVEL           -> log.level
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps an environment variable to a config key. Variables outside
// the known sections are skipped.
func envKey(s string) string {
	parts := strings.SplitN(strings.ToLower(s), "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	switch parts[0] {
	case "client", "server", "log":
		return parts[0] + "." + parts[1]
	}
	return ""
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes", info.Size())
	}
	return io.ReadAll(f)
}

func applyDefaults(cfg *Config) {
	if cfg.Client.BaseURL == "" {
		cfg.Client.BaseURL = "http://localhost:9080/api"
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 10 * time.Second
	}
	if cfg.Client.PageSize == 0 {
		cfg.Client.PageSize = 20
	}
	if cfg.Client.RPS == 0 {
		cfg.Client.RPS = 10
	}
	if cfg.Client.Burst == 0 {
		cfg.Client.Burst = 5
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9080
	}
	if cfg.Server.DatabaseURL == "" {
		cfg.Server.DatabaseURL = "sqlite://feedsync.db"
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = "http://localhost:5173"
	}
	if cfg.Server.CreateRPS == 0 {
		cfg.Server.CreateRPS = 0.2
	}
	if cfg.Server.CreateBurst == 0 {
		cfg.Server.CreateBurst = 3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid client base url: %q", c.Client.BaseURL)
	}
	if c.Client.Timeout < 0 {
		return errors.New("client timeout must not be negative")
	}
	if c.Client.PageSize < 1 || c.Client.PageSize > 100 {
		return fmt.Errorf("invalid page size: %d (must be 1-100)", c.Client.PageSize)
	}
	if c.Client.RPS < 0 || c.Client.Burst < 0 {
		return errors.New("client rate limit must not be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.DatabaseURL, "sqlite://") && !strings.HasPrefix(c.Server.DatabaseURL, "postgres://") {
		return fmt.Errorf("invalid database url %q: must start with postgres:// or sqlite://", c.Server.DatabaseURL)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	return nil
}
