package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Blob      BlobConfig
	Mirror    MirrorConfig
	Installer InstallerConfig
	Catalog   CatalogConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" toml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" toml:"host"`
}

// DatabaseConfig holds registry database configuration.
type DatabaseConfig struct {
	Path string `envconfig:"DB_PATH" default:"data/registry.db" toml:"path"`
}

// BlobConfig holds asset blob storage configuration.
type BlobConfig struct {
	Root string `envconfig:"BLOB_ROOT" default:"data/blobs" toml:"root"`
}

// MirrorConfig holds upstream hub mirroring configuration.
type MirrorConfig struct {
	Enabled      bool          `envconfig:"MIRROR_ENABLED" default:"true" toml:"enabled"`
	UpstreamURL  string        `envconfig:"MIRROR_UPSTREAM_URL" default:"https://hub.leaplearn.dev" toml:"upstream_url"`
	Source       string        `envconfig:"MIRROR_SOURCE" default:"hub" toml:"source"`
	Interval     time.Duration `envconfig:"MIRROR_INTERVAL" default:"1h" toml:"interval"`
	EntryTimeout time.Duration `envconfig:"MIRROR_ENTRY_TIMEOUT" default:"30s" toml:"entry_timeout"`
}

// InstallerConfig holds archive handling configuration.
type InstallerConfig struct {
	MaxArchiveBytes int64 `envconfig:"INSTALL_MAX_ARCHIVE_BYTES" default:"67108864" toml:"max_archive_bytes"`
	MaxEntryBytes   int64 `envconfig:"INSTALL_MAX_ENTRY_BYTES" default:"33554432" toml:"max_entry_bytes"`
}

// CatalogConfig holds merged catalog configuration.
type CatalogConfig struct {
	// HostVersion is the runtime version this deployment offers to
	// packages declaring a minimum host version.
	HostVersion string        `envconfig:"CATALOG_HOST_VERSION" default:"1.0.0" toml:"host_version"`
	CacheTTL    time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"5m" toml:"cache_ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled"`
}

// Load loads configuration from environment variables. When path is
// non-empty, values from the TOML file are applied first and the
// environment overrides them.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8000", Host: "0.0.0.0"},
		Database: DatabaseConfig{Path: "data/registry.db"},
		Blob:     BlobConfig{Root: "data/blobs"},
		Mirror: MirrorConfig{
			Enabled:      true,
			UpstreamURL:  "https://hub.leaplearn.dev",
			Source:       "hub",
			Interval:     time.Hour,
			EntryTimeout: 30 * time.Second,
		},
		Installer: InstallerConfig{
			MaxArchiveBytes: 64 << 20,
			MaxEntryBytes:   32 << 20,
		},
		Catalog: CatalogConfig{
			HostVersion: "1.0.0",
			CacheTTL:    5 * time.Minute,
		},
		Logging: LogConfig{Level: "info", Development: false},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
