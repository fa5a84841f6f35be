// Package config provides configuration for the eventload commands.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultHost is the bucket the event logs are published to.
const DefaultHost = "s3://work-sample-mk"

// Config holds the configuration shared by all commands.
type Config struct {
	// DataDir is the base directory for the default store and cache
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Source configuration
	Source SourceConfig `json:"source" yaml:"source"`

	// Store configuration
	Store StoreConfig `json:"store" yaml:"store"`

	// Cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Debug enables debug logging and full error traces
	Debug bool `json:"debug" yaml:"debug"`

	// Trace exports spans to stderr
	Trace bool `json:"trace" yaml:"trace"`
}

// SourceConfig holds object storage configuration.
type SourceConfig struct {
	// Host is the bucket root: s3://bucket[/prefix], file://dir or a plain directory
	Host string `json:"host" yaml:"host"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// StoreConfig holds destination store configuration.
type StoreConfig struct {
	// Driver is sqlite3 or postgres
	Driver string `json:"driver" yaml:"driver"`

	// DSN is a file path for sqlite3 or a connection URL for postgres
	DSN string `json:"dsn" yaml:"dsn"`
}

// CacheConfig holds fetch cache configuration.
type CacheConfig struct {
	// Enabled turns on the local fetch cache
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the cache directory
	Dir string `json:"dir" yaml:"dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".",
		Source: SourceConfig{
			Host:   DefaultHost,
			Region: "us-east-1",
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
	}
}

// Resolve fills derived defaults from DataDir and infers the store driver
// from a postgres URL.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "."
	}

	if c.Store.Driver == "" || c.Store.Driver == DriverSQLite {
		if strings.HasPrefix(c.Store.DSN, "postgres://") || strings.HasPrefix(c.Store.DSN, "postgresql://") {
			c.Store.Driver = DriverPostgres
		} else {
			c.Store.Driver = DriverSQLite
		}
	}
	if c.Store.DSN == "" && c.Store.Driver == DriverSQLite {
		c.Store.DSN = filepath.Join(c.DataDir, "events.db")
	}

	if c.Cache.Enabled && c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(c.DataDir, "cache")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Source.Host == "" {
		return fmt.Errorf("source.host is required")
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid store driver: %s (must be %s or %s)", c.Store.Driver, DriverSQLite, DriverPostgres)
	}

	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}

	if c.Cache.Enabled && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required when the cache is enabled")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variables with the EVENTLOAD_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EVENTLOAD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EVENTLOAD_DEBUG"); v != "" {
		cfg.Debug = v == "true" || v == "1"
	}
	if v := os.Getenv("EVENTLOAD_TRACE"); v != "" {
		cfg.Trace = v == "true" || v == "1"
	}

	// Source configuration
	if v := os.Getenv("EVENTLOAD_SOURCE_HOST"); v != "" {
		cfg.Source.Host = v
	}
	if v := os.Getenv("EVENTLOAD_SOURCE_REGION"); v != "" {
		cfg.Source.Region = v
	}
	if v := os.Getenv("EVENTLOAD_SOURCE_ENDPOINT"); v != "" {
		cfg.Source.Endpoint = v
	}
	if v := os.Getenv("EVENTLOAD_SOURCE_USE_PATH_STYLE"); v != "" {
		cfg.Source.UsePathStyle = v == "true" || v == "1"
	}

	// Store configuration
	if v := os.Getenv("EVENTLOAD_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("EVENTLOAD_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	// Cache configuration
	if v := os.Getenv("EVENTLOAD_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
		cfg.Cache.Enabled = true
	}
}
