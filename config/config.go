// Package config loads nodestore settings.
//
// Settings come from a YAML file and are overridden by environment
// variables. The file is looked up in this order:
//  1. $NODESTORE_CONFIG
//  2. ./nodestore.yaml
//
// Without a file the defaults are used. A minimal file:
//
//	database:
//	  dialect: postgres
//	  host: localhost
//	  database: nodes
//	  user: nodes
//	pool:
//	  max_size: 20
//	  acquire_timeout: 5s
//	cache:
//	  table_ttl: 10m
//	types:
//	  ItemType: [Folder, Document, Image]
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/nodestore/dialect"
	"github.com/syssam/nodestore/tag"
)

// Environment variables read by Load.
const (
	EnvConfigPath = "NODESTORE_CONFIG"
	EnvDSN        = "NODESTORE_DSN"
	EnvDialect    = "NODESTORE_DIALECT"
	EnvSchema     = "NODESTORE_SCHEMA"
	EnvLogLevel   = "NODESTORE_LOG_LEVEL"
)

// FileName is the config file looked up in the working directory.
const FileName = "nodestore.yaml"

// Config holds every nodestore setting.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Pool     PoolConfig     `yaml:"pool"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	// Types declares node type definitions by name, each with its values
	// in ordinal order. Programs usually register Go enum types instead.
	Types map[string][]string `yaml:"types,omitempty"`
}

// DatabaseConfig selects the backend. DSN wins over the discrete
// connection fields when both are set.
type DatabaseConfig struct {
	Dialect  string `yaml:"dialect"`
	DSN      string `yaml:"dsn,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
	// Schema holds the node tables. Empty uses the dialect default.
	Schema string `yaml:"schema,omitempty"`
	// SlowQuery logs statements slower than this. Zero disables it.
	SlowQuery Duration `yaml:"slow_query,omitempty"`
}

// PoolConfig bounds backend connections.
type PoolConfig struct {
	MaxSize        int      `yaml:"max_size"`
	AcquireTimeout Duration `yaml:"acquire_timeout"`
}

// CacheConfig controls the table-name and node caches.
type CacheConfig struct {
	// TableTTL is how long a known table name is trusted. Zero trusts it
	// until invalidated.
	TableTTL Duration `yaml:"table_ttl"`
	// Nodes enables the node cache.
	Nodes bool `yaml:"nodes"`
	// NodeTTL is how long a cached node is kept. Zero keeps it until
	// the node is saved or deleted.
	NodeTTL Duration `yaml:"node_ttl,omitempty"`
	// NodeMaxSize bounds the number of cached nodes. Zero is unbounded.
	NodeMaxSize int `yaml:"node_max_size,omitempty"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Duration wraps time.Duration for YAML.
type Duration time.Duration

// UnmarshalYAML parses strings such as "1m30s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the settings used without a config file.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect:  dialect.SQLite,
			Database: "nodestore.db",
		},
		Pool: PoolConfig{
			MaxSize:        10,
			AcquireTimeout: Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			TableTTL: Duration(10 * time.Minute),
			NodeTTL:  Duration(5 * time.Minute),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load finds and loads the config file, applies environment overrides
// and validates the result. It returns the path that was read, or ""
// when the defaults were used.
func Load() (*Config, string, error) {
	path := FindPath()
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromPath(path); err != nil {
			return nil, path, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFromPath reads the config file at path. Missing settings keep
// their defaults. Environment overrides are not applied.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.Database.Dialect = strings.ToLower(cfg.Database.Dialect)
	return cfg, nil
}

// FindPath returns the config file to load, or "".
func FindPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	if fileExists(FileName) {
		if abs, err := filepath.Abs(FileName); err == nil {
			return abs
		}
		return FileName
	}
	return ""
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDialect); ok && v != "" {
		c.Database.Dialect = strings.ToLower(v)
	}
	if v, ok := lookup(EnvDSN); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvSchema); ok {
		c.Database.Schema = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if err := dialect.Valid(c.Database.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if c.Database.DSN == "" && c.Database.Database == "" {
		errs = append(errs, errors.New("config: database.dsn or database.database is required"))
	}
	if c.Pool.MaxSize < 1 {
		errs = append(errs, fmt.Errorf("config: pool.max_size must be positive, got %d", c.Pool.MaxSize))
	}
	if c.Pool.AcquireTimeout < 0 || c.Cache.TableTTL < 0 || c.Cache.NodeTTL < 0 || c.Database.SlowQuery < 0 {
		errs = append(errs, errors.New("config: durations must not be negative"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unsupported log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RegisterTypes registers the declared type definitions in r.
func (c *Config) RegisterTypes(r *tag.Registry) error {
	names := make([]string, 0, len(c.Types))
	for name := range c.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := tag.RegisterValues(r, name, c.Types[name]...); err != nil {
			return fmt.Errorf("config: types: %w", err)
		}
	}
	return nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return lvl, nil
}

// Logger returns a slog logger writing to w with the configured level
// and format.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
