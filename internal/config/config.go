// internal/config/config.go
//
// Runtime configuration for the relay. Settings come from config.yaml
// inside the storage root, RELAY_* environment variables, and explicit
// overrides from the caller, in ascending precedence. The storage root
// itself resolves before the file is read: override, then RELAY_ROOT,
// then the built-in default.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultRoot is the storage root used when nothing else names one.
	DefaultRoot = ".relay"

	// EnvRoot overrides the storage root from the environment.
	EnvRoot = "RELAY_ROOT"

	// ConfigFileName is the per-root settings file, without extension.
	ConfigFileName = "config"
)

const defaultConfigYAML = `# relay storage configuration
# Settings may also be supplied as RELAY_* environment variables,
# e.g. RELAY_LOG_LEVEL=debug or RELAY_CACHE_BACKEND=redis.

log:
  level: info      # debug | info | warn | error
  format: console  # console | json

cache:
  backend: file    # file | redis
  default_ttl: 1h  # applied when a caller sets no explicit TTL; 0 disables the default
  redis:
    addr: localhost:6379
    db: 0

retention:
  temp_max_age: 24h      # clean removes shared temp files older than this
  archive_max_age: 720h  # archive bundles output files older than this (30 days)

disk:
  threshold_percent: 80

workflow:
  step_timeout: 10m
`

// LogSettings controls the default zap sink.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// RedisSettings points the redis cache backend at a server.
type RedisSettings struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// CacheSettings selects and tunes the cache backend.
type CacheSettings struct {
	Backend    string        `mapstructure:"backend" yaml:"backend"`
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"`
	Redis      RedisSettings `mapstructure:"redis" yaml:"redis"`
}

// RetentionSettings carries the default age thresholds for cleanup and
// archival. Both remain overridable per call.
type RetentionSettings struct {
	TempMaxAge    time.Duration `mapstructure:"temp_max_age" yaml:"temp_max_age"`
	ArchiveMaxAge time.Duration `mapstructure:"archive_max_age" yaml:"archive_max_age"`
}

// DiskSettings configures the utilization guard.
type DiskSettings struct {
	ThresholdPercent float64 `mapstructure:"threshold_percent" yaml:"threshold_percent"`
}

// WorkflowSettings tunes the engine.
type WorkflowSettings struct {
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

// Config is the resolved runtime configuration.
type Config struct {
	Root      string            `mapstructure:"root" yaml:"root"`
	Log       LogSettings       `mapstructure:"log" yaml:"log"`
	Cache     CacheSettings     `mapstructure:"cache" yaml:"cache"`
	Retention RetentionSettings `mapstructure:"retention" yaml:"retention"`
	Disk      DiskSettings      `mapstructure:"disk" yaml:"disk"`
	Workflow  WorkflowSettings  `mapstructure:"workflow" yaml:"workflow"`
}

// Option adjusts how Load resolves configuration.
type Option func(*loadSettings)

type loadSettings struct {
	root string
}

// WithRoot pins the storage root, taking precedence over RELAY_ROOT
// and the built-in default.
func WithRoot(root string) Option {
	return func(s *loadSettings) {
		s.root = strings.TrimSpace(root)
	}
}

// Load resolves the effective configuration.
func Load(opts ...Option) (*Config, error) {
	var s loadSettings
	for _, opt := range opts {
		opt(&s)
	}

	root := s.root
	if root == "" {
		root = strings.TrimSpace(os.Getenv(EnvRoot))
	}
	if root == "" {
		root = DefaultRoot
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("config: resolve root %s: %w", root, err)
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(absRoot)
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Root = absRoot

	cfg.applyDefaults()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration rooted at root. It is the
// Load result when no file and no environment are present.
func Default(root string) *Config {
	cfg := &Config{Root: root}
	cfg.applyDefaults()
	cfg.normalize()
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.default_ttl", time.Hour)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("retention.temp_max_age", 24*time.Hour)
	v.SetDefault("retention.archive_max_age", 720*time.Hour)
	v.SetDefault("disk.threshold_percent", 80.0)
	v.SetDefault("workflow.step_timeout", 10*time.Minute)
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = time.Hour
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = "localhost:6379"
	}
	if c.Retention.TempMaxAge == 0 {
		c.Retention.TempMaxAge = 24 * time.Hour
	}
	if c.Retention.ArchiveMaxAge == 0 {
		c.Retention.ArchiveMaxAge = 720 * time.Hour
	}
	if c.Disk.ThresholdPercent == 0 {
		c.Disk.ThresholdPercent = 80
	}
	if c.Workflow.StepTimeout == 0 {
		c.Workflow.StepTimeout = 10 * time.Minute
	}
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Cache.Redis.Addr = strings.TrimSpace(c.Cache.Redis.Addr)
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	switch c.Cache.Backend {
	case "file":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be file or redis, got %q", c.Cache.Backend)
	}
	if c.Retention.TempMaxAge < 0 {
		return fmt.Errorf("retention.temp_max_age must not be negative")
	}
	if c.Retention.ArchiveMaxAge < 0 {
		return fmt.Errorf("retention.archive_max_age must not be negative")
	}
	if c.Disk.ThresholdPercent <= 0 || c.Disk.ThresholdPercent > 100 {
		return fmt.Errorf("disk.threshold_percent must be in (0, 100], got %v", c.Disk.ThresholdPercent)
	}
	if c.Workflow.StepTimeout <= 0 {
		return fmt.Errorf("workflow.step_timeout must be positive")
	}
	return nil
}

// ConfigPath returns the on-disk location of the per-root settings file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Root, ConfigFileName+".yaml")
}

// EnsureConfigFile writes the commented default config.yaml into the
// root when none exists, so operators have a template to edit.
func (c *Config) EnsureConfigFile() error {
	path := c.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.MkdirAll(c.Root, 0755); err != nil {
		return fmt.Errorf("config: ensure root: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("config: write default config: %w", err)
	}
	return nil
}
