// Package config provides configuration management for procluster.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/procluster/internal/pipeline"
	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
)

const (
	// DefaultThreshold is the distance cut used when nothing else is configured.
	DefaultThreshold = 0.64
	// DefaultLinkage is the linkage criterion name used by default.
	DefaultLinkage = "average"
	// DefaultServerAddr is the listen address of the HTTP server.
	DefaultServerAddr = "127.0.0.1:37800"
	// DefaultOutputName prefixes the exported sections.
	DefaultOutputName = "out"
	// DefaultCacheTTL bounds how long cached results live in Redis.
	DefaultCacheTTL = 24 * time.Hour

	dataDirName      = ".procluster"
	settingsFileName = "settings.yaml"
	dbFileName       = "procluster.db"
)

// Environment variables that override settings.
const (
	EnvThreshold  = "PROCLUSTER_THRESHOLD"
	EnvLinkage    = "PROCLUSTER_LINKAGE"
	EnvDatabase   = "PROCLUSTER_DATABASE"
	EnvRedisAddr  = "PROCLUSTER_REDIS_ADDR"
	EnvServerAddr = "PROCLUSTER_SERVER_ADDR"
)

// Config holds procluster configuration.
type Config struct {
	Threshold    *float64      `yaml:"threshold,omitempty" validate:"omitempty,gte=0"`
	ClusterCount *int          `yaml:"cluster_count,omitempty" validate:"omitempty,gte=1"`
	Linkage      string        `yaml:"linkage" validate:"oneof=single complete average weighted"`
	Delimiter    string        `yaml:"delimiter" validate:"required,max=8"`
	Workers      int           `yaml:"workers" validate:"gte=0,lte=1024"`
	InputDir     string        `yaml:"input_dir,omitempty"`
	OutputDir    string        `yaml:"output_dir,omitempty"`
	OutputName   string        `yaml:"output_name" validate:"required,excludesall=/"`
	Database     string        `yaml:"database,omitempty"`
	RedisAddr    string        `yaml:"redis_addr,omitempty" validate:"omitempty,hostname_port"`
	CacheTTL     time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	ServerAddr   string        `yaml:"server_addr" validate:"required"`
	LogLevel     string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

var (
	validate = validator.New()

	globalCfg *Config
	cfgOnce   sync.Once
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Linkage:    DefaultLinkage,
		Delimiter:  models.DefaultDelimiter,
		OutputName: DefaultOutputName,
		CacheTTL:   DefaultCacheTTL,
		ServerAddr: DefaultServerAddr,
		LogLevel:   "info",
	}
}

// DataDir returns the data directory path.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), dbFileName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFileName)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll ensures the data directory and settings file exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads configuration from the default settings file.
// A missing or unreadable file yields defaults; env overrides are applied either way.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		if uerr := yaml.Unmarshal(data, cfg); uerr != nil {
			log.Warn().Err(uerr).Str("path", SettingsPath()).Msg("Ignoring malformed settings file")
			cfg = Default()
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads configuration from an explicit path.
// Unlike Load, a missing or malformed file is an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrConfiguration, path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", models.ErrConfiguration, path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	cfgOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalCfg = cfg
	})
	return globalCfg
}

// Validate checks field ranges and enumerations. Setting both threshold and
// cluster_count is an error.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	if c.Threshold != nil && c.ClusterCount != nil {
		return fmt.Errorf("%w: threshold and cluster_count are both set", models.ErrConfiguration)
	}
	return nil
}

// DatabaseDSN returns the configured DSN, falling back to the SQLite file in DataDir.
func (c *Config) DatabaseDSN() string {
	if c.Database != "" {
		return c.Database
	}
	return DBPath()
}

// PipelineOptions converts the settings into run options. With no selector
// configured the cut is DefaultThreshold. Both selectors are passed through
// as given, so pipeline.Run rejects them.
func (c *Config) PipelineOptions() pipeline.Options {
	opts := pipeline.Options{
		Linkage:   hierarchy.Linkage(c.Linkage),
		Delimiter: c.Delimiter,
		Workers:   c.Workers,
	}
	if c.Threshold != nil {
		t := *c.Threshold
		opts.Selector.Threshold = &t
	}
	if c.ClusterCount != nil {
		k := *c.ClusterCount
		opts.Selector.ClusterCount = &k
	}
	if c.Threshold == nil && c.ClusterCount == nil {
		opts.Selector = hierarchy.ByThreshold(DefaultThreshold)
	}
	return opts
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvThreshold)); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.Threshold = &t
		} else {
			log.Warn().Str("value", v).Msg("Ignoring invalid " + EnvThreshold)
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLinkage)); v != "" {
		c.Linkage = strings.ToLower(v)
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		c.ServerAddr = v
	}
}
