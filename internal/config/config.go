// Package config loads runtime configuration for the numbering commands.
//
// Values come from three layers, later ones winning:
//   - built-in defaults (Default)
//   - a YAML file named by NUMBERING_CONFIG or --config
//   - environment variables, optionally seeded from a .env file
//
// Variables already present in the process environment are never
// overridden by .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	corenumbering "docnum/internal/core/numbering"
	"docnum/internal/infrastructure/storage/postgres"
)

// Environment variable names.
const (
	EnvConfigFile  = "NUMBERING_CONFIG"
	EnvDatabaseURL = "DATABASE_URL"
	EnvPrefix      = "NUMBERING_PREFIX"
	EnvTable       = "NUMBERING_TABLE"
	EnvLockScope   = "NUMBERING_LOCK_SCOPE"
	EnvLockTimeout = "NUMBERING_LOCK_TIMEOUT"
	EnvMaxAttempts = "NUMBERING_MAX_ATTEMPTS"
	EnvBackoff     = "NUMBERING_BACKOFF"
	EnvLogLevel    = "LOG_LEVEL"
	EnvAppEnv      = "APP_ENV"
	EnvAuditEvery  = "AUDIT_INTERVAL"
	EnvAuditTZ     = "AUDIT_TIMEZONE"
)

// Config is the root configuration.
type Config struct {
	// Environment is "development" or "production".
	Environment string `yaml:"environment"`

	Database  DatabaseConfig  `yaml:"database"`
	Numbering NumberingConfig `yaml:"numbering"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConns       int32         `yaml:"max_conns"`
	MinConns       int32         `yaml:"min_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// NumberingConfig configures allocation.
type NumberingConfig struct {
	// Prefix is the default document prefix, e.g. KTA.
	Prefix string `yaml:"prefix"`

	// Table holds the submission records.
	Table string `yaml:"table"`

	LockScope   corenumbering.LockScope `yaml:"lock_scope"`
	LockTimeout time.Duration           `yaml:"lock_timeout"`
	MaxAttempts int                     `yaml:"max_attempts"`
	Backoff     time.Duration           `yaml:"backoff"`
}

// AuditConfig configures the auditor and the audit worker.
type AuditConfig struct {
	// Interval between worker runs.
	Interval time.Duration `yaml:"interval"`

	// Timezone used to derive periods from created_at. "Local" by default.
	Timezone string `yaml:"timezone"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := corenumbering.DefaultOptions()
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			MaxConns:       10,
			MinConns:       1,
			ConnectTimeout: 5 * time.Second,
		},
		Numbering: NumberingConfig{
			Prefix:      "KTA",
			Table:       "submissions",
			LockScope:   opts.LockScope,
			LockTimeout: opts.LockTimeout,
			MaxAttempts: opts.MaxAttempts,
			Backoff:     opts.Backoff,
		},
		Audit: AuditConfig{
			Interval: time.Hour,
			Timezone: "Local",
		},
		Log: LogConfig{
			Level:       "info",
			Development: true,
		},
	}
}

// Load builds the configuration from file, .env in the working directory
// and the process environment. An empty file falls back to NUMBERING_CONFIG;
// no file at all is fine.
func Load(file string) (*Config, error) {
	return load(file, []string{".env"}, os.LookupEnv)
}

func load(file string, dotenvFiles []string, lookup func(string) (string, bool)) (*Config, error) {
	env, err := readDotenv(dotenvFiles)
	if err != nil {
		return nil, err
	}
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()

	if file == "" {
		file, _ = get(EnvConfigFile)
	}
	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(get); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readDotenv(files []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, f := range files {
		values, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range values {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(get func(string) (string, bool)) error {
	if v, ok := get(EnvAppEnv); ok {
		c.Environment = v
		c.Log.Development = v == "development"
	}
	if v, ok := get(EnvDatabaseURL); ok {
		c.Database.URL = v
	}
	if v, ok := get(EnvPrefix); ok {
		c.Numbering.Prefix = v
	}
	if v, ok := get(EnvTable); ok {
		c.Numbering.Table = v
	}
	if v, ok := get(EnvLockScope); ok {
		c.Numbering.LockScope = corenumbering.LockScope(v)
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := get(EnvAuditTZ); ok {
		c.Audit.Timezone = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvLockTimeout, &c.Numbering.LockTimeout},
		{EnvBackoff, &c.Numbering.Backoff},
		{EnvAuditEvery, &c.Audit.Interval},
	}
	for _, d := range durations {
		v, ok := get(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v, ok := get(EnvMaxAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxAttempts, err)
		}
		c.Numbering.MaxAttempts = n
	}
	return nil
}

// Validate checks the configuration. The database URL is not required
// here; commands that connect check it themselves.
func (c *Config) Validate() error {
	var errs []error

	if !corenumbering.ValidPrefix(c.Numbering.Prefix) {
		errs = append(errs, fmt.Errorf("numbering.prefix %q must be 1-16 upper-case letters or digits, starting with a letter", c.Numbering.Prefix))
	}
	if err := postgres.ValidateTableName(c.Numbering.Table); err != nil {
		errs = append(errs, fmt.Errorf("numbering.table %q: %w", c.Numbering.Table, err))
	}
	if err := c.NumberingOptions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("numbering.lock_scope: %w", err))
	}
	if c.Numbering.LockTimeout <= 0 {
		errs = append(errs, errors.New("numbering.lock_timeout must be positive"))
	}
	if c.Numbering.MaxAttempts < 1 {
		errs = append(errs, errors.New("numbering.max_attempts must be at least 1"))
	}
	if c.Numbering.Backoff < 0 {
		errs = append(errs, errors.New("numbering.backoff must not be negative"))
	}
	if c.Audit.Interval <= 0 {
		errs = append(errs, errors.New("audit.interval must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("audit.timezone: %w", err))
	}

	return errors.Join(errs...)
}

// NumberingOptions converts the numbering section to allocator options.
func (c *Config) NumberingOptions() corenumbering.Options {
	return corenumbering.Options{
		LockScope:   c.Numbering.LockScope,
		LockTimeout: c.Numbering.LockTimeout,
		MaxAttempts: c.Numbering.MaxAttempts,
		Backoff:     c.Numbering.Backoff,
	}
}

// Location resolves the audit timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Audit.Timezone == "" || c.Audit.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Audit.Timezone)
}

// PoolConfig converts the database section to pool settings.
func (c *Config) PoolConfig() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(c.Database.URL)
	if c.Database.MaxConns > 0 {
		pc.MaxConns = c.Database.MaxConns
	}
	if c.Database.MinConns >= 0 {
		pc.MinConns = c.Database.MinConns
	}
	return pc
}
