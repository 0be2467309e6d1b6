package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"studycal/internal/ics"
	"studycal/internal/scheduler"
)

// ICSConfig describes a single calendar feed.
type ICSConfig struct {
	// URL is an http(s) endpoint or a local file path.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
	// Format is json or console.
	Format string `yaml:"format" json:"format"`
}

// DatabaseConfig enables the PostgreSQL event store when DSN is set.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" json:"-"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns" json:"max_idle_conns"`
}

// RedisConfig enables persistent undo/redo history when Addr is set.
type RedisConfig struct {
	Addr       string        `yaml:"addr" json:"addr"`
	Password   string        `yaml:"password" json:"-"`
	DB         int           `yaml:"db" json:"db"`
	HistoryTTL time.Duration `yaml:"history_ttl" json:"history_ttl"`
}

// SchedulerConfig tunes the placement engine. Zero values keep the
// engine defaults.
type SchedulerConfig struct {
	MergeTolerance       time.Duration `yaml:"merge_tolerance" json:"merge_tolerance"`
	RecurrenceSpreadDays int           `yaml:"recurrence_spread_days" json:"recurrence_spread_days"`
	MaxOccurrences       int           `yaml:"max_occurrences" json:"max_occurrences"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone naive timestamps and local days are
	// interpreted in (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *") for refreshing
	// the calendar feeds while serving.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the default scheduling window length.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// CacheDir holds downloaded feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Log       LogConfig       `yaml:"log" json:"log"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Preferences are used by runs that carry none of their own.
	Preferences scheduler.RawPreferences `yaml:"preferences" json:"preferences"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultRefreshCron = "*/15 * * * *"
	defaultHorizonDays = 31
	defaultCacheDir    = "./var/ics-cache"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		RefreshCron: defaultRefreshCron,
		HorizonDays: defaultHorizonDays,
		CacheDir:    defaultCacheDir,
		ICS:         []ICSConfig{},
		Log:         LogConfig{Level: "info", Format: "console"},
		Database:    DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 5},
		Redis:       RedisConfig{HistoryTTL: 24 * time.Hour},
		Preferences: scheduler.RawPreferences{Weekends: "yes"},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics-%d", i+1)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		c.Log.Level = "info"
	}
	if c.Log.Format != "json" {
		c.Log.Format = "console"
	}
	if c.Redis.HistoryTTL <= 0 {
		c.Redis.HistoryTTL = 24 * time.Hour
	}
	if c.Preferences.Weekends == "" {
		c.Preferences.Weekends = "yes"
	}
}

// Horizon returns HorizonDays as a duration.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// Sources converts the feed list for the fetcher.
func (c *Config) Sources() []ics.Source {
	out := make([]ics.Source, 0, len(c.ICS))
	for _, s := range c.ICS {
		if strings.TrimSpace(s.URL) == "" {
			continue
		}
		out = append(out, ics.Source{ID: s.ID, URL: s.URL})
	}
	return out
}

// EngineOptions maps the scheduler section onto engine options.
func (c *Config) EngineOptions() scheduler.Options {
	return scheduler.Options{
		MergeTolerance:       c.Scheduler.MergeTolerance,
		RecurrenceSpreadDays: c.Scheduler.RecurrenceSpreadDays,
		MaxOccurrences:       c.Scheduler.MaxOccurrences,
		Horizon:              c.Horizon(),
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded and normalized.
//   - In both cases environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides selected fields from STUDYCAL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("STUDYCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("STUDYCAL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("STUDYCAL_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("STUDYCAL_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("STUDYCAL_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("STUDYCAL_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("STUDYCAL_HORIZON_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HorizonDays = n
		}
	}
}

// Save writes the given configuration to path atomically via a temp file
// in the same directory and leaves it with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
