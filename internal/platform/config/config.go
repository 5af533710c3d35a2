package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL      = "http://localhost:8080/api"
	DefaultTickInterval    = time.Second
	DefaultCompletionDelay = 100 * time.Millisecond
)

type Config struct {
	APIBaseURL      string        `yaml:"api_base_url"`
	Token           string        `yaml:"token"`
	DataDir         string        `yaml:"data_dir"`
	DBPath          string        `yaml:"db_path"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	CompletionDelay time.Duration `yaml:"completion_delay"`
	NotifierPlugin  string        `yaml:"notifier_plugin"`
	LogLevel        string        `yaml:"log_level"`
	LogFile         string        `yaml:"log_file"`
	Timezone        string        `yaml:"timezone"`
}

func New(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	cfg := Default()
	cfg.DataDir = dataDir
	cfg.DBPath = filepath.Join(dataDir, ".pledge", "pledge.db")
	return cfg, nil
}

func Default() Config {
	return Config{
		APIBaseURL:      DefaultAPIBaseURL,
		DataDir:         ".",
		DBPath:          filepath.Join(".", ".pledge", "pledge.db"),
		TickInterval:    DefaultTickInterval,
		CompletionDelay: DefaultCompletionDelay,
		LogLevel:        "info",
		Timezone:        "Local",
	}
}

// Load builds the config for dataDir, applies the YAML file at path when it
// exists, then environment overrides, then validates the result.
func Load(path, dataDir string) (Config, error) {
	cfg, err := New(dataDir)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	LoadFromEnv(&cfg)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, ".pledge", "pledge.db")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv overrides fields from PLEDGE_* environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PLEDGE_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("PLEDGE_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("PLEDGE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PLEDGE_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := os.Getenv("PLEDGE_COMPLETION_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.CompletionDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("PLEDGE_NOTIFIER_PLUGIN"); v != "" {
		cfg.NotifierPlugin = v
	}
	if v := os.Getenv("PLEDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PLEDGE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("PLEDGE_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base url must be absolute, got %q", c.APIBaseURL)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.CompletionDelay <= 0 {
		return fmt.Errorf("completion delay must be positive, got %v", c.CompletionDelay)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone used for week boundaries.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
