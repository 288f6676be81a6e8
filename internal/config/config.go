// Package config layers the harvester configuration: built-in defaults,
// then the YAML config file, then environment variables. Flags are applied
// on top by the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	env "github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appDirName = "clip-harvester"

// Config is the full harvester configuration.
type Config struct {
	// BaseURL resolves bare handles like "@creator" into listing URLs.
	BaseURL   string `yaml:"base_url" env:"CH_BASE_URL"`
	OutputDir string `yaml:"output_dir" env:"CH_OUTPUT_DIR"`
	DBPath    string `yaml:"db_path" env:"CH_DB_PATH"`
	ErrorLog  string `yaml:"error_log" env:"CH_ERROR_LOG"`

	Workers  int `yaml:"workers" env:"CH_WORKERS"`
	MaxItems int `yaml:"max_items" env:"CH_MAX_ITEMS"`

	RequiredHashtags []string `yaml:"required_hashtags" env:"CH_REQUIRED_HASHTAGS" envSeparator:","`
	HashtagMode      string   `yaml:"hashtag_mode" env:"CH_HASHTAG_MODE"`
	WindowDays       int      `yaml:"window_days" env:"CH_WINDOW_DAYS"`

	QualityFloor       int     `yaml:"quality_floor" env:"CH_QUALITY_FLOOR"`
	MinDurationSeconds int     `yaml:"min_duration_seconds" env:"CH_MIN_DURATION_SECONDS"`
	MaxDurationSeconds int     `yaml:"max_duration_seconds" env:"CH_MAX_DURATION_SECONDS"`
	RateLimitMBps      float64 `yaml:"rate_limit_mbps" env:"CH_RATE_LIMIT_MBPS"`
	CookiesFromBrowser string  `yaml:"cookies_from_browser" env:"CH_COOKIES_FROM_BROWSER"`

	LogLevel string `yaml:"log_level" env:"CH_LOG_LEVEL"`
}

// Default returns the built-in configuration. State lives under the XDG data
// directory; downloads land in ./downloads relative to the working dir.
func Default() Config {
	return Config{
		OutputDir:    "downloads",
		DBPath:       filepath.Join(xdg.DataHome, appDirName, "state.db"),
		ErrorLog:     filepath.Join(xdg.DataHome, appDirName, "download_errors.log"),
		Workers:      3,
		HashtagMode:  "all",
		QualityFloor: 0,
		LogLevel:     "info",
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appDirName, "config.yaml")
}

// Load builds the effective configuration. An explicit path must exist; the
// default path is optional. A .env file in the working directory is loaded
// before environment overrides are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// no config file is fine
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max_items must not be negative, got %d", c.MaxItems)
	}
	if c.WindowDays < 0 {
		return fmt.Errorf("window_days must not be negative, got %d", c.WindowDays)
	}
	switch strings.ToLower(strings.TrimSpace(c.HashtagMode)) {
	case "", "any", "all":
	default:
		return fmt.Errorf("hashtag_mode must be \"any\" or \"all\", got %q", c.HashtagMode)
	}
	if c.MinDurationSeconds > 0 && c.MaxDurationSeconds > 0 && c.MinDurationSeconds > c.MaxDurationSeconds {
		return fmt.Errorf("min_duration_seconds %d exceeds max_duration_seconds %d",
			c.MinDurationSeconds, c.MaxDurationSeconds)
	}
	return nil
}

// EnsureDirs creates the directories the configured paths live in.
func (c Config) EnsureDirs() error {
	for _, p := range []string{c.DBPath, c.ErrorLog} {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", p, err)
		}
	}
	return nil
}
