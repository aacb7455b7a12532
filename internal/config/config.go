// Package config provides configuration loading and validation for the service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Values come from defaults, then an
// optional JSON or YAML file, then environment variables.
type Config struct {
	Port        int          `json:"port,omitempty" yaml:"port,omitempty" validate:"min=1,max=65535"`
	AppEnv      string       `json:"app_env,omitempty" yaml:"app_env,omitempty"`
	DatabaseURL string       `json:"database_url,omitempty" yaml:"database_url,omitempty" validate:"required"`
	LogLevel    string       `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	NATSURL     string       `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
	Scrape      ScrapeConfig `json:"scrape" yaml:"scrape"`
}

// ScrapeConfig controls the ingestion pipeline and its schedule.
type ScrapeConfig struct {
	Schedule     string   `json:"schedule,omitempty" yaml:"schedule,omitempty" validate:"required"`
	Timezone     string   `json:"timezone,omitempty" yaml:"timezone,omitempty" validate:"required"`
	BaseURL      string   `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"required,url"`
	Delay        Duration `json:"delay,omitempty" yaml:"delay,omitempty" validate:"gte=0"`
	MaxPages     int      `json:"max_pages,omitempty" yaml:"max_pages,omitempty" validate:"min=1,max=100"`
	FetchDetails bool     `json:"fetch_details" yaml:"fetch_details"`
	Timeout      Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gt=0"`
}

// Defaults
const (
	DefaultPort         = 5000
	DefaultSchedule     = "0 2 * * *"
	DefaultTimezone     = "Africa/Kigali"
	DefaultBaseURL      = "https://www.jobinrwanda.com"
	DefaultDelay        = 2 * time.Second
	DefaultMaxPages     = 10
	DefaultFetchTimeout = 30 * time.Second
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:   DefaultPort,
		AppEnv: "production",
		Scrape: ScrapeConfig{
			Schedule:     DefaultSchedule,
			Timezone:     DefaultTimezone,
			BaseURL:      DefaultBaseURL,
			Delay:        Duration(DefaultDelay),
			MaxPages:     DefaultMaxPages,
			FetchDetails: true,
			Timeout:      Duration(DefaultFetchTimeout),
		},
	}
}

// Load builds the configuration. path may be empty; otherwise it names a
// .json, .yaml or .yml file whose values override the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file type: %s", filepath.Ext(path))
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Port = port
	}
	setString(&c.AppEnv, "APP_ENV")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.NATSURL, "NATS_URL")
	setString(&c.Scrape.Schedule, "SCRAPE_SCHEDULE")
	setString(&c.Scrape.Timezone, "SCRAPE_TIMEZONE")
	setString(&c.Scrape.BaseURL, "SCRAPE_BASE_URL")

	if v := os.Getenv("SCRAPE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCRAPE_DELAY: %w", err)
		}
		c.Scrape.Delay = Duration(d)
	}
	if v := os.Getenv("SCRAPE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCRAPE_TIMEOUT: %w", err)
		}
		c.Scrape.Timeout = Duration(d)
	}
	if v := os.Getenv("SCRAPE_MAX_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SCRAPE_MAX_PAGES: %w", err)
		}
		c.Scrape.MaxPages = n
	}
	if v := os.Getenv("SCRAPE_FETCH_DETAILS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SCRAPE_FETCH_DETAILS: %w", err)
		}
		c.Scrape.FetchDetails = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

var validate = validator.New()

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ValidationError{Cause: err}
	}
	if _, err := time.LoadLocation(c.Scrape.Timezone); err != nil {
		return &ValidationError{Cause: fmt.Errorf("unknown timezone %q: %w", c.Scrape.Timezone, err)}
	}
	return nil
}

// IsDevelopment reports whether APP_ENV is "development".
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// ValidationError wraps a failed configuration check.
type ValidationError struct {
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config error: %v", e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Duration is a time.Duration written as a string like "2s" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}
