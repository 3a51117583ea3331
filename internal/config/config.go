// Package config loads and validates the process configuration. The core
// consumes it read-only; credentials are only ever taken from the
// environment, never from the config file.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Account   AccountConfig   `mapstructure:"account" yaml:"account"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Scraper   ScraperConfig   `mapstructure:"scraper" yaml:"scraper"`
	Sender    SenderConfig    `mapstructure:"sender" yaml:"sender"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
}

// LoggerConfig controls the zap setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AccountConfig carries the login credentials. Email and Password bind to
// CORDSCOPE_ACCOUNT_EMAIL / CORDSCOPE_ACCOUNT_PASSWORD.
type AccountConfig struct {
	Email    string `mapstructure:"email" yaml:"-"`
	Password string `mapstructure:"password" yaml:"-"`
}

// BrowserConfig controls the Chrome instance.
type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent   string        `mapstructure:"user_agent" yaml:"user_agent"`
	UserDataDir string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	ExtraWait   time.Duration `mapstructure:"extra_wait" yaml:"extra_wait"`
}

// SessionConfig controls authentication and cookie persistence.
type SessionConfig struct {
	CookieFile     string        `mapstructure:"cookie_file" yaml:"cookie_file"`
	LoginTimeout   time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	TwoFactorWait  time.Duration `mapstructure:"two_factor_wait" yaml:"two_factor_wait"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	OperationGrace time.Duration `mapstructure:"operation_grace" yaml:"operation_grace"`
}

// ScraperConfig bounds message retrieval cost.
type ScraperConfig struct {
	MaxMessagesCeiling int           `mapstructure:"max_messages_ceiling" yaml:"max_messages_ceiling"`
	MaxScrollSteps     int           `mapstructure:"max_scroll_steps" yaml:"max_scroll_steps"`
	ScrollSettle       time.Duration `mapstructure:"scroll_settle" yaml:"scroll_settle"`
}

// SenderConfig controls outbound message dispatch.
type SenderConfig struct {
	MaxMessageLen int           `mapstructure:"max_message_len" yaml:"max_message_len"`
	ChunkDelay    time.Duration `mapstructure:"chunk_delay" yaml:"chunk_delay"`
}

// RateLimitConfig tunes the shared action pacing policy.
type RateLimitConfig struct {
	MinActionSpacing time.Duration `mapstructure:"min_action_spacing" yaml:"min_action_spacing"`
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffBase      time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap       time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
}

// ArchiveConfig enables optional Postgres persistence of scraped batches.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"-"`
}

// SetDefaults initializes default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "cordscope")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout", "45s")
	v.SetDefault("browser.wait_timeout", "15s")
	v.SetDefault("browser.extra_wait", "0s")

	// -- Session --
	v.SetDefault("session.cookie_file", defaultCookieFile())
	v.SetDefault("session.login_timeout", "60s")
	v.SetDefault("session.two_factor_wait", "120s")
	v.SetDefault("session.probe_timeout", "15s")
	v.SetDefault("session.base_url", "https://discord.com")
	v.SetDefault("session.operation_grace", "5s")

	// -- Scraper --
	v.SetDefault("scraper.max_messages_ceiling", 500)
	v.SetDefault("scraper.max_scroll_steps", 40)
	v.SetDefault("scraper.scroll_settle", "1s")

	// -- Sender --
	v.SetDefault("sender.max_message_len", 2000)
	v.SetDefault("sender.chunk_delay", "1s")

	// -- Rate limit --
	v.SetDefault("rate_limit.min_action_spacing", "750ms")
	v.SetDefault("rate_limit.max_retries", 4)
	v.SetDefault("rate_limit.backoff_base", "500ms")
	v.SetDefault("rate_limit.backoff_cap", "30s")

	// -- Archive --
	v.SetDefault("archive.enabled", false)
}

// defaultCookieFile resolves ~/.cordscope/session.json, falling back to a
// relative path when the home directory cannot be determined.
func defaultCookieFile() string {
	home, err := homedir.Dir()
	if err != nil {
		return "session.json"
	}
	return filepath.Join(home, ".cordscope", "session.json")
}

// NewConfigFromViper builds and validates a Config from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Credentials and the archive DSN only come from the environment.
	v.BindEnv("account.email", "CORDSCOPE_ACCOUNT_EMAIL")
	v.BindEnv("account.password", "CORDSCOPE_ACCOUNT_PASSWORD")
	v.BindEnv("archive.url", "CORDSCOPE_ARCHIVE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks for sane values. Credentials are checked lazily at login
// time so read-only commands against a persisted session still work.
func (c *Config) Validate() error {
	if c.Scraper.MaxMessagesCeiling <= 0 {
		return fmt.Errorf("scraper.max_messages_ceiling must be a positive integer")
	}
	if c.Scraper.MaxScrollSteps <= 0 {
		return fmt.Errorf("scraper.max_scroll_steps must be a positive integer")
	}
	if c.Sender.MaxMessageLen <= 0 {
		return fmt.Errorf("sender.max_message_len must be a positive integer")
	}
	if c.Sender.ChunkDelay < 0 {
		return fmt.Errorf("sender.chunk_delay must not be negative")
	}
	if c.RateLimit.MaxRetries < 0 {
		return fmt.Errorf("rate_limit.max_retries must not be negative")
	}
	if c.RateLimit.BackoffBase <= 0 || c.RateLimit.BackoffCap < c.RateLimit.BackoffBase {
		return fmt.Errorf("rate_limit backoff window is invalid")
	}
	if c.Session.BaseURL == "" {
		return fmt.Errorf("session.base_url is required")
	}
	if c.Archive.Enabled && c.Archive.URL == "" {
		return fmt.Errorf("archive is enabled but CORDSCOPE_ARCHIVE_URL is not set")
	}
	return nil
}
