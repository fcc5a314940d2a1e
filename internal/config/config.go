// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fieldworks/postwatch/internal/crawl"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Session  SessionConfig  `mapstructure:"session"`
	Recovery RecoveryConfig `mapstructure:"recovery"`
	Output   OutputConfig   `mapstructure:"output"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Targets  []crawl.Target `mapstructure:"targets"`
}

// ServerConfig controls the status/confirmation HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// BrowserConfig configures the chromedp rendering agent.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	UserAgent     string `mapstructure:"user_agent"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	StepTimeout   int    `mapstructure:"step_timeout_seconds"`
	WindowWidth   int    `mapstructure:"window_width"`
	WindowHeight  int    `mapstructure:"window_height"`
}

// CrawlConfig governs the crawl loop and worker pool.
type CrawlConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	PageSize          int `mapstructure:"page_size"`
	MaxPagesPerSeed   int `mapstructure:"max_pages_per_seed"`
	SignatureDepth    int `mapstructure:"signature_depth"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// ExtractConfig bounds the per-page extraction pipeline.
type ExtractConfig struct {
	MaxScrolls         int    `mapstructure:"max_scrolls"`
	StabilityPolls     int    `mapstructure:"stability_polls"`
	PollDelayMs        int    `mapstructure:"poll_delay_ms"`
	RecordChangeSec    int    `mapstructure:"record_change_timeout_seconds"`
	DetailTimeoutSec   int    `mapstructure:"detail_timeout_seconds"`
	PermalinkFormat    string `mapstructure:"permalink_format"`
	AccessorPollMs     int    `mapstructure:"accessor_poll_ms"`
	ActivateJitterMs   int    `mapstructure:"activate_jitter_ms"`
	OffsetParam        string `mapstructure:"offset_param"`
	SignatureFirstOnly bool   `mapstructure:"signature_first_only"`
}

// SessionConfig bounds seed navigation and logged-out detection.
type SessionConfig struct {
	SeedNavAttempts  int `mapstructure:"seed_nav_attempts"`
	NavRetryDelaySec int `mapstructure:"nav_retry_delay_seconds"`
}

// RecoveryConfig bounds session restart behavior.
type RecoveryConfig struct {
	MaxAttempts  int `mapstructure:"max_attempts"`
	BaseDelaySec int `mapstructure:"base_delay_seconds"`
	MaxDelaySec  int `mapstructure:"max_delay_seconds"`
}

// OutputConfig sets local persistence paths.
type OutputConfig struct {
	CheckpointDir   string `mapstructure:"checkpoint_dir"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// DBConfig controls the optional Postgres record store.
type DBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POSTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.step_timeout_seconds", 15)
	v.SetDefault("browser.window_width", 1440)
	v.SetDefault("browser.window_height", 1000)
	v.SetDefault("crawl.concurrency", 1)
	v.SetDefault("crawl.page_size", 25)
	v.SetDefault("crawl.max_pages_per_seed", 400)
	v.SetDefault("crawl.signature_depth", 10)
	v.SetDefault("crawl.requests_per_minute", 12)
	v.SetDefault("extract.max_scrolls", 12)
	v.SetDefault("extract.stability_polls", 2)
	v.SetDefault("extract.poll_delay_ms", 500)
	v.SetDefault("extract.record_change_timeout_seconds", 7)
	v.SetDefault("extract.detail_timeout_seconds", 10)
	v.SetDefault("extract.permalink_format", "https://www.linkedin.com/jobs/view/%s/")
	v.SetDefault("extract.accessor_poll_ms", 300)
	v.SetDefault("extract.activate_jitter_ms", 750)
	v.SetDefault("extract.signature_first_only", false)
	v.SetDefault("session.seed_nav_attempts", 3)
	v.SetDefault("session.nav_retry_delay_seconds", 4)
	v.SetDefault("recovery.max_attempts", 3)
	v.SetDefault("recovery.base_delay_seconds", 2)
	v.SetDefault("recovery.max_delay_seconds", 30)
	v.SetDefault("output.checkpoint_dir", "data")
	v.SetDefault("output.credentials_file", "data/cookies.json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.PageSize <= 0 {
		return fmt.Errorf("crawl.page_size must be > 0")
	}
	if c.Crawl.RequestsPerMinute <= 0 {
		return fmt.Errorf("crawl.requests_per_minute must be > 0")
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	for i, target := range c.Targets {
		if target.Name == "" {
			return fmt.Errorf("targets[%d].name is required", i)
		}
		if len(target.SeedURLs) == 0 {
			return fmt.Errorf("targets[%d].seed_urls is required", i)
		}
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db is enabled")
	}
	return nil
}

// NavTimeout converts the browser navigation timeout into a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// SignatureDepth resolves the effective termination signature depth,
// honoring the cheaper first-anchor-only mode.
func (c Config) SignatureDepth() int {
	if c.Extract.SignatureFirstOnly {
		return 1
	}
	return c.Crawl.SignatureDepth
}
