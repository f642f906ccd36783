// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sitemd/sitemd/internal/crawler"
	"github.com/sitemd/sitemd/internal/policy"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Render  RenderConfig  `mapstructure:"render"`
	Sitemap SitemapConfig `mapstructure:"sitemap"`
	Domains DomainsConfig `mapstructure:"domains"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs pipeline behavior.
type CrawlerConfig struct {
	UserAgent     string `mapstructure:"user_agent"`
	DelayMs       int    `mapstructure:"delay_ms"`
	MaxPages      int    `mapstructure:"max_pages"`
	Retries       int    `mapstructure:"retries"`
	Concurrency   int    `mapstructure:"concurrency"`
	OutputDir     string `mapstructure:"output_dir"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// HTTPConfig configures the static fetch strategy.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RenderConfig configures the headless browser strategy.
type RenderConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	MaxParallel       int  `mapstructure:"max_parallel"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
	SettleMs          int  `mapstructure:"settle_ms"`
}

// SitemapConfig bounds sitemap discovery.
type SitemapConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
	MaxURLs  int `mapstructure:"max_urls"`
}

// DomainsConfig is the domain fetch-mode policy.
type DomainsConfig struct {
	AutoMode    bool             `mapstructure:"auto_mode"`
	DefaultMode string           `mapstructure:"default_mode"`
	Overrides   []DomainOverride `mapstructure:"overrides"`
}

// DomainOverride pins one domain to a fetch mode.
type DomainOverride struct {
	Domain string `mapstructure:"domain"`
	Mode   string `mapstructure:"mode"`
	Match  string `mapstructure:"match"`
}

// MetricsConfig controls the optional observability listener.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. path may be empty, in which
// case defaults plus environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEMD")
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
	v.SetDefault("crawler.user_agent", "sitemd/1.0")
	v.SetDefault("crawler.delay_ms", 250)
	v.SetDefault("crawler.max_pages", 200)
	v.SetDefault("crawler.retries", 0)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.output_dir", "output")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.settle_ms", 500)
	v.SetDefault("sitemap.max_depth", 5)
	v.SetDefault("sitemap.max_urls", 100)
	v.SetDefault("domains.auto_mode", true)
	v.SetDefault("domains.default_mode", "static")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.DelayMs < 0 {
		return fmt.Errorf("crawler.delay_ms must be >= 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.Retries < 0 {
		return fmt.Errorf("crawler.retries must be >= 0")
	}
	if c.Crawler.OutputDir == "" {
		return fmt.Errorf("crawler.output_dir must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering is enabled")
	}
	if c.Sitemap.MaxDepth <= 0 {
		return fmt.Errorf("sitemap.max_depth must be > 0")
	}
	if c.Sitemap.MaxURLs <= 0 {
		return fmt.Errorf("sitemap.max_urls must be > 0")
	}
	if _, err := crawler.ParseFetchMode(c.Domains.DefaultMode); err != nil {
		return fmt.Errorf("domains.default_mode: %w", err)
	}
	for _, o := range c.Domains.Overrides {
		if o.Domain == "" {
			return fmt.Errorf("domains.overrides entries need a domain")
		}
		if _, err := crawler.ParseFetchMode(o.Mode); err != nil {
			return fmt.Errorf("domains.overrides[%s]: %w", o.Domain, err)
		}
		switch o.Match {
		case "", policy.MatchExact, policy.MatchSubdomain:
		default:
			return fmt.Errorf("domains.overrides[%s]: unknown match kind %q", o.Domain, o.Match)
		}
	}
	return nil
}

// Delay returns the inter-page pause as a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Crawler.DelayMs) * time.Millisecond
}

// HTTPTimeout returns the static fetch timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout returns the browser navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSeconds) * time.Second
}

// Settle returns the post-load settle pause as a duration.
func (c Config) Settle() time.Duration {
	return time.Duration(c.Render.SettleMs) * time.Millisecond
}

// PolicyConfig maps the domain section onto the policy resolver's input.
func (c Config) PolicyConfig() (policy.Config, error) {
	defaultMode, err := crawler.ParseFetchMode(c.Domains.DefaultMode)
	if err != nil {
		return policy.Config{}, fmt.Errorf("domains.default_mode: %w", err)
	}
	out := policy.Config{
		AutoMode:    c.Domains.AutoMode,
		DefaultMode: defaultMode,
	}
	for _, o := range c.Domains.Overrides {
		mode, err := crawler.ParseFetchMode(o.Mode)
		if err != nil {
			return policy.Config{}, fmt.Errorf("domains.overrides[%s]: %w", o.Domain, err)
		}
		out.Overrides = append(out.Overrides, policy.Override{
			Domain: o.Domain,
			Mode:   mode,
			Match:  o.Match,
		})
	}
	return out, nil
}
