package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Collector CollectorConfig `yaml:"collector"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Cache     CacheConfig     `yaml:"cache"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig selects the post store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite", "postgres" or "memory"
	Path   string `yaml:"path"`   // sqlite file
	URL    string `yaml:"url"`    // postgres connection string
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// CollectorConfig configures Reddit collection.
type CollectorConfig struct {
	Mode         string   `yaml:"mode"` // "api", "public", "feed" or "mock"
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	UserAgent    string   `yaml:"user_agent"`
	Subreddits   []string `yaml:"subreddits"`
	Limit        int      `yaml:"limit"`
	RateInterval string   `yaml:"rate_interval"`
}

// ParseRateInterval returns the minimum delay between Reddit requests.
func (c CollectorConfig) ParseRateInterval() time.Duration {
	return parseDuration(c.RateInterval, 1100*time.Millisecond)
}

// ScheduleConfig configures collection and trending alert intervals.
type ScheduleConfig struct {
	CollectInterval string `yaml:"collect_interval"`
	TrendInterval   string `yaml:"trend_interval"`
}

// ParseCollectInterval returns the collect interval as time.Duration.
func (s ScheduleConfig) ParseCollectInterval() time.Duration {
	return parseDuration(s.CollectInterval, 15*time.Minute)
}

// ParseTrendInterval returns the trend interval as time.Duration.
func (s ScheduleConfig) ParseTrendInterval() time.Duration {
	return parseDuration(s.TrendInterval, 30*time.Minute)
}

// AnalysisConfig configures the optional AI virality analysis.
type AnalysisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
	CacheTTL string `yaml:"cache_ttl"`
}

// ParseTimeout returns the per-request timeout of the analysis API.
func (a AnalysisConfig) ParseTimeout() time.Duration {
	return parseDuration(a.Timeout, 30*time.Second)
}

// ParseCacheTTL returns how long analysis answers are cached.
func (a AnalysisConfig) ParseCacheTTL() time.Duration {
	return parseDuration(a.CacheTTL, 10*time.Minute)
}

// CacheConfig configures the shared cache. An empty address selects the
// in-process cache.
type CacheConfig struct {
	ValkeyAddress  string `yaml:"valkey_address"`
	ValkeyPassword string `yaml:"valkey_password"`
	ValkeyTLS      bool   `yaml:"valkey_tls"`
}

// AlertsConfig configures alert destinations for trending posts.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"` // negative disables
	CORSOrigins        []string `yaml:"cors_origins"`
	LiveInterval       string   `yaml:"live_interval"`
}

// ParseLiveInterval returns the push period of the live predictions stream.
func (s ServerConfig) ParseLiveInterval() time.Duration {
	return parseDuration(s.LiveInterval, 30*time.Second)
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "./mememarket.db"},
		Collector: CollectorConfig{
			Mode:         "public",
			UserAgent:    "MemeMarket/1.0",
			Limit:        50,
			RateInterval: "1.1s",
		},
		Schedule: ScheduleConfig{
			CollectInterval: "15m",
			TrendInterval:   "30m",
		},
		Analysis: AnalysisConfig{
			BaseURL:  "https://api.perplexity.ai/",
			Model:    "llama-3.1-sonar-small-128k-online",
			Timeout:  "30s",
			CacheTTL: "10m",
		},
		Server: ServerConfig{
			Port:               8080,
			RateLimitPerMinute: 60,
			CORSOrigins:        []string{"http://localhost:3000"},
			LiveInterval:       "30s",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file, a .env file in the working
// directory if present, and environment variables, in increasing priority.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of sqlite, postgres, memory", c.Database.Driver))
	}

	switch c.Collector.Mode {
	case "public", "feed", "mock":
	case "api":
		if c.Collector.ClientID == "" || c.Collector.ClientSecret == "" {
			errs = append(errs, errors.New("collector.client_id and collector.client_secret are required in api mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("collector.mode %q is not one of api, public, feed, mock", c.Collector.Mode))
	}

	if c.Collector.Limit < 1 || c.Collector.Limit > 100 {
		errs = append(errs, fmt.Errorf("collector.limit %d must be between 1 and 100", c.Collector.Limit))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEMEMARKET_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		cfg.Database.Driver = "postgres"
	}
	if v := os.Getenv("COLLECTOR_MODE"); v != "" {
		cfg.Collector.Mode = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Collector.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Collector.ClientSecret = v
	}
	if v := os.Getenv("REDDIT_USERNAME"); v != "" {
		cfg.Collector.Username = v
	}
	if v := os.Getenv("REDDIT_PASSWORD"); v != "" {
		cfg.Collector.Password = v
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		cfg.Collector.UserAgent = v
	}
	if v := os.Getenv("REDDIT_SUBREDDITS"); v != "" {
		cfg.Collector.Subreddits = splitList(v)
	}
	if v := os.Getenv("PERPLEXITY_API_KEY"); v != "" {
		cfg.Analysis.APIKey = v
		cfg.Analysis.Enabled = true
	}
	if v := os.Getenv("VALKEY_INIT_ADDRESS"); v != "" {
		cfg.Cache.ValkeyAddress = v
	}
	if v := os.Getenv("VALKEY_PASSWORD"); v != "" {
		cfg.Cache.ValkeyPassword = v
	}
	if v := os.Getenv("VALKEY_TLS"); v != "" {
		cfg.Cache.ValkeyTLS = v == "true"
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
