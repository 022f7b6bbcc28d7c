package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/flex-integration/internal/backoff"
	"github.com/dgnsrekt/flex-integration/internal/cursor"
	"github.com/dgnsrekt/flex-integration/internal/notify"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Poller  PollerConfig  `mapstructure:"poller"`
	Cursor  CursorConfig  `mapstructure:"cursor"`
	Bulk    BulkConfig    `mapstructure:"bulk"`
	Notify  notify.Config `mapstructure:"notify"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type APIConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TimeoutSec   int    `mapstructure:"timeout_sec"`
	// Client-side pacing in requests per second. Zero disables it.
	QueryRate   float64 `mapstructure:"query_rate"`
	CommandRate float64 `mapstructure:"command_rate"`
}

type PollerConfig struct {
	ResourceType string        `mapstructure:"resource_type"`
	EventTypes   []string      `mapstructure:"event_types"`
	PageSize     int           `mapstructure:"page_size"`
	BusyWait     time.Duration `mapstructure:"busy_wait"`
	IdleWait     time.Duration `mapstructure:"idle_wait"`
}

// Pacer returns the poll pacing described by c.
func (c PollerConfig) Pacer() backoff.Pacer {
	return backoff.Pacer{BusyWait: c.BusyWait, IdleWait: c.IdleWait}
}

type CursorConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	DSN           string `mapstructure:"dsn"`
	Name          string `mapstructure:"name"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// Options converts c for cursor.Open.
func (c CursorConfig) Options() cursor.Options {
	return cursor.Options{
		Backend:       c.Backend,
		Path:          c.Path,
		DSN:           c.DSN,
		Name:          c.Name,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

type BulkConfig struct {
	BaseInterval   time.Duration `mapstructure:"base_interval"`
	InitialPenalty time.Duration `mapstructure:"initial_penalty"`
	MaxJitter      time.Duration `mapstructure:"max_jitter"`
	MaxPenalty     time.Duration `mapstructure:"max_penalty"`
}

// Policy returns the backoff policy for bulk runs.
func (c BulkConfig) Policy() backoff.Policy {
	return backoff.Policy{
		BaseInterval:   c.BaseInterval,
		InitialPenalty: c.InitialPenalty,
		MaxJitter:      c.MaxJitter,
		MaxPenalty:     c.MaxPenalty,
	}
}

type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("api.base_url", "https://flex-integ-api.sharetribe.com")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("api.query_rate", 0)
	v.SetDefault("api.command_rate", 0)
	v.SetDefault("poller.resource_type", "listing")
	v.SetDefault("poller.event_types", []string{"listing/created", "listing/updated"})
	v.SetDefault("poller.page_size", 100)
	v.SetDefault("poller.busy_wait", "250ms")
	v.SetDefault("poller.idle_wait", "10s")
	v.SetDefault("cursor.backend", cursor.BackendFile)
	v.SetDefault("cursor.path", "./notify-new-listings.state")
	v.SetDefault("cursor.name", "notify-new-listings")
	v.SetDefault("cursor.redis_addr", "localhost:6379")
	v.SetDefault("bulk.base_interval", "600ms")
	v.SetDefault("bulk.initial_penalty", "60s")
	v.SetDefault("bulk.max_jitter", "5s")
	v.SetDefault("bulk.max_penalty", "0s")
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("feed.addr", ":8090")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("FLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to the variable names the marketplace
	// tooling has always used.
	_ = v.BindEnv("api.client_id", "FLEX_INTEGRATION_CLIENT_ID")
	_ = v.BindEnv("api.client_secret", "FLEX_INTEGRATION_CLIENT_SECRET")
	_ = v.BindEnv("api.base_url", "FLEX_INTEGRATION_BASE_URL")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.API.ClientID == "" || c.API.ClientSecret == "" {
		return fmt.Errorf("client credentials are required (set FLEX_INTEGRATION_CLIENT_ID and FLEX_INTEGRATION_CLIENT_SECRET)")
	}
	if c.API.TimeoutSec < 1 {
		return fmt.Errorf("api.timeout_sec must be >= 1")
	}
	if err := c.Bulk.Policy().Validate(); err != nil {
		return fmt.Errorf("bulk: %w", err)
	}
	return c.Notify.Validate()
}

// Timeout returns the API request timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
