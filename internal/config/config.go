package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"flight-deal-alerts/internal/logging"
)

// MinTokenMargin is the smallest renewal margin accepted for cached access tokens.
const MinTokenMargin = 60 * time.Second

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Amadeus   AmadeusConfig   `mapstructure:"amadeus"`
	Search    SearchConfig    `mapstructure:"search"`
	History   HistoryConfig   `mapstructure:"history"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Server    ServerConfig    `mapstructure:"server"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the alert registry.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the alert sweep cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// AmadeusConfig captures connectivity to the flight pricing API.
type AmadeusConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	TokenMargin    time.Duration `mapstructure:"token_margin"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
}

// SearchConfig holds defaults for destination searches.
type SearchConfig struct {
	DefaultOrigin   string   `mapstructure:"default_origin"`
	DefaultMaxPrice float64  `mapstructure:"default_max_price"`
	Origins         []string `mapstructure:"origins"`
}

// HistoryConfig sets the cheapest-date window, in weeks from today.
// Both zero leaves the range to the upstream default.
type HistoryConfig struct {
	WeeksFrom int `mapstructure:"weeks_from"`
	WeeksTo   int `mapstructure:"weeks_to"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
	RetryMax int    `mapstructure:"retry_max"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dealwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("scheduler.interval", "6h")
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x64656164))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("amadeus.base_url", "https://test.api.amadeus.com")
	v.SetDefault("amadeus.client_id", "")
	v.SetDefault("amadeus.client_secret", "")
	v.SetDefault("amadeus.request_timeout", "15s")
	v.SetDefault("amadeus.user_agent", "")
	v.SetDefault("amadeus.token_margin", "60s")
	v.SetDefault("amadeus.rate_per_second", 10.0)
	v.SetDefault("amadeus.burst", 1)

	v.SetDefault("search.default_origin", "ICN")
	v.SetDefault("search.default_max_price", 500000.0)
	v.SetDefault("search.origins", []string{"ICN", "GMP", "PUS"})

	v.SetDefault("history.weeks_from", 4)
	v.SetDefault("history.weeks_to", 8)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.retry_max", 3)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.requests_per_minute", 120)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "dealwatch")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) normalize() {
	c.Search.DefaultOrigin = strings.ToUpper(strings.TrimSpace(c.Search.DefaultOrigin))
	for i, origin := range c.Search.Origins {
		c.Search.Origins[i] = strings.ToUpper(strings.TrimSpace(origin))
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Amadeus.BaseURL == "" {
		return fmt.Errorf("amadeus.base_url must be configured")
	}
	if c.Amadeus.TokenMargin < MinTokenMargin {
		return fmt.Errorf("amadeus.token_margin must be at least %s", MinTokenMargin)
	}
	if c.Amadeus.RatePerSecond < 0 {
		return fmt.Errorf("amadeus.rate_per_second cannot be negative")
	}
	if c.Search.DefaultMaxPrice <= 0 {
		return fmt.Errorf("search.default_max_price must be greater than zero")
	}
	if len(c.Search.DefaultOrigin) != 3 {
		return fmt.Errorf("search.default_origin must be a 3-letter IATA code")
	}
	if c.History.WeeksFrom < 0 || c.History.WeeksTo < c.History.WeeksFrom {
		return fmt.Errorf("history.weeks_from/weeks_to must satisfy 0 <= from <= to")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}

// HasCredentials reports whether API credentials were supplied.
func (c *Config) HasCredentials() bool {
	return c.Amadeus.ClientID != "" && c.Amadeus.ClientSecret != ""
}

// ResolveMaxPrice returns either the CLI override or the configured default.
func (c *Config) ResolveMaxPrice(override float64) float64 {
	if override > 0 {
		return override
	}
	return c.Search.DefaultMaxPrice
}

// ResolveOrigin returns the upper-cased override or the configured default origin.
func (c *Config) ResolveOrigin(override string) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return strings.ToUpper(trimmed)
	}
	return c.Search.DefaultOrigin
}
