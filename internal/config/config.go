// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Funding   FundingConfig   `mapstructure:"funding"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// FundingConfig holds the funding-rate monitor's own knobs (spec §6).
type FundingConfig struct {
	CheckIntervalMs        int      `mapstructure:"check_interval_ms"`
	MinSpreadThreshold     float64  `mapstructure:"min_spread_threshold"`
	MonitoredExchanges     []string `mapstructure:"monitored_exchanges"`
	EnablePriceMonitor     bool     `mapstructure:"enable_price_monitor"`
	EnablePositionExit     bool     `mapstructure:"enable_position_exit_monitor"`
	MemoryMonitorIntervalMs int     `mapstructure:"memory_monitor_interval_ms"`
	CoalesceWindowMs       int      `mapstructure:"coalesce_window_ms"`
	TimeBasisHours         int      `mapstructure:"time_basis_hours"`
}

// CheckInterval returns the configured update interval as a duration.
func (c *FundingConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMs) * time.Millisecond
}

// CoalesceWindow returns the per-symbol coalescing window as a duration.
func (c *FundingConfig) CoalesceWindow() time.Duration {
	return time.Duration(c.CoalesceWindowMs) * time.Millisecond
}

// MemoryMonitorInterval returns the memory-sampler interval as a duration.
func (c *FundingConfig) MemoryMonitorInterval() time.Duration {
	return time.Duration(c.MemoryMonitorIntervalMs) * time.Millisecond
}

// CacheConfig holds rates-cache staleness/sweep settings.
type CacheConfig struct {
	StaleThresholdSec int `mapstructure:"stale_threshold_sec"`
	CleanupIntervalSec int `mapstructure:"cleanup_interval_sec"`
}

func (c *CacheConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdSec) * time.Second
}

func (c *CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSec) * time.Second
}

// TrackerConfig holds the opportunity-tracker hysteresis thresholds.
type TrackerConfig struct {
	EntryThresholdPercent float64 `mapstructure:"entry_threshold_percent"`
	ExitThresholdPercent  float64 `mapstructure:"exit_threshold_percent"`
}

// BroadcastConfig holds the diff-broadcast cadence.
type BroadcastConfig struct {
	IntervalMs int `mapstructure:"interval_ms"`
}

func (c *BroadcastConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("FUNDING")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "FUNDING_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "FUNDING_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "FUNDING_LOG_LEVEL", "LOG_LEVEL")

	// Funding monitor — matches spec §6's literal env var names.
	v.BindEnv("funding.check_interval_ms", "FUNDING_RATE_CHECK_INTERVAL_MS")
	v.BindEnv("funding.min_spread_threshold", "MIN_SPREAD_THRESHOLD")
	v.BindEnv("funding.monitored_exchanges", "MONITORED_EXCHANGES")
	v.BindEnv("funding.enable_price_monitor", "ENABLE_PRICE_MONITOR")
	v.BindEnv("funding.enable_position_exit_monitor", "ENABLE_POSITION_EXIT_MONITOR")
	v.BindEnv("funding.memory_monitor_interval_ms", "MEMORY_MONITOR_INTERVAL_MS")

	// Telemetry
	v.BindEnv("telemetry.enabled", "FUNDING_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "FUNDING_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "FUNDING_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "funding-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("funding.check_interval_ms", 300_000)
	v.SetDefault("funding.min_spread_threshold", 0.005)
	v.SetDefault("funding.monitored_exchanges", []string{"binance", "okx", "mexc", "gateio", "bingx"})
	v.SetDefault("funding.enable_price_monitor", true)
	v.SetDefault("funding.enable_position_exit_monitor", false)
	v.SetDefault("funding.memory_monitor_interval_ms", 60_000)
	v.SetDefault("funding.coalesce_window_ms", 100)
	v.SetDefault("funding.time_basis_hours", 8)

	v.SetDefault("cache.stale_threshold_sec", 600)
	v.SetDefault("cache.cleanup_interval_sec", 60)

	v.SetDefault("tracker.entry_threshold_percent", 800.0)
	v.SetDefault("tracker.exit_threshold_percent", 0.0)

	v.SetDefault("broadcast.interval_ms", 2000)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "funding-engine")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Funding.MonitoredExchanges) == 0 {
		return fmt.Errorf("funding.monitored_exchanges cannot be empty")
	}
	for _, ex := range c.Funding.MonitoredExchanges {
		switch strings.ToLower(ex) {
		case "binance", "okx", "mexc", "gateio", "bingx":
		default:
			return fmt.Errorf("funding.monitored_exchanges: unknown exchange %q", ex)
		}
	}
	if c.Funding.CheckIntervalMs <= 0 {
		return fmt.Errorf("funding.check_interval_ms must be positive")
	}
	if c.Cache.StaleThresholdSec <= 0 {
		return fmt.Errorf("cache.stale_threshold_sec must be positive")
	}
	if c.Tracker.EntryThresholdPercent < c.Tracker.ExitThresholdPercent {
		return fmt.Errorf("tracker.entry_threshold_percent must be >= exit_threshold_percent")
	}
	return nil
}
