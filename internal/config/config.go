// Package config defines all runtime configuration for the mirror, loaded
// entirely from environment variables via viper's AutomaticEnv binding.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/depthmirror/depthmirror/internal/venue"
)

// Config is the top-level runtime configuration.
type Config struct {
	BinanceWSURL   string        `mapstructure:"binance_ws_url"`
	BinanceRESTURL string        `mapstructure:"binance_rest_url"`
	TradingPairs   []string      `mapstructure:"-"`
	Port           int           `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	OrderbookDepth int           `mapstructure:"orderbook_depth"`
	BootstrapMode  string        `mapstructure:"bootstrap_mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
}

// Load reads configuration purely from the environment: every field has a
// SetDefault below and an explicit BindEnv so AutomaticEnv picks up
// TRADING_PAIRS, BINANCE_WS_URL, and so on without a config file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("binance_ws_url", "wss://fstream.binance.com/ws")
	v.SetDefault("binance_rest_url", "https://fapi.binance.com")
	v.SetDefault("trading_pairs", "BTCUSDT")
	v.SetDefault("port", 3000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("orderbook_depth", 1000)
	v.SetDefault("bootstrap_mode", string(venue.BootstrapLiveFirst))
	v.SetDefault("read_timeout", 60*time.Second)
	v.SetDefault("ping_interval", 20*time.Second)

	for _, key := range []string{
		"binance_ws_url", "binance_rest_url", "trading_pairs", "port",
		"log_level", "log_format", "orderbook_depth", "bootstrap_mode",
		"read_timeout", "ping_interval",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// TRADING_PAIRS arrives as a single comma-separated env var, not a YAML
	// list, so it needs splitting by hand rather than mapstructure's default
	// string-to-slice hook.
	if raw := v.GetString("trading_pairs"); raw != "" {
		pairs := strings.Split(raw, ",")
		for i, p := range pairs {
			pairs[i] = strings.ToUpper(strings.TrimSpace(p))
		}
		cfg.TradingPairs = pairs
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.BinanceWSURL == "" {
		return fmt.Errorf("binance_ws_url is required")
	}
	if c.BinanceRESTURL == "" {
		return fmt.Errorf("binance_rest_url is required")
	}
	if len(c.TradingPairs) == 0 {
		return fmt.Errorf("trading_pairs must contain at least one symbol")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.OrderbookDepth <= 0 {
		return fmt.Errorf("orderbook_depth must be > 0")
	}
	switch venue.BootstrapMode(c.BootstrapMode) {
	case venue.BootstrapLiveFirst, venue.BootstrapSnapshotFirst:
	default:
		return fmt.Errorf("bootstrap_mode must be %q or %q", venue.BootstrapLiveFirst, venue.BootstrapSnapshotFirst)
	}
	return nil
}
