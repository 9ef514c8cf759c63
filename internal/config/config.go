package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full engine configuration.
type Config struct {
	Storage    StorageConfig
	Exchange   ExchangeConfig
	Monitor    MonitorConfig
	Validation ValidationConfig
	NATS       NATSConfig
	Vault      VaultConfig
}

// StorageConfig configures the file store.
type StorageConfig struct {
	BasePath      string
	RetentionDays int
}

// ExchangeConfig configures the exchange connector.
type ExchangeConfig struct {
	Name         string
	TestNet      bool
	FetchTimeout time.Duration
}

// MonitorConfig configures the background risk monitor.
type MonitorConfig struct {
	ScanInterval  time.Duration
	FastInterval  time.Duration
	MaxAlertCache int
}

// ValidationConfig holds the order-validation thresholds.
type ValidationConfig struct {
	MaxOrderAmount       float64
	PriceDeviationWarn   float64 // fraction of market price
	PriceDeviationError  float64
	LowVolumeThreshold   float64
	HighVolatilityPct    float64 // abs 24h change percent
	BalanceMarginBuffer  float64 // post-trade buffer as fraction of balance
	LiquidityWarnRatio   float64 // order value vs mid-depth
	LiquidityErrorRatio  float64
	MarketSlippageValue  float64 // notional above which market orders warn
	LimitDistanceWarnPct float64 // limit price distance from market
	TradingOpenHour      int
	TradingCloseHour     int
}

// NATSConfig configures the notification publisher. An empty URL disables
// publishing.
type NATSConfig struct {
	URL      string
	ClientID string
}

// VaultConfig configures credential loading.
type VaultConfig struct {
	Address string
	Token   string
	KeyPath string
}

// Load reads configuration from the given file (optional) plus RISK_*
// environment overrides, applying defaults for everything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("risk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Storage: StorageConfig{
			BasePath:      v.GetString("storage.base_path"),
			RetentionDays: v.GetInt("storage.retention_days"),
		},
		Exchange: ExchangeConfig{
			Name:         v.GetString("exchange.name"),
			TestNet:      v.GetBool("exchange.test_net"),
			FetchTimeout: v.GetDuration("exchange.fetch_timeout"),
		},
		Monitor: MonitorConfig{
			ScanInterval:  v.GetDuration("monitor.scan_interval"),
			FastInterval:  v.GetDuration("monitor.fast_interval"),
			MaxAlertCache: v.GetInt("monitor.max_alert_cache"),
		},
		Validation: ValidationConfig{
			MaxOrderAmount:       v.GetFloat64("validation.max_order_amount"),
			PriceDeviationWarn:   v.GetFloat64("validation.price_deviation_warn"),
			PriceDeviationError:  v.GetFloat64("validation.price_deviation_error"),
			LowVolumeThreshold:   v.GetFloat64("validation.low_volume_threshold"),
			HighVolatilityPct:    v.GetFloat64("validation.high_volatility_pct"),
			BalanceMarginBuffer:  v.GetFloat64("validation.balance_margin_buffer"),
			LiquidityWarnRatio:   v.GetFloat64("validation.liquidity_warn_ratio"),
			LiquidityErrorRatio:  v.GetFloat64("validation.liquidity_error_ratio"),
			MarketSlippageValue:  v.GetFloat64("validation.market_slippage_value"),
			LimitDistanceWarnPct: v.GetFloat64("validation.limit_distance_warn_pct"),
			TradingOpenHour:      v.GetInt("validation.trading_open_hour"),
			TradingCloseHour:     v.GetInt("validation.trading_close_hour"),
		},
		NATS: NATSConfig{
			URL:      v.GetString("nats.url"),
			ClientID: v.GetString("nats.client_id"),
		},
		Vault: VaultConfig{
			Address: v.GetString("vault.address"),
			Token:   v.GetString("vault.token"),
			KeyPath: v.GetString("vault.key_path"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.base_path", "./data")
	v.SetDefault("storage.retention_days", 90)

	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.test_net", false)
	v.SetDefault("exchange.fetch_timeout", 3*time.Second)

	v.SetDefault("monitor.scan_interval", time.Minute)
	v.SetDefault("monitor.fast_interval", 5*time.Second)
	v.SetDefault("monitor.max_alert_cache", 100)

	v.SetDefault("validation.max_order_amount", 1_000_000.0)
	v.SetDefault("validation.price_deviation_warn", 0.10)
	v.SetDefault("validation.price_deviation_error", 0.30)
	v.SetDefault("validation.low_volume_threshold", 10_000.0)
	v.SetDefault("validation.high_volatility_pct", 20.0)
	v.SetDefault("validation.balance_margin_buffer", 0.10)
	v.SetDefault("validation.liquidity_warn_ratio", 0.10)
	v.SetDefault("validation.liquidity_error_ratio", 0.30)
	v.SetDefault("validation.market_slippage_value", 10_000.0)
	v.SetDefault("validation.limit_distance_warn_pct", 0.05)
	v.SetDefault("validation.trading_open_hour", 9)
	v.SetDefault("validation.trading_close_hour", 16)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.client_id", "risk-engine")

	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.key_path", "secret/data/exchanges/binance")
}
