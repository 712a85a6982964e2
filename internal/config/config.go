// Package config loads engine configuration: defaults, a YAML file, then
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Stream  StreamConfig  `yaml:"stream"`
	RPC     RPCConfig     `yaml:"rpc"`
	Trade   TradeConfig   `yaml:"trade"`
	Risk    RiskConfig    `yaml:"risk"`
	Filter  FilterConfig  `yaml:"filter"`
	Exit    ExitConfig    `yaml:"exit"`
	APIs    APIConfig     `yaml:"apis"`
	Archive ArchiveConfig `yaml:"archive"`
	Log     LogConfig     `yaml:"log"`

	// WatchedWallets seeds the watchlist. When a Postgres store is
	// configured, its wallets are added on top of these.
	WatchedWallets []string `yaml:"watched_wallets"`

	// WalletUSDCBalance seeds the local balance view for the reserve check.
	WalletUSDCBalance float64 `yaml:"wallet_usdc_balance"`

	// MetricsListenAddr serves /metrics, /healthz and the notification
	// WebSocket. Empty disables the listener.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	// WalletSecretKey is env-only (WALLET_SECRET_KEY); never in YAML.
	WalletSecretKey string `yaml:"-"`
}

// StreamConfig configures the upstream shred stream.
type StreamConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ReconnectMs int    `yaml:"reconnect_ms"`
	MaxAttempts int    `yaml:"max_attempts"` // 0 = unbounded
}

// RPCConfig configures the chain provider.
type RPCConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// TradeConfig configures copy execution.
type TradeConfig struct {
	AmountUSDC               float64  `yaml:"amount_usdc"`
	AllowedTokens            []string `yaml:"allowed_tokens"`
	SlippageBps              int      `yaml:"slippage_bps"`
	PriorityFeeMicroLamports uint64   `yaml:"priority_fee_microlamports"`
	UseBundleRelay           bool     `yaml:"use_bundle_relay"`
	BundleTipLamports        uint64   `yaml:"bundle_tip_lamports"`
	BundleRelayEndpoint      string   `yaml:"bundle_relay_endpoint"`
	MinTradeUSDC             float64  `yaml:"min_trade_usdc"`
	CopyBuysOnly             bool     `yaml:"copy_buys_only"`
	Enabled                  bool     `yaml:"enabled"`
}

// RiskConfig configures the position ledger gates.
type RiskConfig struct {
	MaxPositionUSDC      float64 `yaml:"max_position_usdc"`
	MaxTotalExposureUSDC float64 `yaml:"max_total_exposure_usdc"`
	MaxOpenPositions     int     `yaml:"max_open_positions"`
	MinUSDCReserve       float64 `yaml:"min_usdc_reserve"`
}

// FilterConfig configures the token-quality filter.
type FilterConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MinLiquidityUSDC  float64 `yaml:"min_liquidity_usdc"`
	MaxPriceImpactPct float64 `yaml:"max_price_impact_pct"`
	MinTokenAgeSec    int64   `yaml:"min_token_age_seconds"`
	Min24hVolumeUSDC  float64 `yaml:"min_24h_volume_usdc"`
	MaxRecentPumpPct  float64 `yaml:"max_recent_pump_pct"`
}

// TakeProfitTarget is one ladder rung: profit% threshold and sell% share.
type TakeProfitTarget struct {
	ProfitPct float64 `yaml:"profit_pct"`
	SellPct   float64 `yaml:"sell_pct"`
}

// ExitConfig configures the exit manager.
type ExitConfig struct {
	Enabled               bool               `yaml:"enabled"`
	TakeProfitTargets     []TakeProfitTarget `yaml:"take_profit_targets"`
	StopLossPct           float64            `yaml:"stop_loss_pct"`
	MaxHoldHours          int                `yaml:"max_hold_hours"`
	TrailingStopPct       *float64           `yaml:"trailing_stop_pct"`
	TrailingActivationPct *float64           `yaml:"trailing_activation_pct"`
	CheckIntervalSeconds  int                `yaml:"check_interval_seconds"`
}

// APIConfig holds external API endpoints. Keys come from env.
type APIConfig struct {
	QuoteBaseURL    string `yaml:"quote_base_url"`
	QuoteAPIKey     string `yaml:"-"` // QUOTE_API_KEY
	PriceBaseURL    string `yaml:"price_base_url"`
	MetadataBaseURL string `yaml:"metadata_base_url"`
}

// ArchiveConfig enables the optional persistence backends.
type ArchiveConfig struct {
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	PostgresDSN   string `yaml:"postgres_dsn"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty = stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// WIFMint is the default whitelisted token.
const WIFMint = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			Endpoint:    "18.234.24.82:50051",
			ReconnectMs: 5000,
			MaxAttempts: 0,
		},
		Trade: TradeConfig{
			AmountUSDC:               2,
			AllowedTokens:            []string{WIFMint},
			SlippageBps:              100,
			PriorityFeeMicroLamports: 200_000,
			UseBundleRelay:           false,
			BundleTipLamports:        1_000_000,
			MinTradeUSDC:             1,
			CopyBuysOnly:             false,
			Enabled:                  true,
		},
		Risk: RiskConfig{
			MaxPositionUSDC:      50,
			MaxTotalExposureUSDC: 200,
			MaxOpenPositions:     10,
			MinUSDCReserve:       10,
		},
		Filter: FilterConfig{
			Enabled:           true,
			MinLiquidityUSDC:  50_000,
			MaxPriceImpactPct: 2,
			MinTokenAgeSec:    3600,
			Min24hVolumeUSDC:  10_000,
			MaxRecentPumpPct:  50,
		},
		Exit: ExitConfig{
			Enabled: false,
			TakeProfitTargets: []TakeProfitTarget{
				{ProfitPct: 50, SellPct: 25},
				{ProfitPct: 100, SellPct: 50},
				{ProfitPct: 300, SellPct: 100},
			},
			StopLossPct:          -30,
			MaxHoldHours:         24,
			CheckIntervalSeconds: 30,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		WalletUSDCBalance: 100,
	}
}

// Load reads defaults, overlays the YAML file when path is non-empty, then
// applies environment overrides and validates.
func Load(path string) (*Config, error) {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RPC_ENDPOINT"); v != "" {
		cfg.RPC.Endpoint = v
	}
	if v := os.Getenv("STREAM_ENDPOINT"); v != "" {
		cfg.Stream.Endpoint = v
	}
	if v := os.Getenv("WALLET_SECRET_KEY"); v != "" {
		cfg.WalletSecretKey = v
	}
	if v := os.Getenv("QUOTE_API_KEY"); v != "" {
		cfg.APIs.QuoteAPIKey = v
	}
	if v := os.Getenv("WALLET_USDC_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.WalletUSDCBalance = f
		}
	}
}

// Validate enforces the data-model positivity constraints.
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("rpc.endpoint is required")
	}
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream.endpoint is required")
	}
	if c.Trade.AmountUSDC <= 0 {
		return fmt.Errorf("trade.amount_usdc must be positive")
	}
	if c.Trade.SlippageBps <= 0 {
		return fmt.Errorf("trade.slippage_bps must be positive")
	}
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"risk.max_position_usdc", c.Risk.MaxPositionUSDC},
		{"risk.max_total_exposure_usdc", c.Risk.MaxTotalExposureUSDC},
		{"risk.min_usdc_reserve", c.Risk.MinUSDCReserve},
	} {
		if field.value <= 0 {
			return fmt.Errorf("%s must be positive", field.name)
		}
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be positive")
	}
	if c.Exit.Enabled {
		if c.Exit.CheckIntervalSeconds <= 0 {
			return fmt.Errorf("exit.check_interval_seconds must be positive")
		}
		for _, t := range c.Exit.TakeProfitTargets {
			if t.ProfitPct <= 0 || t.SellPct <= 0 || t.SellPct > 100 {
				return fmt.Errorf("exit.take_profit_targets entries must have positive profit_pct and sell_pct in (0,100]")
			}
		}
		if (c.Exit.TrailingStopPct == nil) != (c.Exit.TrailingActivationPct == nil) {
			return fmt.Errorf("exit.trailing_stop_pct and exit.trailing_activation_pct must be set together")
		}
	}
	return nil
}

// AmountUSDCDecimal returns the copy size as a decimal.
func (c *Config) AmountUSDCDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Trade.AmountUSDC)
}
