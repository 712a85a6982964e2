package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "18.234.24.82:50051", cfg.Stream.Endpoint)
	assert.Equal(t, 5000, cfg.Stream.ReconnectMs)
	assert.Equal(t, 0, cfg.Stream.MaxAttempts)

	assert.Equal(t, float64(2), cfg.Trade.AmountUSDC)
	assert.Equal(t, []string{WIFMint}, cfg.Trade.AllowedTokens)
	assert.Equal(t, 100, cfg.Trade.SlippageBps)
	assert.Equal(t, uint64(200_000), cfg.Trade.PriorityFeeMicroLamports)
	assert.False(t, cfg.Trade.UseBundleRelay)
	assert.Equal(t, uint64(1_000_000), cfg.Trade.BundleTipLamports)

	assert.Equal(t, float64(50), cfg.Risk.MaxPositionUSDC)
	assert.Equal(t, float64(200), cfg.Risk.MaxTotalExposureUSDC)
	assert.Equal(t, 10, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, float64(10), cfg.Risk.MinUSDCReserve)

	assert.True(t, cfg.Filter.Enabled)
	assert.Equal(t, float64(50_000), cfg.Filter.MinLiquidityUSDC)
	assert.Equal(t, float64(2), cfg.Filter.MaxPriceImpactPct)
	assert.Equal(t, int64(3600), cfg.Filter.MinTokenAgeSec)
	assert.Equal(t, float64(10_000), cfg.Filter.Min24hVolumeUSDC)
	assert.Equal(t, float64(50), cfg.Filter.MaxRecentPumpPct)

	assert.False(t, cfg.Exit.Enabled)
	require.Len(t, cfg.Exit.TakeProfitTargets, 3)
	assert.Equal(t, TakeProfitTarget{ProfitPct: 50, SellPct: 25}, cfg.Exit.TakeProfitTargets[0])
	assert.Equal(t, TakeProfitTarget{ProfitPct: 300, SellPct: 100}, cfg.Exit.TakeProfitTargets[2])
	assert.Equal(t, float64(-30), cfg.Exit.StopLossPct)
	assert.Equal(t, 24, cfg.Exit.MaxHoldHours)
	assert.Nil(t, cfg.Exit.TrailingStopPct)
	assert.Nil(t, cfg.Exit.TrailingActivationPct)
	assert.Equal(t, 30, cfg.Exit.CheckIntervalSeconds)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc:
  endpoint: https://rpc.example.com
trade:
  amount_usdc: 5
risk:
  max_open_positions: 3
exit:
  enabled: true
  check_interval_seconds: 15
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", cfg.RPC.Endpoint)
	assert.Equal(t, float64(5), cfg.Trade.AmountUSDC)
	assert.Equal(t, 3, cfg.Risk.MaxOpenPositions)
	assert.True(t, cfg.Exit.Enabled)
	assert.Equal(t, 15, cfg.Exit.CheckIntervalSeconds)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.Trade.SlippageBps)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RPC_ENDPOINT", "https://env.example.com")
	t.Setenv("WALLET_SECRET_KEY", "secret123")
	t.Setenv("QUOTE_API_KEY", "qk")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.RPC.Endpoint)
	assert.Equal(t, "secret123", cfg.WalletSecretKey)
	assert.Equal(t, "qk", cfg.APIs.QuoteAPIKey)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.RPC.Endpoint = "https://rpc"
		return cfg
	}

	assert.NoError(t, base().Validate())

	missing := base()
	missing.RPC.Endpoint = ""
	assert.Error(t, missing.Validate())

	badAmount := base()
	badAmount.Trade.AmountUSDC = 0
	assert.Error(t, badAmount.Validate())

	badReserve := base()
	badReserve.Risk.MinUSDCReserve = -1
	assert.Error(t, badReserve.Validate())

	badLadder := base()
	badLadder.Exit.Enabled = true
	badLadder.Exit.TakeProfitTargets = []TakeProfitTarget{{ProfitPct: 50, SellPct: 150}}
	assert.Error(t, badLadder.Validate())

	halfTrailing := base()
	halfTrailing.Exit.Enabled = true
	v := 20.0
	halfTrailing.Exit.TrailingStopPct = &v
	assert.Error(t, halfTrailing.Validate())
}
