package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one observed price sample for a token.
type PricePoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// TokenMetadata is cached external market data for a mint.
// PriceHistory is trimmed to the most recent 300 seconds.
type TokenMetadata struct {
	Mint            string
	LiquidityUSDC   decimal.Decimal
	Volume24hUSDC   decimal.Decimal
	TokenAgeSeconds int64
	PriceHistory    []PricePoint
	LastUpdated     time.Time
}

// QualityLimits configures the pre-trade token-quality filter.
type QualityLimits struct {
	MinLiquidityUSDC  decimal.Decimal
	MaxPriceImpactPct decimal.Decimal
	MinTokenAgeSec    int64
	Min24hVolumeUSDC  decimal.Decimal
	MaxRecentPumpPct  decimal.Decimal
	Whitelist         map[string]struct{}
}

// Whitelisted reports whether the mint bypasses the quality filter.
func (q *QualityLimits) Whitelisted(mint string) bool {
	_, ok := q.Whitelist[mint]
	return ok
}
