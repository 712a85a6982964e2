package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open holding tracked by the ledger. Invariants:
// AmountRaw > 0, TotalCostUSDC > 0, and AvgEntryPriceUSDC equals
// TotalCostUSDC divided by the UI-unit amount (raw / 10^decimals).
type Position struct {
	TokenMint         string
	TokenDecimals     uint8
	AmountRaw         uint64
	AvgEntryPriceUSDC decimal.Decimal
	TotalCostUSDC     decimal.Decimal
	EntryTime         time.Time
	Signatures        []string
	BuyCount          uint32
	SellCount         uint32
}

// UIAmount converts the raw holding into UI units using the token decimals.
func (p *Position) UIAmount() decimal.Decimal {
	return decimal.NewFromUint64(p.AmountRaw).Shift(-int32(p.TokenDecimals))
}

// RiskLimits bounds what the ledger will let the copy wallet do.
// All values are positive.
type RiskLimits struct {
	MaxPositionUSDC      decimal.Decimal
	MaxTotalExposureUSDC decimal.Decimal
	MaxOpenPositions     int
	MinUSDCReserve       decimal.Decimal
}

// Decision is the outcome of a pre-trade gate (risk or quality).
// A rejected decision carries the categorical reason; it is not an error.
type Decision struct {
	Allowed bool
	Reason  string
	Detail  string
}

// Allow returns a passing decision.
func Allow() Decision { return Decision{Allowed: true} }

// Reject returns a failing decision with a categorical reason and detail.
func Reject(reason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail}
}
