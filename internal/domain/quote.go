package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwapMode selects which leg of a quote is fixed.
type SwapMode string

const (
	SwapModeExactIn  SwapMode = "ExactIn"
	SwapModeExactOut SwapMode = "ExactOut"
)

// Quote is a priced route from the swap aggregator API.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmountRaw          uint64
	OutAmountRaw         uint64
	OtherAmountThreshold uint64
	PriceImpactPct       decimal.Decimal
	Mode                 SwapMode
	FetchedAt            time.Time

	// Raw is the verbatim quote JSON, replayed into the build request.
	Raw []byte
}

// PreBuilt is a swap transaction constructed, signed and cached ahead of
// time. Single use: the cache hands it out at most once.
type PreBuilt struct {
	TokenMint     string
	Direction     Direction // always BUY
	SignedTxBytes []byte
	Signature     string
	Quote         *Quote
	Blockhash     string
	CreatedAt     time.Time
	ExpiresAt     time.Time // CreatedAt + 45s
}

// Expired reports whether the entry is past its expiry at the given time.
func (p *PreBuilt) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
