package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a trade from the watched user's perspective.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// AggregatorTag identifies which routing program a transaction went through.
type AggregatorTag string

const (
	AggregatorA    AggregatorTag = "A" // Jupiter v6 router
	AggregatorB    AggregatorTag = "B" // OKX DEX router
	AggregatorNone AggregatorTag = ""
)

// DetectedTrade is a normalized swap reconstructed from a watched wallet's
// balance deltas. Invariants: UsdcAmount > 0 and TokenMint != USDCMint.
type DetectedTrade struct {
	Signature      string          // base58 transaction signature
	Slot           uint64          // slot the entry arrived on
	Direction      Direction       // BUY | SELL
	TokenMint      string          // the non-USDC side of the swap
	UsdcAmount     decimal.Decimal // absolute USDC delta, 6 decimal places
	TokenAmountRaw uint64          // absolute token delta in raw units
	TokenDecimals  uint8           // decimals of TokenMint
	User           string          // watched wallet that traded
	Aggregator     AggregatorTag   // which router carried the swap
	DetectedAt     time.Time       // when reconstruction completed
}

// TokenBalanceDelta is a per-(mint, owner) holding change computed from
// pre/post token balances of an executed transaction.
type TokenBalanceDelta struct {
	Mint     string
	Owner    string
	RawDelta decimal.Decimal // post_raw - pre_raw, exact integer
	Decimals uint8
}
