// Package events carries the engine's outbound notifications: a bounded
// in-process bus plus an optional WebSocket broadcaster.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shredcopy/internal/domain"
)

// Event type constants.
const (
	TypeTradeDetected   = "trade_detected"
	TypeCopyInitiated   = "copy_initiated"
	TypeCopyComplete    = "copy_complete"
	TypeCopySkipped     = "copy_skipped"
	TypeCopyFailed      = "copy_failed"
	TypePositionOpened  = "position_opened"
	TypePositionUpdated = "position_updated"
	TypePositionClosed  = "position_closed"
	TypeLimitWarning    = "limit_warning"
	TypeExitTriggered   = "exit_triggered"
	TypeExitExecuted    = "exit_executed"
	TypeExitFailed      = "exit_failed"
)

// Event is the envelope published to consumers.
type Event struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// New wraps a payload in an envelope.
func New(eventType string, data interface{}) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: eventType,
		At:   time.Now(),
		Data: data,
	}
}

// CopyComplete is the payload of a successful copy.
type CopyComplete struct {
	Original      *domain.DetectedTrade `json:"original"`
	CopySignature string                `json:"copy_signature"`
	CopyLatencyMs int64                 `json:"copy_latency_ms"`
	E2ELatencyMs  int64                 `json:"e2e_latency_ms"`
}

// CopySkipped is the payload of a filtered or deduplicated copy.
type CopySkipped struct {
	Trade   *domain.DetectedTrade `json:"trade"`
	Reason  string                `json:"reason"`
	Details string                `json:"details,omitempty"`
}

// CopyFailed is the payload of an errored copy attempt.
type CopyFailed struct {
	Trade *domain.DetectedTrade `json:"trade"`
	Error string                `json:"error"`
}

// PositionClosed is the payload emitted when a position fully unwinds.
type PositionClosed struct {
	Position       *domain.Position `json:"position"`
	RealizedPnlUSD decimal.Decimal  `json:"realized_pnl_usdc"`
	RealizedPnlPct decimal.Decimal  `json:"realized_pnl_pct"`
}

// LimitWarning fires when a passing trade lands at >= 80% of a risk limit.
type LimitWarning struct {
	Type    string          `json:"type"` // "position" | "exposure"
	Current decimal.Decimal `json:"current"`
	Max     decimal.Decimal `json:"max"`
	Percent decimal.Decimal `json:"percent"`
}

// ExitEvent is the payload of exit_triggered / exit_executed / exit_failed.
type ExitEvent struct {
	TokenMint string          `json:"token_mint"`
	Rule      string          `json:"rule"`
	SellPct   decimal.Decimal `json:"sell_pct"`
	Price     decimal.Decimal `json:"price,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Error     string          `json:"error,omitempty"`
}
