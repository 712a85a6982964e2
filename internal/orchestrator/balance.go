package orchestrator

import (
	"sync"

	"github.com/shopspring/decimal"
)

// BalanceSource reports the copy wallet's spendable USDC. The risk gate
// consumes it before every buy.
type BalanceSource interface {
	USDCBalance() decimal.Decimal
}

// BalanceTracker is a process-local balance view seeded at startup and
// adjusted as copies execute. The chain stays authoritative; this exists
// so the reserve check never waits on an RPC round-trip.
type BalanceTracker struct {
	mu      sync.RWMutex
	balance decimal.Decimal
}

// NewBalanceTracker seeds the tracker.
func NewBalanceTracker(initial decimal.Decimal) *BalanceTracker {
	return &BalanceTracker{balance: initial}
}

// USDCBalance returns the current view.
func (b *BalanceTracker) USDCBalance() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balance
}

// Spend subtracts a buy's cost.
func (b *BalanceTracker) Spend(amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance = b.balance.Sub(amount)
}

// Receive adds a sell's proceeds.
func (b *BalanceTracker) Receive(amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance = b.balance.Add(amount)
}
