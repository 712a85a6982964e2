// Package memory holds in-memory store implementations for tests and
// archive-off runs.
package memory

import (
	"context"
	"sync"

	"shredcopy/internal/domain"
	"shredcopy/internal/storage"
)

// TradeArchive is an in-memory implementation of storage.TradeArchive.
type TradeArchive struct {
	mu      sync.RWMutex
	trades  []*domain.DetectedTrade
	results []*storage.CopyResult
}

var _ storage.TradeArchive = (*TradeArchive)(nil)

// NewTradeArchive creates an empty archive.
func NewTradeArchive() *TradeArchive {
	return &TradeArchive{}
}

// ArchiveTrade appends a detected trade.
func (a *TradeArchive) ArchiveTrade(trade *domain.DetectedTrade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *trade
	a.trades = append(a.trades, &cp)
}

// ArchiveCopyResult appends a terminal copy outcome.
func (a *TradeArchive) ArchiveCopyResult(result *storage.CopyResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *result
	a.results = append(a.results, &cp)
}

// Close is a no-op.
func (a *TradeArchive) Close(context.Context) error { return nil }

// Trades returns a copy of the archived trades.
func (a *TradeArchive) Trades() []*domain.DetectedTrade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*domain.DetectedTrade(nil), a.trades...)
}

// CopyResults returns a copy of the archived outcomes.
func (a *TradeArchive) CopyResults() []*storage.CopyResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*storage.CopyResult(nil), a.results...)
}
