// Package storage defines the persistence interfaces the engine consumes.
// Positions are never persisted; the stores here hold append-only trade
// analytics and the durable watchlist.
package storage

import (
	"context"
	"time"

	"shredcopy/internal/domain"
)

// CopyResult is the terminal outcome of one copy attempt, archived for
// analytics.
type CopyResult struct {
	OriginalSignature string
	TokenMint         string
	Direction         domain.Direction
	Outcome           string // sent | filtered | deduped | failed
	Reason            string
	CopySignature     string
	CopyLatencyMs     int64
	E2ELatencyMs      int64
	At                time.Time
}

// TradeArchive records detection and copy outcomes. Implementations must
// never block the caller beyond an in-memory append; flushing is
// background work and write failures are dropped with a warning.
type TradeArchive interface {
	// ArchiveTrade buffers a detected trade.
	ArchiveTrade(trade *domain.DetectedTrade)

	// ArchiveCopyResult buffers a terminal copy outcome.
	ArchiveCopyResult(result *CopyResult)

	// Close flushes outstanding buffers and releases the backend.
	Close(ctx context.Context) error
}

// WatchlistStore is the durable source of watched wallets and the token
// whitelist. The live sets stay in memory; the subscription manager writes
// through this store.
type WatchlistStore interface {
	LoadWallets(ctx context.Context) ([]string, error)
	AddWallet(ctx context.Context, address string) error
	RemoveWallet(ctx context.Context, address string) error

	LoadTokenWhitelist(ctx context.Context) ([]string, error)
	AddToken(ctx context.Context, mint string) error
	RemoveToken(ctx context.Context, mint string) error
}
