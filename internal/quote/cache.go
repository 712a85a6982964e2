// Package quote keeps quotes fresh and swap transactions pre-built so the
// copy critical path is reduced to a signature lookup and a network send.
package quote

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shredcopy/internal/domain"
	"shredcopy/internal/jupiter"
)

// Quote cache tunables.
const (
	QuoteTTL        = 5 * time.Second
	RefreshInterval = 3 * time.Second
)

// Fetcher is the quote source. Satisfied by *jupiter.Client.
type Fetcher interface {
	GetQuote(ctx context.Context, req jupiter.QuoteRequest) (*domain.Quote, error)
}

type cacheKey struct {
	input  string
	output string
	amount uint64
	mode   domain.SwapMode
}

// Cache is a TTL quote cache with a background refresher for the
// whitelisted buy quotes.
type Cache struct {
	fetcher     Fetcher
	log         *logrus.Entry
	slippageBps int

	mu      sync.RWMutex
	entries map[cacheKey]*domain.Quote
}

// NewCache creates a quote cache.
func NewCache(fetcher Fetcher, slippageBps int, log *logrus.Logger) *Cache {
	return &Cache{
		fetcher:     fetcher,
		log:         log.WithField("component", "quote_cache"),
		slippageBps: slippageBps,
		entries:     make(map[cacheKey]*domain.Quote),
	}
}

// GetWithCache returns a cached quote younger than the TTL, fetching and
// inserting otherwise.
func (c *Cache) GetWithCache(ctx context.Context, req jupiter.QuoteRequest) (*domain.Quote, error) {
	key := cacheKey{req.InputMint, req.OutputMint, req.AmountRaw, req.Mode}

	c.mu.RLock()
	q, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(q.FetchedAt) < QuoteTTL {
		return q, nil
	}

	return c.refresh(ctx, req, key)
}

// refresh always fetches and replaces the cache entry.
func (c *Cache) refresh(ctx context.Context, req jupiter.QuoteRequest, key cacheKey) (*domain.Quote, error) {
	fresh, err := c.fetcher.GetQuote(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = fresh
	c.mu.Unlock()
	return fresh, nil
}

// RunRefresher keeps the USDC→token ExactIn quote warm for each
// whitelisted mint, one fetch per mint per interval.
func (c *Cache) RunRefresher(ctx context.Context, mints func() []string, sizeRawUSDC uint64) {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, mint := range mints() {
			req := jupiter.QuoteRequest{
				InputMint:   domain.USDCMint,
				OutputMint:  mint,
				AmountRaw:   sizeRawUSDC,
				SlippageBps: c.slippageBps,
				Mode:        domain.SwapModeExactIn,
			}
			key := cacheKey{req.InputMint, req.OutputMint, req.AmountRaw, req.Mode}
			if _, err := c.refresh(ctx, req, key); err != nil {
				c.log.WithError(err).WithField("mint", mint).Debug("quote refresh failed")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
}
