package quote

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shredcopy/internal/domain"
	"shredcopy/internal/jupiter"
	"shredcopy/internal/solana"
	"shredcopy/internal/txdecode"
)

// Pre-built cache tunables.
const (
	PreBuiltTTL = 45 * time.Second
	// rebuildLead: a pass rebuilds entries that expire within this window.
	rebuildLead     = 15 * time.Second
	RebuildInterval = 30 * time.Second
)

// Builder is the swap-build source. Satisfied by *jupiter.Client.
type Builder interface {
	BuildSwap(ctx context.Context, quote *domain.Quote, userPubkey string, cuPriceMicroLamports uint64) ([]byte, error)
}

// PreBuiltCache holds one signed, single-use buy transaction per
// whitelisted mint and rebuilds them in the background.
type PreBuiltCache struct {
	fetcher     Fetcher
	builder     Builder
	wallet      *solana.Wallet
	log         *logrus.Entry
	slippageBps int
	cuPrice     uint64

	mu      sync.Mutex
	entries map[string]*domain.PreBuilt

	rebuildReq chan string
}

// PreBuiltOptions configures the cache.
type PreBuiltOptions struct {
	Fetcher     Fetcher
	Builder     Builder
	Wallet      *solana.Wallet
	Logger      *logrus.Logger
	SlippageBps int
	CUPriceML   uint64
}

// NewPreBuiltCache creates the cache.
func NewPreBuiltCache(opts PreBuiltOptions) *PreBuiltCache {
	return &PreBuiltCache{
		fetcher:     opts.Fetcher,
		builder:     opts.Builder,
		wallet:      opts.Wallet,
		log:         opts.Logger.WithField("component", "prebuilt"),
		slippageBps: opts.SlippageBps,
		cuPrice:     opts.CUPriceML,
		entries:     make(map[string]*domain.PreBuilt),
		rebuildReq:  make(chan string, 64),
	}
}

// Take atomically removes and returns a non-expired entry for the mint.
// A stale entry is deleted and nil returned; a concurrent second caller
// observes nil.
func (c *PreBuiltCache) Take(mint string) *domain.PreBuilt {
	c.mu.Lock()
	defer c.mu.Unlock()

	pb, ok := c.entries[mint]
	if !ok {
		return nil
	}
	delete(c.entries, mint)
	if pb.Expired(time.Now()) {
		return nil
	}
	return pb
}

// ScheduleRebuild asks the background loop to rebuild a mint now, without
// waiting for the cadence tick. Non-blocking.
func (c *PreBuiltCache) ScheduleRebuild(mint string) {
	select {
	case c.rebuildReq <- mint:
	default:
	}
}

// Put inserts a fresh entry, replacing any previous one for the mint.
func (c *PreBuiltCache) Put(pb *domain.PreBuilt) {
	c.mu.Lock()
	c.entries[pb.TokenMint] = pb
	c.mu.Unlock()
}

// needsRebuild reports whether the mint is absent or expires within the
// lead window.
func (c *PreBuiltCache) needsRebuild(mint string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pb, ok := c.entries[mint]
	if !ok {
		return true
	}
	return pb.ExpiresAt.Sub(now) < rebuildLead
}

// RunRebuilder keeps pre-built entries fresh for each whitelisted mint.
// Rebuilds inside a pass are staggered so the build API is not burst-hit.
func (c *PreBuiltCache) RunRebuilder(ctx context.Context, mints func() []string, sizeRawUSDC uint64) {
	ticker := time.NewTicker(RebuildInterval)
	defer ticker.Stop()

	// Initial fill without waiting a full cadence.
	c.rebuildPass(ctx, mints(), sizeRawUSDC)

	for {
		select {
		case <-ctx.Done():
			return
		case mint := <-c.rebuildReq:
			c.rebuild(ctx, mint, sizeRawUSDC)
		case <-ticker.C:
			c.rebuildPass(ctx, mints(), sizeRawUSDC)
		}
	}
}

func (c *PreBuiltCache) rebuildPass(ctx context.Context, mints []string, sizeRawUSDC uint64) {
	if len(mints) == 0 {
		return
	}
	now := time.Now()
	stagger := RebuildInterval / time.Duration(2*len(mints))
	for _, mint := range mints {
		if ctx.Err() != nil {
			return
		}
		if !c.needsRebuild(mint, now) {
			continue
		}
		c.rebuild(ctx, mint, sizeRawUSDC)
		select {
		case <-ctx.Done():
			return
		case <-time.After(stagger):
		}
	}
}

// rebuild fetches a fresh quote, builds, signs and inserts one entry.
func (c *PreBuiltCache) rebuild(ctx context.Context, mint string, sizeRawUSDC uint64) {
	q, err := c.fetcher.GetQuote(ctx, jupiter.QuoteRequest{
		InputMint:   domain.USDCMint,
		OutputMint:  mint,
		AmountRaw:   sizeRawUSDC,
		SlippageBps: c.slippageBps,
		Mode:        domain.SwapModeExactIn,
	})
	if err != nil {
		c.log.WithError(err).WithField("mint", mint).Warn("prebuild quote failed")
		return
	}

	unsigned, err := c.builder.BuildSwap(ctx, q, c.wallet.Pubkey(), c.cuPrice)
	if err != nil {
		c.log.WithError(err).WithField("mint", mint).Warn("prebuild build failed")
		return
	}

	signed, signature, err := c.wallet.SignTransaction(unsigned)
	if err != nil {
		c.log.WithError(err).WithField("mint", mint).Warn("prebuild sign failed")
		return
	}

	blockhash := ""
	if tx, err := txdecode.Decode(signed); err == nil {
		blockhash = tx.Blockhash
	}

	now := time.Now()
	c.Put(&domain.PreBuilt{
		TokenMint:     mint,
		Direction:     domain.DirectionBuy,
		SignedTxBytes: signed,
		Signature:     signature,
		Quote:         q,
		Blockhash:     blockhash,
		CreatedAt:     now,
		ExpiresAt:     now.Add(PreBuiltTTL),
	})
	c.log.WithFields(logrus.Fields{
		"mint":      mint,
		"signature": signature,
	}).Debug("prebuilt transaction refreshed")
}
