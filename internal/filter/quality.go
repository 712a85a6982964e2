// Package filter applies the pre-trade token-quality gate using cached
// external market metadata.
package filter

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"shredcopy/internal/domain"
)

// Cache tunables.
const (
	metadataTTL      = 60 * time.Second
	refreshInterval  = 60 * time.Second
	priceHistoryKeep = 300 * time.Second
)

// ReasonFilterError flags a trade allowed because metadata was unavailable.
const ReasonFilterError = "filter_error"

var hundred = decimal.NewFromInt(100)

// Source fetches metadata for a mint. Satisfied by *metadata.Client.
type Source interface {
	Fetch(ctx context.Context, mint string) (*domain.TokenMetadata, error)
}

// Quality evaluates trades against liquidity, age, volume, impact and pump
// thresholds. Metadata is cached and refreshed in the background; when the
// source is down the filter fails open so a transient outage never
// suppresses copies.
type Quality struct {
	source Source
	limits domain.QualityLimits
	log    *logrus.Entry

	mu    sync.RWMutex
	cache map[string]*domain.TokenMetadata
}

// NewQuality creates the filter.
func NewQuality(source Source, limits domain.QualityLimits, log *logrus.Logger) *Quality {
	return &Quality{
		source: source,
		limits: limits,
		log:    log.WithField("component", "quality"),
		cache:  make(map[string]*domain.TokenMetadata),
	}
}

// ShouldCopy gates a detected trade at the given copy size. Whitelisted
// mints bypass. Checks run in threshold order and short-circuit with the
// first failing reason.
func (q *Quality) ShouldCopy(ctx context.Context, trade *domain.DetectedTrade, amountUSDC decimal.Decimal) domain.Decision {
	if q.limits.Whitelisted(trade.TokenMint) {
		return domain.Allow()
	}

	md, err := q.metadata(ctx, trade.TokenMint)
	if err != nil {
		// Fail open: missing upstream data must not turn into a false
		// negative on a live trade.
		q.log.WithError(err).WithField("mint", trade.TokenMint).
			Warn("metadata unavailable, allowing trade")
		return domain.Decision{Allowed: true, Reason: ReasonFilterError, Detail: err.Error()}
	}

	if md.LiquidityUSDC.LessThan(q.limits.MinLiquidityUSDC) {
		return domain.Reject("low_liquidity",
			"liquidity $"+md.LiquidityUSDC.StringFixed(0)+" below $"+q.limits.MinLiquidityUSDC.StringFixed(0))
	}
	if md.TokenAgeSeconds < q.limits.MinTokenAgeSec {
		return domain.Reject("token_too_new",
			"token age below configured minimum")
	}
	if md.Volume24hUSDC.LessThan(q.limits.Min24hVolumeUSDC) {
		return domain.Reject("low_volume",
			"24h volume $"+md.Volume24hUSDC.StringFixed(0)+" below $"+q.limits.Min24hVolumeUSDC.StringFixed(0))
	}

	if md.LiquidityUSDC.IsPositive() {
		impact := amountUSDC.Div(md.LiquidityUSDC).Mul(hundred)
		if impact.GreaterThan(q.limits.MaxPriceImpactPct) {
			return domain.Reject("price_impact",
				"estimated impact "+impact.StringFixed(2)+"% above "+q.limits.MaxPriceImpactPct.String()+"%")
		}
	}

	if pump, ok := recentPumpPct(md.PriceHistory, time.Now()); ok {
		if pump.GreaterThan(q.limits.MaxRecentPumpPct) {
			return domain.Reject("recent_pump",
				"price up "+pump.StringFixed(1)+"% in the last 5m")
		}
	}

	return domain.Allow()
}

// metadata returns a cache entry younger than the TTL, fetching otherwise.
func (q *Quality) metadata(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	q.mu.RLock()
	md, ok := q.cache[mint]
	q.mu.RUnlock()
	if ok && time.Since(md.LastUpdated) < metadataTTL {
		return md, nil
	}

	return q.fetchAndMerge(ctx, mint, md)
}

// fetchAndMerge fetches fresh metadata and carries forward the trimmed
// price history so pump detection sees more than one sample.
func (q *Quality) fetchAndMerge(ctx context.Context, mint string, prev *domain.TokenMetadata) (*domain.TokenMetadata, error) {
	fresh, err := q.source.Fetch(ctx, mint)
	if err != nil {
		return nil, err
	}

	if prev != nil {
		fresh.PriceHistory = append(append([]domain.PricePoint(nil), prev.PriceHistory...), fresh.PriceHistory...)
	}
	fresh.PriceHistory = trimHistory(fresh.PriceHistory, time.Now())

	q.mu.Lock()
	q.cache[mint] = fresh
	q.mu.Unlock()
	return fresh, nil
}

// RunRefresher re-fetches stale cache entries on an interval so hot mints
// never pay the fetch on the copy path.
func (q *Quality) RunRefresher(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		q.mu.RLock()
		stale := make([]string, 0, len(q.cache))
		prevs := make(map[string]*domain.TokenMetadata, len(q.cache))
		for mint, md := range q.cache {
			if time.Since(md.LastUpdated) >= metadataTTL {
				stale = append(stale, mint)
				prevs[mint] = md
			}
		}
		q.mu.RUnlock()

		for _, mint := range stale {
			if ctx.Err() != nil {
				return
			}
			if _, err := q.fetchAndMerge(ctx, mint, prevs[mint]); err != nil {
				q.log.WithError(err).WithField("mint", mint).Debug("metadata refresh failed")
			}
		}
	}
}

// recentPumpPct computes the 5-minute price change. Requires at least two
// samples in the window and a positive oldest price.
func recentPumpPct(history []domain.PricePoint, now time.Time) (decimal.Decimal, bool) {
	recent := trimHistory(history, now)
	if len(recent) < 2 {
		return decimal.Zero, false
	}
	oldest, newest := recent[0], recent[len(recent)-1]
	if !oldest.Price.IsPositive() {
		return decimal.Zero, false
	}
	return newest.Price.Div(oldest.Price).Sub(decimal.NewFromInt(1)).Mul(hundred), true
}

func trimHistory(history []domain.PricePoint, now time.Time) []domain.PricePoint {
	cutoff := now.Add(-priceHistoryKeep)
	out := history[:0:0]
	for _, p := range history {
		if p.Timestamp.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}
