// Package ledger tracks open positions with weighted-average cost and
// gates trades against configured risk limits. Positions live only in
// memory for the process lifetime.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"shredcopy/internal/domain"
	"shredcopy/internal/events"
	"shredcopy/internal/observability"
)

// limitWarnThreshold: a passing trade that lands at or above this share of
// a limit emits a limit_warning.
var limitWarnThreshold = decimal.NewFromInt(80)

var hundred = decimal.NewFromInt(100)

// Rejection reasons.
const (
	ReasonMinReserve   = "min_reserve"
	ReasonMaxPosition  = "max_position"
	ReasonMaxExposure  = "max_exposure"
	ReasonMaxPositions = "max_open_positions"
	ReasonNoPosition   = "no_position"
)

// Ledger is the in-memory position book. Mutations for the same mint are
// serialized by LockMint; snapshots are consistent under the global lock.
type Ledger struct {
	limits  domain.RiskLimits
	bus     *events.Bus
	metrics *observability.Metrics
	log     *logrus.Entry

	mu        sync.RWMutex
	positions map[string]*domain.Position

	lockMu    sync.Mutex
	mintLocks map[string]*sync.Mutex
}

// New creates a ledger with the given limits. Bus and metrics are optional.
func New(limits domain.RiskLimits, bus *events.Bus, metrics *observability.Metrics, log *logrus.Logger) *Ledger {
	return &Ledger{
		limits:    limits,
		bus:       bus,
		metrics:   metrics,
		log:       log.WithField("component", "ledger"),
		positions: make(map[string]*domain.Position),
		mintLocks: make(map[string]*sync.Mutex),
	}
}

// LockMint serializes the can-trade → record sequence for a mint. Returns
// the unlock function. Callers hold the per-mint lock for the whole copy,
// network sends included; the ledger's own snapshot lock is never held
// across a suspension point.
func (l *Ledger) LockMint(mint string) func() {
	l.lockMu.Lock()
	m, ok := l.mintLocks[mint]
	if !ok {
		m = &sync.Mutex{}
		l.mintLocks[mint] = m
	}
	l.lockMu.Unlock()

	m.Lock()
	return m.Unlock
}

// CanTrade gates a prospective trade. Buy rejections, in order: reserve
// floor, open-position count (new mints only), per-position cap, total
// exposure cap. Sell
// is rejected only when no position exists. Passing buys near a cap emit
// limit_warning.
func (l *Ledger) CanTrade(mint string, direction domain.Direction, amountUSDC, currentBalance decimal.Decimal) domain.Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if direction == domain.DirectionSell {
		if _, ok := l.positions[mint]; !ok {
			return domain.Reject(ReasonNoPosition, fmt.Sprintf("no open position for %s", mint))
		}
		return domain.Allow()
	}

	if currentBalance.Sub(amountUSDC).LessThan(l.limits.MinUSDCReserve) {
		return domain.Reject(ReasonMinReserve,
			fmt.Sprintf("would leave USDC below minimum reserve $%s", l.limits.MinUSDCReserve))
	}

	var positionCost decimal.Decimal
	if p, ok := l.positions[mint]; ok {
		positionCost = p.TotalCostUSDC
	} else if len(l.positions) >= l.limits.MaxOpenPositions {
		return domain.Reject(ReasonMaxPositions,
			fmt.Sprintf("already holding %d positions (max %d)", len(l.positions), l.limits.MaxOpenPositions))
	}

	newPositionCost := positionCost.Add(amountUSDC)
	if newPositionCost.GreaterThan(l.limits.MaxPositionUSDC) {
		return domain.Reject(ReasonMaxPosition,
			fmt.Sprintf("position cost $%s would exceed cap $%s", newPositionCost, l.limits.MaxPositionUSDC))
	}

	newExposure := l.exposureLocked().Add(amountUSDC)
	if newExposure.GreaterThan(l.limits.MaxTotalExposureUSDC) {
		return domain.Reject(ReasonMaxExposure,
			fmt.Sprintf("total exposure $%s would exceed cap $%s", newExposure, l.limits.MaxTotalExposureUSDC))
	}

	l.warnNearLimit("position", newPositionCost, l.limits.MaxPositionUSDC)
	l.warnNearLimit("exposure", newExposure, l.limits.MaxTotalExposureUSDC)
	return domain.Allow()
}

// RecordBuy creates or updates the mint's position.
func (l *Ledger) RecordBuy(mint string, decimals uint8, tokenAmountRaw uint64, usdcSpent decimal.Decimal, signature string) *domain.Position {
	l.mu.Lock()

	p, ok := l.positions[mint]
	if !ok {
		p = &domain.Position{
			TokenMint:     mint,
			TokenDecimals: decimals,
			EntryTime:     time.Now(),
		}
		l.positions[mint] = p
	}

	p.AmountRaw += tokenAmountRaw
	p.TotalCostUSDC = p.TotalCostUSDC.Add(usdcSpent)
	p.AvgEntryPriceUSDC = avgEntryPrice(p.TotalCostUSDC, p.AmountRaw, p.TokenDecimals)
	p.Signatures = append(p.Signatures, signature)
	p.BuyCount++

	snapshot := clonePosition(p)
	count := len(l.positions)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.OpenPositions.Set(float64(count))
	}
	if l.bus != nil {
		if ok {
			l.bus.Emit(events.TypePositionUpdated, snapshot)
		} else {
			l.bus.Emit(events.TypePositionOpened, snapshot)
		}
	}
	l.log.WithFields(logrus.Fields{
		"mint":      mint,
		"spent":     usdcSpent,
		"amount":    snapshot.AmountRaw,
		"avg_price": snapshot.AvgEntryPriceUSDC,
	}).Info("buy recorded")
	return snapshot
}

// RecordSell reduces the position proportionally and realizes P&L against
// the average cost basis. A position whose amount returns to zero is
// removed.
func (l *Ledger) RecordSell(mint string, tokenAmountRaw uint64, usdcReceived decimal.Decimal, signature string) (realizedPnl decimal.Decimal, closed bool, err error) {
	l.mu.Lock()

	p, ok := l.positions[mint]
	if !ok {
		l.mu.Unlock()
		return decimal.Zero, false, fmt.Errorf("no open position for %s", mint)
	}
	if tokenAmountRaw > p.AmountRaw {
		tokenAmountRaw = p.AmountRaw
	}

	sellFraction := decimal.NewFromUint64(tokenAmountRaw).Div(decimal.NewFromUint64(p.AmountRaw))
	costBasis := p.TotalCostUSDC.Mul(sellFraction)
	realizedPnl = usdcReceived.Sub(costBasis)

	p.AmountRaw -= tokenAmountRaw
	p.TotalCostUSDC = p.TotalCostUSDC.Sub(costBasis)
	p.Signatures = append(p.Signatures, signature)
	p.SellCount++

	closed = p.AmountRaw == 0
	var pnlPct decimal.Decimal
	if closed {
		if costBasis.IsPositive() {
			pnlPct = realizedPnl.Div(costBasis).Mul(hundred)
		}
		delete(l.positions, mint)
	} else {
		p.AvgEntryPriceUSDC = avgEntryPrice(p.TotalCostUSDC, p.AmountRaw, p.TokenDecimals)
	}

	snapshot := clonePosition(p)
	count := len(l.positions)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.OpenPositions.Set(float64(count))
	}
	if l.bus != nil {
		if closed {
			l.bus.Emit(events.TypePositionClosed, &events.PositionClosed{
				Position:       snapshot,
				RealizedPnlUSD: realizedPnl,
				RealizedPnlPct: pnlPct,
			})
		} else {
			l.bus.Emit(events.TypePositionUpdated, snapshot)
		}
	}
	l.log.WithFields(logrus.Fields{
		"mint":     mint,
		"received": usdcReceived,
		"pnl":      realizedPnl,
		"closed":   closed,
	}).Info("sell recorded")
	return realizedPnl, closed, nil
}

// Get returns a copy of the mint's position, or nil.
func (l *Ledger) Get(mint string) *domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[mint]
	if !ok {
		return nil
	}
	return clonePosition(p)
}

// Snapshot returns a consistent copy of all open positions.
func (l *Ledger) Snapshot() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, clonePosition(p))
	}
	return out
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Exposure returns the summed cost basis of all open positions.
func (l *Ledger) Exposure() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.exposureLocked()
}

func (l *Ledger) exposureLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.TotalCostUSDC)
	}
	return total
}

func (l *Ledger) warnNearLimit(kind string, current, max decimal.Decimal) {
	if l.bus == nil || !max.IsPositive() {
		return
	}
	pct := current.Div(max).Mul(hundred)
	if pct.GreaterThanOrEqual(limitWarnThreshold) {
		l.bus.Emit(events.TypeLimitWarning, &events.LimitWarning{
			Type:    kind,
			Current: current,
			Max:     max,
			Percent: pct,
		})
	}
}

// avgEntryPrice divides total cost by the UI-unit amount. The raw amount is
// scaled by the token's decimals first; dividing by raw units would produce
// mis-scaled prices.
func avgEntryPrice(totalCost decimal.Decimal, amountRaw uint64, decimals uint8) decimal.Decimal {
	if amountRaw == 0 {
		return decimal.Zero
	}
	ui := decimal.NewFromUint64(amountRaw).Shift(-int32(decimals))
	return totalCost.Div(ui)
}

func clonePosition(p *domain.Position) *domain.Position {
	cp := *p
	cp.Signatures = append([]string(nil), p.Signatures...)
	return &cp
}
