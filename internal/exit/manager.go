// Package exit watches open positions and liquidates them when take-profit,
// stop-loss, time or trailing conditions fire.
package exit

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"shredcopy/internal/domain"
	"shredcopy/internal/events"
	"shredcopy/internal/ledger"
	"shredcopy/internal/observability"
)

// Exit rule names, used in events and metrics labels.
const (
	RuleTakeProfit   = "take_profit"
	RuleStopLoss     = "stop_loss"
	RuleTimeLimit    = "time_limit"
	RuleTrailingStop = "trailing_stop"
)

var hundred = decimal.NewFromInt(100)

// TakeProfitTarget sells SellPct percent of current holdings once profit
// reaches ProfitPct percent.
type TakeProfitTarget struct {
	ProfitPct decimal.Decimal
	SellPct   decimal.Decimal
}

// Config parameterizes the manager. Trailing fields are optional: the
// trailing stop is disabled while either is nil.
type Config struct {
	TakeProfitTargets     []TakeProfitTarget
	StopLossPct           decimal.Decimal // negative, e.g. -30
	MaxHold               time.Duration
	TrailingStopPct       *decimal.Decimal
	TrailingActivationPct *decimal.Decimal
	CheckInterval         time.Duration
}

// Seller executes a liquidation. Satisfied by *orchestrator.Orchestrator.
type Seller interface {
	SellRaw(ctx context.Context, mint string, tokenAmountRaw uint64) (string, decimal.Decimal, error)
}

// PriceSource batch-fetches current prices. Satisfied by *pricing.Client.
type PriceSource interface {
	GetPrices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error)
}

// mintState is the per-position exit bookkeeping: which ladder rungs have
// fired and the price high-water mark.
type mintState struct {
	tpHit     map[string]struct{}
	highWater decimal.Decimal
}

// Manager runs the exit loop. It never blocks the detection pipeline; all
// work happens on its own ticker.
type Manager struct {
	cfg     Config
	book    *ledger.Ledger
	prices  PriceSource
	seller  Seller
	bus     *events.Bus
	metrics *observability.Metrics
	log     *logrus.Entry

	state map[string]*mintState
}

// New creates a Manager. Targets are kept sorted ascending by profit so
// ladder evaluation fires lower rungs first.
func New(cfg Config, book *ledger.Ledger, prices PriceSource, seller Seller, bus *events.Bus, metrics *observability.Metrics, log *logrus.Logger) *Manager {
	targets := append([]TakeProfitTarget(nil), cfg.TakeProfitTargets...)
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].ProfitPct.LessThan(targets[j].ProfitPct)
	})
	cfg.TakeProfitTargets = targets

	return &Manager{
		cfg:     cfg,
		book:    book,
		prices:  prices,
		seller:  seller,
		bus:     bus,
		metrics: metrics,
		log:     log.WithField("component", "exit"),
		state:   make(map[string]*mintState),
	}
}

// Run ticks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check evaluates every open position against current prices once.
func (m *Manager) Check(ctx context.Context) {
	positions := m.book.Snapshot()
	m.pruneState(positions)
	if len(positions) == 0 {
		return
	}

	mints := make([]string, len(positions))
	for i, p := range positions {
		mints[i] = p.TokenMint
	}
	prices, err := m.prices.GetPrices(ctx, mints)
	if err != nil {
		m.log.WithError(err).Warn("price fetch failed, skipping pass")
		return
	}

	now := time.Now()
	for _, p := range positions {
		price, ok := prices[p.TokenMint]
		if !ok {
			continue
		}
		m.evaluate(ctx, p, price, now)
	}
}

// evaluate applies the exit rules in priority order for one position.
func (m *Manager) evaluate(ctx context.Context, p *domain.Position, price decimal.Decimal, now time.Time) {
	st := m.mintState(p.TokenMint)
	if price.GreaterThan(st.highWater) {
		st.highWater = price
	}
	if !p.AvgEntryPriceUSDC.IsPositive() {
		return
	}
	profitPct := price.Div(p.AvgEntryPriceUSDC).Sub(decimal.NewFromInt(1)).Mul(hundred)

	// 1. Take-profit ladder. Rungs are marked on initiation so a failed
	// sell cannot re-trigger a storm on the next tick.
	remaining := p.AmountRaw
	for _, target := range m.cfg.TakeProfitTargets {
		if remaining == 0 {
			return
		}
		key := target.ProfitPct.String()
		if _, hit := st.tpHit[key]; hit {
			continue
		}
		if profitPct.LessThan(target.ProfitPct) {
			continue
		}
		st.tpHit[key] = struct{}{}

		sellRaw := sellPortion(remaining, target.SellPct)
		if m.sell(ctx, p.TokenMint, sellRaw, RuleTakeProfit, target.SellPct, price) {
			remaining -= sellRaw
		}
	}
	if remaining == 0 {
		return
	}

	// 2. Stop-loss.
	if profitPct.LessThanOrEqual(m.cfg.StopLossPct) {
		m.sell(ctx, p.TokenMint, remaining, RuleStopLoss, hundred, price)
		return
	}

	// 3. Time limit.
	if m.cfg.MaxHold > 0 && now.Sub(p.EntryTime) >= m.cfg.MaxHold {
		m.sell(ctx, p.TokenMint, remaining, RuleTimeLimit, hundred, price)
		return
	}

	// 4. Trailing stop, armed only after activation profit was reached.
	if m.cfg.TrailingStopPct == nil || m.cfg.TrailingActivationPct == nil {
		return
	}
	hwProfit := st.highWater.Div(p.AvgEntryPriceUSDC).Sub(decimal.NewFromInt(1)).Mul(hundred)
	if hwProfit.LessThan(*m.cfg.TrailingActivationPct) {
		return
	}
	if !st.highWater.IsPositive() {
		return
	}
	drawdown := st.highWater.Sub(price).Div(st.highWater).Mul(hundred)
	if drawdown.GreaterThanOrEqual(*m.cfg.TrailingStopPct) {
		m.sell(ctx, p.TokenMint, remaining, RuleTrailingStop, hundred, price)
	}
}

// sell submits one liquidation and reports success. Failures are surfaced
// as events and do not unwind rule state.
func (m *Manager) sell(ctx context.Context, mint string, tokenAmountRaw uint64, rule string, sellPct, price decimal.Decimal) bool {
	if tokenAmountRaw == 0 {
		return false
	}
	if m.metrics != nil {
		m.metrics.ExitTriggers.WithLabelValues(rule).Inc()
	}
	m.bus.Emit(events.TypeExitTriggered, &events.ExitEvent{
		TokenMint: mint,
		Rule:      rule,
		SellPct:   sellPct,
		Price:     price,
	})
	m.log.WithFields(logrus.Fields{
		"mint":     mint,
		"rule":     rule,
		"sell_pct": sellPct,
		"price":    price,
	}).Info("exit triggered")

	sig, received, err := m.seller.SellRaw(ctx, mint, tokenAmountRaw)
	if err != nil {
		m.bus.Emit(events.TypeExitFailed, &events.ExitEvent{
			TokenMint: mint,
			Rule:      rule,
			SellPct:   sellPct,
			Error:     err.Error(),
		})
		m.log.WithError(err).WithField("mint", mint).Warn("exit sell failed")
		return false
	}

	m.bus.Emit(events.TypeExitExecuted, &events.ExitEvent{
		TokenMint: mint,
		Rule:      rule,
		SellPct:   sellPct,
		Price:     price,
		Signature: sig,
	})
	m.log.WithFields(logrus.Fields{
		"mint":      mint,
		"rule":      rule,
		"signature": sig,
		"received":  received,
	}).Info("exit executed")
	return true
}

func (m *Manager) mintState(mint string) *mintState {
	st, ok := m.state[mint]
	if !ok {
		st = &mintState{tpHit: make(map[string]struct{})}
		m.state[mint] = st
	}
	return st
}

// pruneState drops bookkeeping for mints that no longer have a position.
func (m *Manager) pruneState(open []*domain.Position) {
	live := make(map[string]struct{}, len(open))
	for _, p := range open {
		live[p.TokenMint] = struct{}{}
	}
	for mint := range m.state {
		if _, ok := live[mint]; !ok {
			delete(m.state, mint)
		}
	}
}

// sellPortion computes pct percent of raw, rounding down to whole raw
// units; 100 percent sells everything exactly.
func sellPortion(raw uint64, pct decimal.Decimal) uint64 {
	if pct.GreaterThanOrEqual(hundred) {
		return raw
	}
	portion := decimal.NewFromUint64(raw).Mul(pct).Div(hundred)
	return uint64(portion.IntPart())
}
