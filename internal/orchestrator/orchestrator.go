// Package orchestrator consumes detected trades and mirrors them on the
// copy wallet through the filter chain, the pre-built cache and the race
// submitter.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"shredcopy/internal/domain"
	"shredcopy/internal/events"
	"shredcopy/internal/jupiter"
	"shredcopy/internal/ledger"
	"shredcopy/internal/observability"
	"shredcopy/internal/quote"
	"shredcopy/internal/solana"
	"shredcopy/internal/storage"
)

// Terminal outcomes of one copy attempt.
const (
	OutcomeSent     = "sent"
	OutcomeFiltered = "filtered"
	OutcomeDeduped  = "deduped"
	OutcomeFailed   = "failed"
)

// Skip reasons produced by the orchestrator's own filters.
const (
	ReasonSellsDisabled = "sells_disabled"
	ReasonNotAllowed    = "token_not_allowed"
	ReasonBelowMinSize  = "below_min_size"
	ReasonRisk          = "risk_rejected"
	ReasonQuality       = "quality_rejected"
)

// DefaultConcurrency bounds simultaneously processed trades.
const DefaultConcurrency = 8

// Config is the orchestrator's behavior knobs, taken from configuration.
type Config struct {
	AmountUSDC    decimal.Decimal // copy size per trade
	AllowedTokens map[string]struct{}
	MinTradeUSDC  decimal.Decimal
	SlippageBps   int
	CUPriceML     uint64
	CopyBuysOnly  bool
	FilterEnabled bool
}

// QualityGate is the token-quality filter. Satisfied by *filter.Quality.
type QualityGate interface {
	ShouldCopy(ctx context.Context, trade *domain.DetectedTrade, amountUSDC decimal.Decimal) domain.Decision
}

// Sender races a signed transaction across transports. Satisfied by
// *submit.Submitter.
type Sender interface {
	Submit(ctx context.Context, signedTx []byte, blockhash string) (string, error)
}

// Orchestrator runs the copy pipeline for each detected trade.
type Orchestrator struct {
	cfg      Config
	ledger   *ledger.Ledger
	quality  QualityGate
	quotes   *quote.Cache
	prebuilt *quote.PreBuiltCache
	builder  quote.Builder
	wallet   *solana.Wallet
	sender   Sender
	balance  BalanceSource
	tracker  *BalanceTracker // optional; adjusts balance on fills
	bus      *events.Bus
	archive  storage.TradeArchive
	metrics  *observability.Metrics
	log      *logrus.Entry

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	sem chan struct{}
}

// Options wires an Orchestrator.
type Options struct {
	Config   Config
	Ledger   *ledger.Ledger
	Quality  QualityGate
	Quotes   *quote.Cache
	PreBuilt *quote.PreBuiltCache
	Builder  quote.Builder
	Wallet   *solana.Wallet
	Sender   Sender
	Balance  BalanceSource
	Tracker  *BalanceTracker
	Bus      *events.Bus
	Archive  storage.TradeArchive
	Metrics  *observability.Metrics
	Logger   *logrus.Logger

	Concurrency int
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	conc := opts.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}
	return &Orchestrator{
		cfg:      opts.Config,
		ledger:   opts.Ledger,
		quality:  opts.Quality,
		quotes:   opts.Quotes,
		prebuilt: opts.PreBuilt,
		builder:  opts.Builder,
		wallet:   opts.Wallet,
		sender:   opts.Sender,
		balance:  opts.Balance,
		tracker:  opts.Tracker,
		bus:      opts.Bus,
		archive:  opts.Archive,
		metrics:  opts.Metrics,
		log:      opts.Logger.WithField("component", "orchestrator"),
		inFlight: make(map[string]struct{}),
		sem:      make(chan struct{}, conc),
	}
}

// Run consumes detected trades until the channel closes or ctx ends. Each
// trade is handled on its own worker slot so a slow copy never stalls the
// detection pipeline.
func (o *Orchestrator) Run(ctx context.Context, trades <-chan *domain.DetectedTrade) {
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case trade, ok := <-trades:
			if !ok {
				wg.Wait()
				return
			}
			select {
			case o.sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-o.sem }()
				o.Handle(ctx, trade)
			}()
		}
	}
}

// Handle runs one trade through the filter chain and, on acceptance,
// executes the copy. Every terminal path emits its event and archives the
// outcome.
func (o *Orchestrator) Handle(ctx context.Context, trade *domain.DetectedTrade) {
	start := time.Now()

	if trade.Direction == domain.DirectionSell && o.cfg.CopyBuysOnly {
		o.skip(trade, ReasonSellsDisabled, "copying buys only")
		return
	}
	if len(o.cfg.AllowedTokens) > 0 {
		if _, ok := o.cfg.AllowedTokens[trade.TokenMint]; !ok {
			o.skip(trade, ReasonNotAllowed, trade.TokenMint)
			return
		}
	}
	if trade.UsdcAmount.LessThan(o.cfg.MinTradeUSDC) {
		o.skip(trade, ReasonBelowMinSize,
			"$"+trade.UsdcAmount.String()+" below $"+o.cfg.MinTradeUSDC.String())
		return
	}

	if !o.markInFlight(trade.Signature) {
		o.terminal(trade, OutcomeDeduped, "already_processing", "")
		return
	}
	defer o.clearInFlight(trade.Signature)

	if o.cfg.FilterEnabled && o.quality != nil {
		if d := o.quality.ShouldCopy(ctx, trade, o.cfg.AmountUSDC); !d.Allowed {
			o.skip(trade, ReasonQuality+":"+d.Reason, d.Detail)
			return
		}
	}

	// Risk gate and ledger update are serialized per mint: no concurrent
	// Handle for the same mint can interleave between them.
	unlock := o.ledger.LockMint(trade.TokenMint)
	defer unlock()

	if d := o.ledger.CanTrade(trade.TokenMint, trade.Direction, o.cfg.AmountUSDC, o.balance.USDCBalance()); !d.Allowed {
		o.skip(trade, ReasonRisk+":"+d.Reason, d.Detail)
		return
	}

	o.bus.Emit(events.TypeCopyInitiated, trade)

	var copySig string
	var err error
	if trade.Direction == domain.DirectionBuy {
		copySig, err = o.executeBuy(ctx, trade)
	} else {
		copySig, err = o.executeSell(ctx, trade)
	}
	if err != nil {
		o.fail(trade, err)
		return
	}

	now := time.Now()
	copyLatency := now.Sub(start)
	e2eLatency := now.Sub(trade.DetectedAt)
	if o.metrics != nil {
		o.metrics.CopyLatency.Observe(copyLatency.Seconds())
		o.metrics.E2ELatency.Observe(e2eLatency.Seconds())
		o.metrics.CopyOutcomes.WithLabelValues(OutcomeSent).Inc()
	}
	o.bus.Emit(events.TypeCopyComplete, &events.CopyComplete{
		Original:      trade,
		CopySignature: copySig,
		CopyLatencyMs: copyLatency.Milliseconds(),
		E2ELatencyMs:  e2eLatency.Milliseconds(),
	})
	if o.archive != nil {
		o.archive.ArchiveCopyResult(&storage.CopyResult{
			OriginalSignature: trade.Signature,
			TokenMint:         trade.TokenMint,
			Direction:         trade.Direction,
			Outcome:           OutcomeSent,
			CopySignature:     copySig,
			CopyLatencyMs:     copyLatency.Milliseconds(),
			E2ELatencyMs:      e2eLatency.Milliseconds(),
			At:                now,
		})
	}
	o.log.WithFields(logrus.Fields{
		"original":   trade.Signature,
		"copy":       copySig,
		"copy_ms":    copyLatency.Milliseconds(),
		"e2e_ms":     e2eLatency.Milliseconds(),
		"direction":  trade.Direction,
		"token_mint": trade.TokenMint,
	}).Info("copy complete")
}

// executeBuy prefers the pre-built cache; on a miss it quotes, builds and
// signs live.
func (o *Orchestrator) executeBuy(ctx context.Context, trade *domain.DetectedTrade) (string, error) {
	if pb := o.prebuilt.Take(trade.TokenMint); pb != nil {
		if o.metrics != nil {
			o.metrics.PrebuiltHits.Inc()
		}
		sig, err := o.sender.Submit(ctx, pb.SignedTxBytes, pb.Blockhash)
		if err != nil {
			return "", err
		}
		o.prebuilt.ScheduleRebuild(trade.TokenMint)
		o.settleBuy(trade, pb.Quote, sig)
		return sig, nil
	}

	if o.metrics != nil {
		o.metrics.PrebuiltMiss.Inc()
	}
	q, err := o.quotes.GetWithCache(ctx, jupiter.QuoteRequest{
		InputMint:   domain.USDCMint,
		OutputMint:  trade.TokenMint,
		AmountRaw:   usdcRaw(o.cfg.AmountUSDC),
		SlippageBps: o.cfg.SlippageBps,
		Mode:        domain.SwapModeExactIn,
	})
	if err != nil {
		return "", err
	}

	sig, err := o.buildSignSend(ctx, q)
	if err != nil {
		return "", err
	}
	o.settleBuy(trade, q, sig)
	return sig, nil
}

// executeSell quotes token→USDC for exactly the configured copy size and
// sells that much of the position.
func (o *Orchestrator) executeSell(ctx context.Context, trade *domain.DetectedTrade) (string, error) {
	q, err := o.quotes.GetWithCache(ctx, jupiter.QuoteRequest{
		InputMint:   trade.TokenMint,
		OutputMint:  domain.USDCMint,
		AmountRaw:   usdcRaw(o.cfg.AmountUSDC),
		SlippageBps: o.cfg.SlippageBps,
		Mode:        domain.SwapModeExactOut,
	})
	if err != nil {
		return "", err
	}

	sig, err := o.buildSignSend(ctx, q)
	if err != nil {
		return "", err
	}

	received := decimal.NewFromUint64(q.OutAmountRaw).Shift(-domain.USDCDecimals)
	if _, _, err := o.ledger.RecordSell(trade.TokenMint, q.InAmountRaw, received, sig); err != nil {
		o.log.WithError(err).Warn("sell executed but ledger update failed")
	}
	if o.tracker != nil {
		o.tracker.Receive(received)
	}
	return sig, nil
}

// SellRaw liquidates an exact raw token amount to USDC. Used by the exit
// manager; runs the same quote → build → sign → race path as copies and
// books the sell in the ledger.
func (o *Orchestrator) SellRaw(ctx context.Context, mint string, tokenAmountRaw uint64) (string, decimal.Decimal, error) {
	unlock := o.ledger.LockMint(mint)
	defer unlock()

	q, err := o.quotes.GetWithCache(ctx, jupiter.QuoteRequest{
		InputMint:   mint,
		OutputMint:  domain.USDCMint,
		AmountRaw:   tokenAmountRaw,
		SlippageBps: o.cfg.SlippageBps,
		Mode:        domain.SwapModeExactIn,
	})
	if err != nil {
		return "", decimal.Zero, err
	}

	sig, err := o.buildSignSend(ctx, q)
	if err != nil {
		return "", decimal.Zero, err
	}

	received := decimal.NewFromUint64(q.OutAmountRaw).Shift(-domain.USDCDecimals)
	if _, _, err := o.ledger.RecordSell(mint, tokenAmountRaw, received, sig); err != nil {
		o.log.WithError(err).Warn("exit sell executed but ledger update failed")
	}
	if o.tracker != nil {
		o.tracker.Receive(received)
	}
	return sig, received, nil
}

func (o *Orchestrator) buildSignSend(ctx context.Context, q *domain.Quote) (string, error) {
	unsigned, err := o.builder.BuildSwap(ctx, q, o.wallet.Pubkey(), o.cfg.CUPriceML)
	if err != nil {
		return "", err
	}
	signed, _, err := o.wallet.SignTransaction(unsigned)
	if err != nil {
		return "", err
	}
	return o.sender.Submit(ctx, signed, "")
}

// settleBuy books the position from the quote's out amount.
func (o *Orchestrator) settleBuy(trade *domain.DetectedTrade, q *domain.Quote, sig string) {
	spent := decimal.NewFromUint64(q.InAmountRaw).Shift(-domain.USDCDecimals)
	o.ledger.RecordBuy(trade.TokenMint, trade.TokenDecimals, q.OutAmountRaw, spent, sig)
	if o.tracker != nil {
		o.tracker.Spend(spent)
	}
}

func (o *Orchestrator) markInFlight(signature string) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	if _, ok := o.inFlight[signature]; ok {
		return false
	}
	o.inFlight[signature] = struct{}{}
	return true
}

func (o *Orchestrator) clearInFlight(signature string) {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	delete(o.inFlight, signature)
}

func (o *Orchestrator) skip(trade *domain.DetectedTrade, reason, detail string) {
	o.terminal(trade, OutcomeFiltered, reason, detail)
}

func (o *Orchestrator) fail(trade *domain.DetectedTrade, err error) {
	if o.metrics != nil {
		o.metrics.CopyOutcomes.WithLabelValues(OutcomeFailed).Inc()
	}
	o.bus.Emit(events.TypeCopyFailed, &events.CopyFailed{
		Trade: trade,
		Error: err.Error(),
	})
	if o.archive != nil {
		o.archive.ArchiveCopyResult(&storage.CopyResult{
			OriginalSignature: trade.Signature,
			TokenMint:         trade.TokenMint,
			Direction:         trade.Direction,
			Outcome:           OutcomeFailed,
			Reason:            err.Error(),
			At:                time.Now(),
		})
	}
	o.log.WithError(err).WithField("original", trade.Signature).Warn("copy failed")
}

func (o *Orchestrator) terminal(trade *domain.DetectedTrade, outcome, reason, detail string) {
	if o.metrics != nil {
		o.metrics.CopyOutcomes.WithLabelValues(outcome).Inc()
	}
	o.bus.Emit(events.TypeCopySkipped, &events.CopySkipped{
		Trade:   trade,
		Reason:  reason,
		Details: detail,
	})
	if o.archive != nil {
		o.archive.ArchiveCopyResult(&storage.CopyResult{
			OriginalSignature: trade.Signature,
			TokenMint:         trade.TokenMint,
			Direction:         trade.Direction,
			Outcome:           outcome,
			Reason:            reason,
			At:                time.Now(),
		})
	}
	o.log.WithFields(logrus.Fields{
		"original": trade.Signature,
		"outcome":  outcome,
		"reason":   reason,
	}).Debug("copy skipped")
}

// usdcRaw converts a UI USDC amount to raw units.
func usdcRaw(amount decimal.Decimal) uint64 {
	return uint64(amount.Shift(domain.USDCDecimals).IntPart())
}
