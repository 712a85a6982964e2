package detect

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"shredcopy/internal/classify"
	"shredcopy/internal/domain"
	"shredcopy/internal/entry"
	"shredcopy/internal/events"
	"shredcopy/internal/lookup"
	"shredcopy/internal/observability"
	"shredcopy/internal/storage"
	"shredcopy/internal/stream"
	"shredcopy/internal/txdecode"
	"shredcopy/internal/watch"
)

// Pipeline defaults.
const (
	// DefaultWorkers bounds concurrent per-transaction analysis.
	DefaultWorkers = 16
	// DefaultTradeDepth is the detected-trade channel capacity.
	DefaultTradeDepth = 256
)

// Pipeline runs ingestion → decoding → detection. Entries within a slot are
// processed sequentially; transactions within an entry are analyzed in
// parallel. Detected trades come out of Trades() in no particular
// inter-slot order.
type Pipeline struct {
	watchlist *watch.List
	resolver  *lookup.Resolver
	recon     *Reconstructor
	bus       *events.Bus
	archive   storage.TradeArchive
	metrics   *observability.Metrics
	log       *logrus.Entry

	seen    *seenSet
	workers int
	out     chan *domain.DetectedTrade
}

// PipelineOptions configures a Pipeline. Archive and Metrics are optional.
type PipelineOptions struct {
	Watchlist *watch.List
	Resolver  *lookup.Resolver
	Recon     *Reconstructor
	Bus       *events.Bus
	Archive   storage.TradeArchive
	Metrics   *observability.Metrics
	Logger    *logrus.Logger
	Workers   int
	Depth     int
}

// NewPipeline creates a pipeline from options.
func NewPipeline(opts PipelineOptions) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	depth := opts.Depth
	if depth <= 0 {
		depth = DefaultTradeDepth
	}
	return &Pipeline{
		watchlist: opts.Watchlist,
		resolver:  opts.Resolver,
		recon:     opts.Recon,
		bus:       opts.Bus,
		archive:   opts.Archive,
		metrics:   opts.Metrics,
		log:       opts.Logger.WithField("component", "pipeline"),
		seen:      newSeenSet(),
		workers:   workers,
		out:       make(chan *domain.DetectedTrade, depth),
	}
}

// Trades is the detection output channel. Closed when Run returns.
func (p *Pipeline) Trades() <-chan *domain.DetectedTrade {
	return p.out
}

// Run consumes frames until the channel closes or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, frames <-chan stream.Frame) error {
	defer close(p.out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if p.metrics != nil {
				p.metrics.FramesReceived.Inc()
			}
			p.handleFrame(ctx, f.Slot, f.Payload)
		}
	}
}

// handleFrame decodes a slot payload and fans transaction analysis out.
// Hot-path failures never cross a frame boundary.
func (p *Pipeline) handleFrame(ctx context.Context, slot uint64, payload []byte) {
	entries, err := entry.DecodePayload(payload)
	if err != nil {
		if p.metrics != nil {
			p.metrics.EntriesMalformed.Inc()
		}
		p.log.WithError(err).WithField("slot", slot).Debug("malformed payload dropped")
		return
	}

	for _, e := range entries {
		if p.metrics != nil {
			p.metrics.EntriesDecoded.Inc()
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.workers)
		for _, txBytes := range e.Transactions {
			txBytes := txBytes
			g.Go(func() error {
				p.analyze(gctx, slot, txBytes)
				return nil
			})
		}
		// Workers never return errors; Wait only orders entries.
		_ = g.Wait()
		if ctx.Err() != nil {
			return
		}
	}
}

// analyze runs one transaction through decode → watchlist → resolve →
// classify → reconstruct and emits the trade if all stages pass.
func (p *Pipeline) analyze(ctx context.Context, slot uint64, txBytes []byte) {
	tx, err := txdecode.Decode(txBytes)
	if err != nil {
		if p.metrics != nil {
			p.metrics.TxDecodeFailed.Inc()
		}
		p.log.WithError(err).Debug("transaction decode failed")
		return
	}
	if p.metrics != nil {
		p.metrics.TxDecoded.Inc()
	}

	// Vote traffic dominates shred volume; drop it before any I/O.
	for _, k := range tx.AccountKeys {
		if k == domain.VoteProgram {
			if p.metrics != nil {
				p.metrics.TxVoteSkipped.Inc()
			}
			return
		}
	}

	// The watched trader signs, so static keys are sufficient to gate on.
	user := p.watchlist.FirstMatch(tx.AccountKeys)
	if user == "" {
		return
	}
	if p.metrics != nil {
		p.metrics.TxWatchlistMatched.Inc()
	}

	if p.seen.markSeen(tx.Signature, user, timeNow()) {
		if p.metrics != nil {
			p.metrics.TradesDeduped.Inc()
		}
		return
	}

	fullKeys := p.resolver.Resolve(ctx, tx)
	if p.metrics != nil {
		p.metrics.LookupTablesCached.Set(float64(p.resolver.CachedTables()))
	}

	tag := classify.Classify(tx, fullKeys)
	if tag == domain.AggregatorNone {
		return
	}

	trade, err := p.recon.Reconstruct(ctx, tx.Signature, slot, tag, user)
	if err != nil {
		if p.metrics != nil {
			p.metrics.ReconstructFail.Inc()
		}
		p.log.WithError(err).WithField("signature", tx.Signature).
			Debug("trade reconstruction failed")
		return
	}
	if trade == nil {
		return
	}

	p.emit(ctx, trade)
}

func (p *Pipeline) emit(ctx context.Context, trade *domain.DetectedTrade) {
	if p.metrics != nil {
		p.metrics.TradesDetected.WithLabelValues(string(trade.Aggregator)).Inc()
	}
	p.log.WithFields(logrus.Fields{
		"signature": trade.Signature,
		"direction": trade.Direction,
		"mint":      trade.TokenMint,
		"usdc":      trade.UsdcAmount,
		"user":      trade.User,
	}).Info("trade detected")

	if p.bus != nil {
		p.bus.Emit(events.TypeTradeDetected, trade)
	}
	if p.archive != nil {
		p.archive.ArchiveTrade(trade)
	}

	select {
	case p.out <- trade:
	case <-ctx.Done():
	}
}
