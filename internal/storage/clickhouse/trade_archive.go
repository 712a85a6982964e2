package clickhouse

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shredcopy/internal/domain"
	"shredcopy/internal/storage"
)

// Batch-writer tunables.
const (
	defaultFlushInterval = 5 * time.Second
	defaultMaxBuffer     = 1024
)

// TradeArchive implements storage.TradeArchive with buffered batch inserts.
// Appends are in-memory; a background loop flushes on an interval or when a
// buffer fills. Insert failures are logged and the batch dropped — archive
// writes never block or fail the pipeline.
type TradeArchive struct {
	conn *Conn
	log  *logrus.Entry

	mu      sync.Mutex
	trades  []*domain.DetectedTrade
	results []*storage.CopyResult

	flushInterval time.Duration
	wake          chan struct{}
	done          chan struct{}
	stop          context.CancelFunc
}

var _ storage.TradeArchive = (*TradeArchive)(nil)

// NewTradeArchive creates the archive and starts its flush loop.
func NewTradeArchive(conn *Conn, log *logrus.Logger) *TradeArchive {
	ctx, cancel := context.WithCancel(context.Background())
	a := &TradeArchive{
		conn:          conn,
		log:           log.WithField("component", "trade_archive"),
		flushInterval: defaultFlushInterval,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		stop:          cancel,
	}
	go a.run(ctx)
	return a
}

// ArchiveTrade buffers a detected trade.
func (a *TradeArchive) ArchiveTrade(trade *domain.DetectedTrade) {
	a.mu.Lock()
	a.trades = append(a.trades, trade)
	full := len(a.trades) >= defaultMaxBuffer
	a.mu.Unlock()
	if full {
		a.nudge()
	}
}

// ArchiveCopyResult buffers a terminal copy outcome.
func (a *TradeArchive) ArchiveCopyResult(result *storage.CopyResult) {
	a.mu.Lock()
	a.results = append(a.results, result)
	full := len(a.results) >= defaultMaxBuffer
	a.mu.Unlock()
	if full {
		a.nudge()
	}
}

// Close flushes outstanding buffers and closes the connection.
func (a *TradeArchive) Close(ctx context.Context) error {
	a.stop()
	select {
	case <-a.done:
	case <-ctx.Done():
	}
	a.flush(ctx)
	return a.conn.Close()
}

func (a *TradeArchive) nudge() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *TradeArchive) run(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.wake:
		}
		a.flush(ctx)
	}
}

func (a *TradeArchive) flush(ctx context.Context) {
	a.mu.Lock()
	trades := a.trades
	results := a.results
	a.trades = nil
	a.results = nil
	a.mu.Unlock()

	if len(trades) > 0 {
		if err := a.insertTrades(ctx, trades); err != nil {
			a.log.WithError(err).WithField("count", len(trades)).
				Warn("detected-trade batch dropped")
		}
	}
	if len(results) > 0 {
		if err := a.insertResults(ctx, results); err != nil {
			a.log.WithError(err).WithField("count", len(results)).
				Warn("copy-result batch dropped")
		}
	}
}

func (a *TradeArchive) insertTrades(ctx context.Context, trades []*domain.DetectedTrade) error {
	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO detected_trades (
			signature, slot, direction, token_mint, usdc_amount,
			token_amount_raw, token_decimals, user, aggregator, detected_at
		)
	`)
	if err != nil {
		return err
	}
	for _, t := range trades {
		if err := batch.Append(
			t.Signature, t.Slot, string(t.Direction), t.TokenMint,
			t.UsdcAmount.InexactFloat64(), t.TokenAmountRaw,
			uint16(t.TokenDecimals), t.User, string(t.Aggregator), t.DetectedAt,
		); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (a *TradeArchive) insertResults(ctx context.Context, results []*storage.CopyResult) error {
	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO copy_results (
			original_signature, token_mint, direction, outcome, reason,
			copy_signature, copy_latency_ms, e2e_latency_ms, at
		)
	`)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := batch.Append(
			r.OriginalSignature, r.TokenMint, string(r.Direction), r.Outcome,
			r.Reason, r.CopySignature, r.CopyLatencyMs, r.E2ELatencyMs, r.At,
		); err != nil {
			return err
		}
	}
	return batch.Send()
}
