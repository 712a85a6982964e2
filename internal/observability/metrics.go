// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. Components treat a
// nil *Metrics as metrics-off.
type Metrics struct {
	// Ingestion
	FramesReceived     prometheus.Counter
	EntriesDecoded     prometheus.Counter
	EntriesMalformed   prometheus.Counter
	TxDecoded          prometheus.Counter
	TxDecodeFailed     prometheus.Counter
	TxVoteSkipped      prometheus.Counter
	TxWatchlistMatched prometheus.Counter

	// Detection
	TradesDetected  *prometheus.CounterVec // by aggregator
	TradesDeduped   prometheus.Counter
	ReconstructFail prometheus.Counter

	// Lookup resolution
	LookupTablesCached prometheus.Gauge
	LookupFetchErrors  prometheus.Counter

	// Copy execution
	CopyOutcomes  *prometheus.CounterVec // by terminal state
	CopyLatency   prometheus.Histogram
	E2ELatency    prometheus.Histogram
	SubmitLatency *prometheus.HistogramVec // by transport
	PrebuiltHits  prometheus.Counter
	PrebuiltMiss  prometheus.Counter

	// Positions & exits
	OpenPositions prometheus.Gauge
	ExitTriggers  *prometheus.CounterVec // by rule

	// Stream health
	StreamReconnects prometheus.Counter
	StreamConnected  prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "shredcopy"
	}

	return &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Shred-stream slot frames received.",
		}),
		EntriesDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_decoded_total",
			Help: "Entries successfully deserialized.",
		}),
		EntriesMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_malformed_total",
			Help: "Payloads dropped as malformed.",
		}),
		TxDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tx_decoded_total",
			Help: "Transactions decoded from entries.",
		}),
		TxDecodeFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tx_decode_failed_total",
			Help: "Transactions skipped after decode failure.",
		}),
		TxVoteSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tx_vote_skipped_total",
			Help: "Vote transactions short-circuited after decode.",
		}),
		TxWatchlistMatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tx_watchlist_matched_total",
			Help: "Transactions touching a watched wallet.",
		}),
		TradesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_detected_total",
			Help: "Normalized trades emitted.",
		}, []string{"aggregator"}),
		TradesDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_deduped_total",
			Help: "Evaluations skipped by the (signature, user) seen-set.",
		}),
		ReconstructFail: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconstruct_failed_total",
			Help: "Balance-delta reconstructions that errored.",
		}),
		LookupTablesCached: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lookup_tables_cached",
			Help: "Lookup tables held in the resolver cache.",
		}),
		LookupFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lookup_fetch_errors_total",
			Help: "Lookup-table fetches that failed.",
		}),
		CopyOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "copy_outcomes_total",
			Help: "Copy attempts by terminal state.",
		}, []string{"outcome"}),
		CopyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "copy_latency_seconds",
			Help:    "Time from orchestrator accept to send success.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		E2ELatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "e2e_latency_seconds",
			Help:    "Time from detection to copy send success.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SubmitLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "submit_latency_seconds",
			Help:    "Transport submission latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"transport"}),
		PrebuiltHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "prebuilt_hits_total",
			Help: "Buy copies served from the pre-built cache.",
		}),
		PrebuiltMiss: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "prebuilt_miss_total",
			Help: "Buy copies that fell back to live quote and build.",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions",
			Help: "Positions currently held by the ledger.",
		}),
		ExitTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "exit_triggers_total",
			Help: "Exit-rule activations.",
		}, []string{"rule"}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stream_reconnects_total",
			Help: "Shred-stream reconnect attempts.",
		}),
		StreamConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stream_connected",
			Help: "1 while the shred stream is connected.",
		}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
