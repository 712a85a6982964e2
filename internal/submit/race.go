// Package submit dispatches signed transactions over two transports and
// returns on the first acknowledgment.
package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"shredcopy/internal/jito"
	"shredcopy/internal/observability"
	"shredcopy/internal/solana"
	"shredcopy/internal/txdecode"
)

// confirmWindow bounds the detached confirmation tracker.
const confirmWindow = 30 * time.Second

// SubmissionError wraps a both-transports failure; the RPC error is carried
// as the more informative cause.
type SubmissionError struct{ Err error }

func (e *SubmissionError) Error() string { return fmt.Sprintf("submission: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

type transportResult struct {
	transport string
	err       error
}

// Submitter races RPC sendTransaction against a bundle submission. The
// chain deduplicates by signature, so both transports carry identical
// bytes and the transaction's own signature identifies the result.
type Submitter struct {
	rpc     solana.RPCClient
	relay   *jito.Client // nil when the bundle path is disabled
	metrics *observability.Metrics
	log     *logrus.Entry
}

// NewSubmitter creates a submitter. relay may be nil.
func NewSubmitter(rpc solana.RPCClient, relay *jito.Client, metrics *observability.Metrics, log *logrus.Logger) *Submitter {
	return &Submitter{
		rpc:     rpc,
		relay:   relay,
		metrics: metrics,
		log:     log.WithField("component", "submit"),
	}
}

// Submit sends the transaction on both paths and returns the leading
// signature as soon as either acknowledges. The slower path is awaited in
// the background for logging only. When both fail, the RPC error
// propagates.
func (s *Submitter) Submit(ctx context.Context, signedTx []byte, blockhash string) (string, error) {
	signature, err := solana.LeadingSignature(signedTx)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}

	useRelay := s.relay != nil && s.relay.Available()
	if useRelay && blockhash == "" {
		// The tip transfer shares the swap's blockhash; recover it from
		// the transaction bytes when the caller has no pre-built entry.
		if tx, derr := txdecode.Decode(signedTx); derr == nil {
			blockhash = tx.Blockhash
		}
	}
	paths := 1
	if useRelay {
		paths = 2
	}
	results := make(chan transportResult, paths)

	var rpcErr error
	go func() {
		start := time.Now()
		_, err := s.rpc.SendTransaction(ctx, signedTx)
		s.observe("rpc", start, err)
		results <- transportResult{transport: "rpc", err: err}
	}()

	if useRelay {
		go func() {
			start := time.Now()
			_, err := s.relay.SendBundle(ctx, signedTx, blockhash)
			s.observe("bundle", start, err)
			results <- transportResult{transport: "bundle", err: err}
		}()
	}

	for i := 0; i < paths; i++ {
		res := <-results
		if res.err == nil {
			// First success wins. Drain the loser off-path and track
			// confirmation without holding the caller.
			remaining := paths - i - 1
			go s.drain(results, remaining)
			go s.trackConfirmation(signature)

			s.log.WithFields(logrus.Fields{
				"signature": signature,
				"transport": res.transport,
			}).Info("transaction submitted")
			return signature, nil
		}
		if res.transport == "rpc" {
			rpcErr = res.err
		}
	}

	if rpcErr == nil {
		rpcErr = fmt.Errorf("all transports failed")
	}
	return "", &SubmissionError{Err: rpcErr}
}

func (s *Submitter) observe(transport string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.SubmitLatency.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.log.WithError(err).WithField("transport", transport).Debug("transport send failed")
	}
}

func (s *Submitter) drain(results <-chan transportResult, n int) {
	for i := 0; i < n; i++ {
		res := <-results
		if res.err == nil {
			s.log.WithField("transport", res.transport).Debug("second transport also acknowledged")
		}
	}
}

// trackConfirmation waits for on-chain confirmation, logging only. Uses a
// detached context so copy latency never includes confirmation time.
func (s *Submitter) trackConfirmation(signature string) {
	ctx, cancel := context.WithTimeout(context.Background(), confirmWindow)
	defer cancel()

	if err := s.rpc.ConfirmTransaction(ctx, signature); err != nil {
		s.log.WithError(err).WithField("signature", signature).Warn("confirmation not observed")
		return
	}
	s.log.WithField("signature", signature).Info("transaction confirmed")
}
