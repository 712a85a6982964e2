// Package detect turns classified transactions into normalized trades and
// runs the ingestion → detection pipeline.
package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"shredcopy/internal/domain"
	"shredcopy/internal/solana"
)

// Reconstruction tunables.
const (
	// metaPollInterval paces polling for executed metadata; the shred
	// stream sees a transaction before the provider confirms it.
	metaPollInterval = 250 * time.Millisecond
	// metaWait bounds how long reconstruction waits for metadata.
	metaWait = 10 * time.Second
)

// usdcDust is the minimum USDC delta treated as a trade.
var usdcDust = decimal.New(1, -6)

// Reconstructor computes user balance deltas from executed-transaction
// metadata. Working from deltas rather than instruction payloads keeps the
// result immune to router format changes and multi-hop routes, and reflects
// the realized effect net of fees and wrapping.
type Reconstructor struct {
	rpc solana.RPCClient
}

// NewReconstructor creates a reconstructor over the given provider.
func NewReconstructor(rpc solana.RPCClient) *Reconstructor {
	return &Reconstructor{rpc: rpc}
}

// Reconstruct fetches metadata for the signature and derives the user's
// trade. Returns (nil, nil) when the transaction is not a USDC-vs-token
// swap for the user; errors on metadata-fetch failure or when the token
// leg's raw delta is not an integer.
func (r *Reconstructor) Reconstruct(ctx context.Context, signature string, slot uint64, tag domain.AggregatorTag, user string) (*domain.DetectedTrade, error) {
	meta, err := r.awaitMeta(ctx, signature)
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.Err != nil {
		// Never landed or failed on-chain; nothing was traded.
		return nil, nil
	}

	deltas := UserDeltas(meta, user)

	var usdcDelta decimal.Decimal
	var token *domain.TokenBalanceDelta
	tokenCount := 0
	for i := range deltas {
		d := &deltas[i]
		if d.RawDelta.IsZero() {
			continue
		}
		if d.Mint == domain.USDCMint {
			usdcDelta = d.RawDelta
			continue
		}
		token = d
		tokenCount++
	}

	if usdcDelta.IsZero() || token == nil || tokenCount != 1 {
		return nil, nil
	}

	// Exact base-10 placement: the raw integer string shifted by USDC's
	// six decimals. No float division anywhere on this path.
	usdcAmount := usdcDelta.Abs().Shift(-domain.USDCDecimals)
	if usdcAmount.LessThan(usdcDust) {
		return nil, nil
	}

	direction := domain.DirectionBuy
	if usdcDelta.IsPositive() {
		direction = domain.DirectionSell
	}

	rawAbs := token.RawDelta.Abs()
	if !rawAbs.IsInteger() {
		return nil, fmt.Errorf("non-integer raw delta for mint %s", token.Mint)
	}

	return &domain.DetectedTrade{
		Signature:      signature,
		Slot:           slot,
		Direction:      direction,
		TokenMint:      token.Mint,
		UsdcAmount:     usdcAmount,
		TokenAmountRaw: rawAbs.BigInt().Uint64(),
		TokenDecimals:  token.Decimals,
		User:           user,
		Aggregator:     tag,
		DetectedAt:     time.Now(),
	}, nil
}

// awaitMeta polls the provider until metadata appears or the wait expires.
func (r *Reconstructor) awaitMeta(ctx context.Context, signature string) (*solana.ParsedTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, metaWait)
	defer cancel()

	ticker := time.NewTicker(metaPollInterval)
	defer ticker.Stop()

	for {
		meta, err := r.rpc.GetParsedTransaction(ctx, signature)
		if err == nil && meta != nil {
			return meta, nil
		}
		if err != nil {
			// Provider hiccups are retried until the wait expires.
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch metadata for %s: %w", signature, err)
			case <-ticker.C:
				continue
			}
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-ticker.C:
		}
	}
}

// UserDeltas computes per-mint raw deltas restricted to balances owned by
// user: sum(post) - sum(pre), decimals carried from whichever side reported
// the mint (post preferred).
func UserDeltas(meta *solana.ParsedTransaction, user string) []domain.TokenBalanceDelta {
	type acc struct {
		delta    decimal.Decimal
		decimals uint8
		order    int
	}
	byMint := make(map[string]*acc)
	order := 0

	get := func(mint string, decimals uint8, fromPost bool) *acc {
		a, ok := byMint[mint]
		if !ok {
			a = &acc{decimals: decimals, order: order}
			order++
			byMint[mint] = a
		} else if fromPost {
			a.decimals = decimals
		}
		return a
	}

	for _, b := range meta.PreTokenBalances {
		if b.Owner != user {
			continue
		}
		raw, err := decimal.NewFromString(b.UITokenAmount.Amount)
		if err != nil {
			continue
		}
		a := get(b.Mint, b.UITokenAmount.Decimals, false)
		a.delta = a.delta.Sub(raw)
	}
	for _, b := range meta.PostTokenBalances {
		if b.Owner != user {
			continue
		}
		raw, err := decimal.NewFromString(b.UITokenAmount.Amount)
		if err != nil {
			continue
		}
		a := get(b.Mint, b.UITokenAmount.Decimals, true)
		a.delta = a.delta.Add(raw)
	}

	out := make([]domain.TokenBalanceDelta, len(byMint))
	for mint, a := range byMint {
		out[a.order] = domain.TokenBalanceDelta{
			Mint:     mint,
			Owner:    user,
			RawDelta: a.delta,
			Decimals: a.decimals,
		}
	}
	return out
}
