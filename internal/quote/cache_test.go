package quote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shredcopy/internal/domain"
	"shredcopy/internal/jupiter"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	out   uint64
}

func (f *fakeFetcher) GetQuote(_ context.Context, req jupiter.QuoteRequest) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := f.out
	if out == 0 {
		out = req.AmountRaw * 2
	}
	return &domain.Quote{
		InputMint:    req.InputMint,
		OutputMint:   req.OutputMint,
		InAmountRaw:  req.AmountRaw,
		OutAmountRaw: out,
		Mode:         req.Mode,
		FetchedAt:    time.Now(),
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func buyReq(mint string, amount uint64) jupiter.QuoteRequest {
	return jupiter.QuoteRequest{
		InputMint:   domain.USDCMint,
		OutputMint:  mint,
		AmountRaw:   amount,
		SlippageBps: 100,
		Mode:        domain.SwapModeExactIn,
	}
}

func TestCache_HitWithinTTL(t *testing.T) {
	f := &fakeFetcher{}
	c := NewCache(f, 100, quietLogger())
	ctx := context.Background()

	q1, err := c.GetWithCache(ctx, buyReq("m1", 2_000_000))
	require.NoError(t, err)
	q2, err := c.GetWithCache(ctx, buyReq("m1", 2_000_000))
	require.NoError(t, err)

	assert.Same(t, q1, q2)
	assert.Equal(t, 1, f.callCount())
}

func TestCache_DistinctKeys(t *testing.T) {
	f := &fakeFetcher{}
	c := NewCache(f, 100, quietLogger())
	ctx := context.Background()

	_, err := c.GetWithCache(ctx, buyReq("m1", 2_000_000))
	require.NoError(t, err)
	_, err = c.GetWithCache(ctx, buyReq("m1", 3_000_000))
	require.NoError(t, err)
	_, err = c.GetWithCache(ctx, buyReq("m2", 2_000_000))
	require.NoError(t, err)

	// ExactOut is a different key even for the same pair and amount.
	req := buyReq("m1", 2_000_000)
	req.Mode = domain.SwapModeExactOut
	_, err = c.GetWithCache(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 4, f.callCount())
}

func TestCache_ExpiredEntryRefetched(t *testing.T) {
	f := &fakeFetcher{}
	c := NewCache(f, 100, quietLogger())
	ctx := context.Background()

	q, err := c.GetWithCache(ctx, buyReq("m1", 1))
	require.NoError(t, err)
	// Age the entry past the TTL.
	q.FetchedAt = time.Now().Add(-QuoteTTL - time.Second)

	_, err = c.GetWithCache(ctx, buyReq("m1", 1))
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount())
}

func TestCache_FetchErrorPropagates(t *testing.T) {
	f := &fakeFetcher{err: errors.New("api down")}
	c := NewCache(f, 100, quietLogger())

	_, err := c.GetWithCache(context.Background(), buyReq("m1", 1))
	assert.Error(t, err)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	f := &fakeFetcher{}
	c := NewCache(f, 100, quietLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.GetWithCache(ctx, buyReq("m", uint64(i%4+1))); err != nil {
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, failures.Load())
}
