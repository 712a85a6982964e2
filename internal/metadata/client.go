// Package metadata fetches external token market data for the quality
// filter.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"shredcopy/internal/domain"
)

// ErrFetch wraps metadata API failures.
type ErrFetch struct{ Err error }

func (e *ErrFetch) Error() string { return fmt.Sprintf("metadata fetch: %v", e.Err) }
func (e *ErrFetch) Unwrap() error { return e.Err }

const defaultTimeout = 2 * time.Second

// Client is the external metadata API client (pairs endpoint).
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a metadata client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// pairJSON mirrors the pairs response; the API is structurally loose, so
// every field is optional and validated after decode.
type pairJSON struct {
	Liquidity *struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
	Volume *struct {
		H24 *float64 `json:"h24"`
	} `json:"volume"`
	PairCreatedAt *int64  `json:"pairCreatedAt"` // ms since epoch
	PriceUsd      *string `json:"priceUsd"`
}

// Fetch retrieves market metadata for a mint from its first listed pair.
func (c *Client) Fetch(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tokens/"+mint, nil)
	if err != nil {
		return nil, &ErrFetch{Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ErrFetch{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrFetch{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ErrFetch{Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}

	var parsed struct {
		Pairs []pairJSON `json:"pairs"`
	}
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, &ErrFetch{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Pairs) == 0 {
		return nil, &ErrFetch{Err: errors.New("no pairs listed")}
	}

	pair := parsed.Pairs[0]
	now := time.Now()
	md := &domain.TokenMetadata{
		Mint:        mint,
		LastUpdated: now,
	}
	if pair.Liquidity != nil && pair.Liquidity.USD != nil {
		md.LiquidityUSDC = decimal.NewFromFloat(*pair.Liquidity.USD)
	}
	if pair.Volume != nil && pair.Volume.H24 != nil {
		md.Volume24hUSDC = decimal.NewFromFloat(*pair.Volume.H24)
	}
	if pair.PairCreatedAt != nil {
		md.TokenAgeSeconds = int64(now.Sub(time.UnixMilli(*pair.PairCreatedAt)).Seconds())
	}
	if pair.PriceUsd != nil {
		if price, err := decimal.NewFromString(*pair.PriceUsd); err == nil && price.IsPositive() {
			md.PriceHistory = []domain.PricePoint{{Timestamp: now, Price: price}}
		}
	}
	return md, nil
}
