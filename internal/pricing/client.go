// Package pricing batch-fetches current token prices for the exit manager.
package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// ErrFetch wraps price API failures.
type ErrFetch struct{ Err error }

func (e *ErrFetch) Error() string { return fmt.Sprintf("price fetch: %v", e.Err) }
func (e *ErrFetch) Unwrap() error { return e.Err }

const defaultTimeout = 2 * time.Second

// Client is the external price API client.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a price client.
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

// GetPrices fetches prices for all mints in one request. Mints missing from
// the response are absent from the result map.
func (c *Client) GetPrices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error) {
	if len(mints) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/price?"+q.Encode(), nil)
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
		Data map[string]struct {
			Price float64 `json:"price"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, &ErrFetch{Err: fmt.Errorf("decode response: %w", err)}
	}

	out := make(map[string]decimal.Decimal, len(parsed.Data))
	for mint, d := range parsed.Data {
		if d.Price > 0 {
			out[mint] = decimal.NewFromFloat(d.Price)
		}
	}
	return out, nil
}
