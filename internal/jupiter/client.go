// Package jupiter talks to the external swap-quote and build API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"shredcopy/internal/domain"
)

// API timeouts: quote and build sit on the copy critical path.
const (
	DefaultTimeout  = 2 * time.Second
	DefaultMaxConns = 10
)

// QuoteError wraps quote endpoint failures.
type QuoteError struct{ Err error }

func (e *QuoteError) Error() string { return fmt.Sprintf("quote: %v", e.Err) }
func (e *QuoteError) Unwrap() error { return e.Err }

// BuildError wraps swap-build endpoint failures.
type BuildError struct{ Err error }

func (e *BuildError) Error() string { return fmt.Sprintf("swap build: %v", e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }

// Client is the quote & swap-build API client.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logrus.Entry
}

// NewClient creates a client with a pooled keep-alive transport.
func NewClient(baseURL, apiKey string, log *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     DefaultMaxConns,
				MaxIdleConnsPerHost: DefaultMaxConns,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.WithField("component", "jupiter"),
	}
}

// QuoteRequest parameterizes GetQuote.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	AmountRaw   uint64
	SlippageBps int
	Mode        domain.SwapMode
}

// quoteResponse mirrors the API's quote JSON; amounts are integer strings.
type quoteResponse struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SwapMode             string `json:"swapMode"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

// GetQuote fetches a quote for the given pair, amount and mode.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*domain.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.AmountRaw, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	q.Set("swapMode", string(req.Mode))

	body, err := c.get(ctx, "/quote?"+q.Encode())
	if err != nil {
		return nil, &QuoteError{Err: err}
	}

	var resp quoteResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, &QuoteError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.InAmount == "" || resp.OutAmount == "" {
		return nil, &QuoteError{Err: errors.New("response missing amounts")}
	}

	inAmount, err := strconv.ParseUint(resp.InAmount, 10, 64)
	if err != nil {
		return nil, &QuoteError{Err: fmt.Errorf("inAmount %q: %w", resp.InAmount, err)}
	}
	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return nil, &QuoteError{Err: fmt.Errorf("outAmount %q: %w", resp.OutAmount, err)}
	}
	threshold, err := strconv.ParseUint(resp.OtherAmountThreshold, 10, 64)
	if err != nil {
		threshold = 0
	}
	impact, err := decimal.NewFromString(resp.PriceImpactPct)
	if err != nil {
		impact = decimal.Zero
	}

	return &domain.Quote{
		InputMint:            resp.InputMint,
		OutputMint:           resp.OutputMint,
		InAmountRaw:          inAmount,
		OutAmountRaw:         outAmount,
		OtherAmountThreshold: threshold,
		PriceImpactPct:       impact,
		Mode:                 domain.SwapMode(resp.SwapMode),
		FetchedAt:            time.Now(),
		Raw:                  body,
	}, nil
}

// swapRequest is the build request body; the quote JSON is replayed
// verbatim under quoteResponse.
type swapRequest struct {
	QuoteResponse                 sonicRaw `json:"quoteResponse"`
	UserPublicKey                 string   `json:"userPublicKey"`
	WrapAndUnwrapSol              bool     `json:"wrapAndUnwrapSol"`
	ComputeUnitPriceMicroLamports uint64   `json:"computeUnitPriceMicroLamports"`
	DynamicComputeUnitLimit       bool     `json:"dynamicComputeUnitLimit"`
}

type sonicRaw []byte

func (r sonicRaw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// BuildSwap requests a serialized unsigned swap transaction for the quote.
func (c *Client) BuildSwap(ctx context.Context, quote *domain.Quote, userPubkey string, cuPriceMicroLamports uint64) ([]byte, error) {
	reqBody, err := sonic.Marshal(swapRequest{
		QuoteResponse:                 sonicRaw(quote.Raw),
		UserPublicKey:                 userPubkey,
		WrapAndUnwrapSol:              true,
		ComputeUnitPriceMicroLamports: cuPriceMicroLamports,
		DynamicComputeUnitLimit:       true,
	})
	if err != nil {
		return nil, &BuildError{Err: err}
	}

	body, err := c.post(ctx, "/swap", reqBody)
	if err != nil {
		return nil, &BuildError{Err: err}
	}

	var resp struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, &BuildError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.SwapTransaction == "" {
		return nil, &BuildError{Err: errors.New("response missing swapTransaction")}
	}

	txBytes, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, &BuildError{Err: fmt.Errorf("decode transaction: %w", err)}
	}
	return txBytes, nil
}

// Warmup primes connections and server-side caches with one light request
// per endpoint. Failures are logged only.
func (c *Client) Warmup(ctx context.Context) {
	paths := []string{
		"/tokens",
		"/quote?inputMint=" + domain.USDCMint + "&outputMint=So11111111111111111111111111111111111111112&amount=1000000&slippageBps=100&swapMode=ExactIn",
	}
	for _, p := range paths {
		if _, err := c.get(ctx, p); err != nil {
			c.log.WithError(err).WithField("path", p).Debug("warmup request failed")
		}
	}
	// Exercise /swap with a throwaway body so its route is hot too.
	if _, err := c.post(ctx, "/swap", []byte(`{}`)); err != nil {
		c.log.WithError(err).Debug("warmup swap request failed")
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
