// Package jito submits bundles to the block-engine relay.
package jito

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"shredcopy/internal/solana"
)

// ErrRelayUnavailable marks the relay as permanently degraded; the
// submitter falls back to RPC-only.
var ErrRelayUnavailable = errors.New("jito: relay unavailable")

// Searcher RPC methods.
const (
	getTipAccountsMethod = "/searcher.SearcherService/GetTipAccounts"
	sendBundleMethod     = "/searcher.SearcherService/SendBundle"
)

// Init retry schedule: one immediate attempt plus up to 3 retries, waiting
// 2s, 4s and 8s before them.
const (
	initRetries      = 3
	initBackoffBase  = 2 * time.Second
	sendTimeout      = 5 * time.Second
	tipRefreshPeriod = 10 * time.Minute
)

// Client is the bundle relay client. It is safe for concurrent use; when
// initialization fails permanently, Available reports false forever.
type Client struct {
	endpoint string
	wallet   *solana.Wallet
	tip      uint64
	log      *logrus.Entry

	mu          sync.RWMutex
	conn        *grpc.ClientConn
	tipAccounts []string
	unavailable bool
}

// NewClient creates an uninitialized relay client.
func NewClient(endpoint string, wallet *solana.Wallet, tipLamports uint64, log *logrus.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		wallet:   wallet,
		tip:      tipLamports,
		log:      log.WithField("component", "jito"),
	}
}

// Init dials the relay and resolves tip accounts, retrying with exponential
// backoff. Every backoff step is waited out before the client degrades
// permanently.
func (c *Client) Init(ctx context.Context) error {
	backoff := initBackoffBase
	var lastErr error

	for attempt := 0; attempt <= initRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
				backoff *= 2
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}

		err := c.connect(ctx)
		if err == nil {
			c.log.WithField("tip_accounts", len(c.tipAccounts)).Info("bundle relay ready")
			return nil
		}
		lastErr = err
		c.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"retries": initRetries,
		}).Warn("relay init failed")
	}

	c.mu.Lock()
	c.unavailable = true
	c.mu.Unlock()
	c.log.WithError(lastErr).Error("relay unavailable, degrading to RPC-only")
	return fmt.Errorf("%w: %v", ErrRelayUnavailable, lastErr)
}

func (c *Client) connect(ctx context.Context) error {
	conn, err := grpc.NewClient(c.endpoint,
		grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return err
	}

	var resp getTipAccountsResponse
	callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := conn.Invoke(callCtx, getTipAccountsMethod, getTipAccountsRequest{}, &resp); err != nil {
		conn.Close()
		return err
	}
	if len(resp.Accounts) == 0 {
		conn.Close()
		return errors.New("relay returned no tip accounts")
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.tipAccounts = resp.Accounts
	c.mu.Unlock()
	return nil
}

// Available reports whether bundle submission can be attempted.
func (c *Client) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.unavailable
}

// SendBundle submits tip transfer + swap as one ordered bundle. The
// blockhash signs the tip transfer; the swap bytes go in untouched.
func (c *Client) SendBundle(ctx context.Context, signedSwap []byte, blockhash string) (string, error) {
	c.mu.RLock()
	conn := c.conn
	accounts := c.tipAccounts
	unavailable := c.unavailable
	c.mu.RUnlock()

	if unavailable || conn == nil {
		return "", ErrRelayUnavailable
	}

	tipAccount := accounts[rand.Intn(len(accounts))]
	tipTx, err := BuildTipTransaction(c.wallet, tipAccount, c.tip, blockhash)
	if err != nil {
		return "", fmt.Errorf("build tip transfer: %w", err)
	}

	req := &sendBundleRequest{Transactions: [][]byte{tipTx, signedSwap}}
	var resp sendBundleResponse

	callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := conn.Invoke(callCtx, sendBundleMethod, req, &resp); err != nil {
		return "", err
	}
	return resp.UUID, nil
}

// Close releases the relay connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
