package postgres

import (
	"context"
	"fmt"

	"shredcopy/internal/storage"
)

// WatchlistStore implements storage.WatchlistStore on Postgres. Two small
// tables: watched wallets and the token whitelist.
type WatchlistStore struct {
	pool *Pool
}

var _ storage.WatchlistStore = (*WatchlistStore)(nil)

// NewWatchlistStore creates a store over the pool.
func NewWatchlistStore(pool *Pool) *WatchlistStore {
	return &WatchlistStore{pool: pool}
}

// EnsureSchema creates the watchlist tables when missing.
func (s *WatchlistStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS watched_wallets (
			address    TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create watched_wallets: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS token_whitelist (
			mint       TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create token_whitelist: %w", err)
	}
	return nil
}

// LoadWallets returns every watched wallet address.
func (s *WatchlistStore) LoadWallets(ctx context.Context) ([]string, error) {
	return s.loadColumn(ctx, `SELECT address FROM watched_wallets ORDER BY address`)
}

// AddWallet upserts a watched wallet.
func (s *WatchlistStore) AddWallet(ctx context.Context, address string) error {
	if address == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO watched_wallets (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`,
		address)
	return err
}

// RemoveWallet deletes a watched wallet.
func (s *WatchlistStore) RemoveWallet(ctx context.Context, address string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM watched_wallets WHERE address = $1`, address)
	return err
}

// LoadTokenWhitelist returns every whitelisted mint.
func (s *WatchlistStore) LoadTokenWhitelist(ctx context.Context) ([]string, error) {
	return s.loadColumn(ctx, `SELECT mint FROM token_whitelist ORDER BY mint`)
}

// AddToken upserts a whitelisted mint.
func (s *WatchlistStore) AddToken(ctx context.Context, mint string) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_whitelist (mint) VALUES ($1) ON CONFLICT (mint) DO NOTHING`,
		mint)
	return err
}

// RemoveToken deletes a whitelisted mint.
func (s *WatchlistStore) RemoveToken(ctx context.Context, mint string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM token_whitelist WHERE mint = $1`, mint)
	return err
}

func (s *WatchlistStore) loadColumn(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
