// Package postgres persists the watchlist.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool tuning for the watchlist: bulk reads happen once at startup and
// writes trickle in from the subscription manager, so a handful of
// connections with periodic health checks is plenty.
const (
	maxConns          = 4
	minConns          = 1
	connLifetime      = time.Hour
	healthCheckPeriod = time.Minute

	pingAttempts = 3
	pingDelay    = time.Second
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a Postgres pool sized for watchlist traffic and verifies
// the backend is reachable.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}

	config.MaxConns = maxConns
	config.MinConns = minConns
	config.MaxConnLifetime = connLifetime
	config.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	if err := pingWithRetry(ctx, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres %s unreachable: %w", config.ConnConfig.Host, err)
	}

	return &Pool{Pool: pool}, nil
}

// pingWithRetry gives a just-started backend a moment to come up instead of
// failing engine startup on the first refused dial.
func pingWithRetry(ctx context.Context, ping func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < pingAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pingDelay):
			}
		}
		if lastErr = ping(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}
