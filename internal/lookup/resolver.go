// Package lookup resolves versioned transactions' address-lookup-table
// references into full account-key vectors.
package lookup

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"shredcopy/internal/solana"
	"shredcopy/internal/txdecode"
)

// Fetch rate: at most 2 table fetches per second globally.
const fetchesPerSecond = 2

// Resolver caches lookup-table contents and expands decoded transactions to
// their full key vectors. Tables are treated as immutable: entries never
// expire.
type Resolver struct {
	rpc     solana.RPCClient
	log     *logrus.Entry
	limiter *rate.Limiter
	group   singleflight.Group

	mu     sync.RWMutex
	tables map[string][]string
}

// NewResolver creates a resolver over the given provider.
func NewResolver(rpc solana.RPCClient, log *logrus.Logger) *Resolver {
	return &Resolver{
		rpc:     rpc,
		log:     log.WithField("component", "lookup"),
		limiter: rate.NewLimiter(rate.Limit(fetchesPerSecond), 1),
		tables:  make(map[string][]string),
	}
}

// Resolve returns the transaction's full account-key vector:
// static ++ writable(t1) ++ readonly(t1) ++ writable(t2) ++ ...
// Legacy transactions and versioned ones without lookups return static keys
// unchanged. Table fetch failures degrade to partial resolution; callers
// tolerate the subset.
func (r *Resolver) Resolve(ctx context.Context, tx *txdecode.Transaction) []string {
	if !tx.HasLookups() {
		return tx.AccountKeys
	}

	keys := make([]string, 0, len(tx.AccountKeys)+8*len(tx.LookupRefs))
	keys = append(keys, tx.AccountKeys...)

	for _, ref := range tx.LookupRefs {
		addrs, err := r.table(ctx, ref.Table)
		if err != nil {
			r.log.WithError(err).WithField("table", ref.Table).
				Debug("lookup table fetch failed, continuing partial")
			continue
		}
		keys = appendIndexed(keys, addrs, ref.WritableIxs)
		keys = appendIndexed(keys, addrs, ref.ReadonlyIxs)
	}
	return keys
}

// table returns the cached address vector, fetching on miss. Concurrent
// misses for the same table coalesce into one in-flight fetch.
func (r *Resolver) table(ctx context.Context, table string) ([]string, error) {
	r.mu.RLock()
	addrs, ok := r.tables[table]
	r.mu.RUnlock()
	if ok {
		return addrs, nil
	}

	v, err, _ := r.group.Do(table, func() (interface{}, error) {
		// Re-check under the flight: another caller may have populated it.
		r.mu.RLock()
		cached, ok := r.tables[table]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		fetched, err := r.rpc.GetAddressLookupTable(ctx, table)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.tables[table] = fetched
		r.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// CachedTables reports how many tables are held. Used by metrics.
func (r *Resolver) CachedTables() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

func appendIndexed(dst []string, addrs []string, ixs []uint8) []string {
	for _, ix := range ixs {
		if int(ix) < len(addrs) {
			dst = append(dst, addrs[ix])
		}
	}
	return dst
}
