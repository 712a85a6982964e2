package lookup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shredcopy/internal/solana"
	"shredcopy/internal/txdecode"
)

// fakeRPC implements the lookup-table slice of solana.RPCClient.
type fakeRPC struct {
	solana.RPCClient

	mu      sync.Mutex
	tables  map[string][]string
	calls   map[string]int
	failing map[string]bool
	inFly   atomic.Int32
	maxFly  atomic.Int32
	block   chan struct{}
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		tables:  make(map[string][]string),
		calls:   make(map[string]int),
		failing: make(map[string]bool),
	}
}

func (f *fakeRPC) GetAddressLookupTable(_ context.Context, table string) ([]string, error) {
	cur := f.inFly.Add(1)
	for {
		max := f.maxFly.Load()
		if cur <= max || f.maxFly.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}
	defer f.inFly.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[table]++
	if f.failing[table] {
		return nil, errors.New("rpc down")
	}
	addrs, ok := f.tables[table]
	if !ok {
		return nil, errors.New("not found")
	}
	return addrs, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func legacyTx(keys ...string) *txdecode.Transaction {
	return &txdecode.Transaction{AccountKeys: keys, Version: txdecode.VersionLegacy}
}

func v0Tx(keys []string, refs ...txdecode.LookupRef) *txdecode.Transaction {
	return &txdecode.Transaction{
		AccountKeys: keys,
		Version:     txdecode.VersionV0,
		LookupRefs:  refs,
	}
}

func TestResolve_LegacyPassthrough(t *testing.T) {
	r := NewResolver(newFakeRPC(), quietLogger())
	keys := r.Resolve(context.Background(), legacyTx("k1", "k2"))
	assert.Equal(t, []string{"k1", "k2"}, keys)
}

func TestResolve_ExpansionOrder(t *testing.T) {
	rpc := newFakeRPC()
	rpc.tables["t1"] = []string{"a0", "a1", "a2", "a3"}
	rpc.tables["t2"] = []string{"b0", "b1"}
	r := NewResolver(rpc, quietLogger())

	tx := v0Tx([]string{"s0", "s1"},
		txdecode.LookupRef{Table: "t1", WritableIxs: []uint8{2, 0}, ReadonlyIxs: []uint8{3}},
		txdecode.LookupRef{Table: "t2", WritableIxs: []uint8{1}, ReadonlyIxs: []uint8{0}},
	)

	keys := r.Resolve(context.Background(), tx)
	assert.Equal(t, []string{"s0", "s1", "a2", "a0", "a3", "b1", "b0"}, keys)

	// Static keys are always a prefix of the full vector.
	require.GreaterOrEqual(t, len(keys), len(tx.AccountKeys))
	assert.Equal(t, tx.AccountKeys, keys[:len(tx.AccountKeys)])
}

func TestResolve_CachesTables(t *testing.T) {
	rpc := newFakeRPC()
	rpc.tables["t1"] = []string{"a0"}
	r := NewResolver(rpc, quietLogger())

	tx := v0Tx([]string{"s0"}, txdecode.LookupRef{Table: "t1", WritableIxs: []uint8{0}})
	for i := 0; i < 5; i++ {
		r.Resolve(context.Background(), tx)
	}

	assert.Equal(t, 1, rpc.calls["t1"])
	assert.Equal(t, 1, r.CachedTables())
}

func TestResolve_CoalescesConcurrentFetches(t *testing.T) {
	rpc := newFakeRPC()
	rpc.tables["t1"] = []string{"a0"}
	rpc.block = make(chan struct{})
	r := NewResolver(rpc, quietLogger())

	tx := v0Tx([]string{"s0"}, txdecode.LookupRef{Table: "t1", WritableIxs: []uint8{0}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(context.Background(), tx)
		}()
	}
	close(rpc.block)
	wg.Wait()

	assert.Equal(t, 1, rpc.calls["t1"], "concurrent misses must coalesce")
	assert.LessOrEqual(t, rpc.maxFly.Load(), int32(1))
}

func TestResolve_PartialOnFetchFailure(t *testing.T) {
	rpc := newFakeRPC()
	rpc.tables["good"] = []string{"g0"}
	rpc.failing["bad"] = true
	r := NewResolver(rpc, quietLogger())

	tx := v0Tx([]string{"s0"},
		txdecode.LookupRef{Table: "bad", WritableIxs: []uint8{0}},
		txdecode.LookupRef{Table: "good", WritableIxs: []uint8{0}},
	)

	keys := r.Resolve(context.Background(), tx)
	assert.Equal(t, []string{"s0", "g0"}, keys)
}

func TestResolve_OutOfRangeIndexSkipped(t *testing.T) {
	rpc := newFakeRPC()
	rpc.tables["t1"] = []string{"a0"}
	r := NewResolver(rpc, quietLogger())

	tx := v0Tx([]string{"s0"},
		txdecode.LookupRef{Table: "t1", WritableIxs: []uint8{0, 200}},
	)
	keys := r.Resolve(context.Background(), tx)
	assert.Equal(t, []string{"s0", "a0"}, keys)
}
