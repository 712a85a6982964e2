// Package watch maintains the set of wallets whose trades are mirrored.
package watch

import "sync"

// List is the watched-address set. The hot path scans transaction keys
// against it under a read lock; mutations come from the subscription
// manager and are rare.
type List struct {
	mu    sync.RWMutex
	addrs map[string]struct{}
}

// NewList creates a watchlist seeded with the given addresses.
func NewList(addrs ...string) *List {
	l := &List{addrs: make(map[string]struct{}, len(addrs))}
	for _, a := range addrs {
		l.addrs[a] = struct{}{}
	}
	return l
}

// Add inserts an address.
func (l *List) Add(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addrs[addr] = struct{}{}
}

// Remove deletes an address.
func (l *List) Remove(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.addrs, addr)
}

// Contains reports membership of a single address.
func (l *List) Contains(addr string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.addrs[addr]
	return ok
}

// FirstMatch returns the first key present in the set, scanning in key
// order so cost is O(len(keys)) regardless of watchlist size. Empty string
// when none match.
func (l *List) FirstMatch(keys []string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, k := range keys {
		if _, ok := l.addrs[k]; ok {
			return k
		}
	}
	return ""
}

// Len returns the watchlist size.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.addrs)
}

// Snapshot returns a copy of the current set.
func (l *List) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.addrs))
	for a := range l.addrs {
		out = append(out, a)
	}
	return out
}
