// Package ttl provides a mutex-guarded map whose entries expire a fixed
// duration after their last write. Expired entries are removed lazily by
// the read that observes them.
package ttl

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	written time.Time
}

// Map is safe for concurrent use. The TTL check and the delete of an
// expired entry happen under one lock acquisition.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[K]entry[V]
}

// New creates a map with the given TTL. A nil clock uses time.Now.
func New[K comparable, V any](ttl time.Duration, now func() time.Time) *Map[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Map[K, V]{ttl: ttl, now: now, entries: make(map[K]entry[V])}
}

// Get returns the value for key. An expired entry is deleted and
// reported as absent.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	e, ok := m.entries[key]
	if !ok {
		return zero, false
	}
	if m.expired(e) {
		delete(m.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key and stamps it with the current time.
func (m *Map[K, V]) Set(key K, value V) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.entries[key] = entry[V]{value: value, written: now}
	return now
}

// Delete removes key. Deleting a missing key is a no-op.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were dropped.
func (m *Map[K, V]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RunJanitor sweeps expired entries every interval until ctx is done.
// Lazy expiry keeps reads correct without it; the janitor only drops
// entries nobody reads again. name labels the debug log.
func (m *Map[K, V]) RunJanitor(ctx context.Context, interval time.Duration, name string) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("swept expired entries", "map", name, "count", n)
			}
		}
	}
}

func (m *Map[K, V]) expired(e entry[V]) bool {
	return m.now().Sub(e.written) > m.ttl
}
