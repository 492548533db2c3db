// Package cache keeps the last successfully scraped raw text per user and
// source so repeated questions do not trigger another browser login.
package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pavelanni/studibot/internal/model"
	"github.com/pavelanni/studibot/internal/ttl"
)

// DefaultTTL is how long scraped raw text stays fresh.
const DefaultTTL = time.Hour

type key struct {
	user string
	kind model.DataKind
}

// FetchFunc obtains raw text for a cache miss.
type FetchFunc func(ctx context.Context) (string, error)

// Cache stores raw scraped text only. Formatted LLM output never goes in
// here; it is regenerated per turn from the cached raw text.
type Cache struct {
	m     *ttl.Map[key, string]
	group singleflight.Group
}

// New creates a cache. A nil clock uses time.Now.
func New(ttlDur time.Duration, now func() time.Time) *Cache {
	if ttlDur <= 0 {
		ttlDur = DefaultTTL
	}
	return &Cache{m: ttl.New[key, string](ttlDur, now)}
}

// Get returns cached raw text, evicting it if stale.
func (c *Cache) Get(userID string, kind model.DataKind) (string, bool) {
	return c.m.Get(key{userID, kind})
}

// Put stores raw text for the user and kind.
func (c *Cache) Put(userID string, kind model.DataKind, raw string) {
	c.m.Set(key{userID, kind}, raw)
}

// Sweep drops all stale entries and returns how many were removed.
func (c *Cache) Sweep() int {
	return c.m.Sweep()
}

// RunJanitor sweeps stale entries every interval until ctx is done, so
// text of users who never come back does not stay in memory.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) {
	c.m.RunJanitor(ctx, interval, "scrape cache")
}

// Load returns cached raw text or calls fetch. Concurrent misses for the
// same user and kind share one fetch. Failed fetches are not cached.
// The bool reports whether the value came from the cache.
func (c *Cache) Load(ctx context.Context, userID string, kind model.DataKind, fetch FetchFunc) (string, bool, error) {
	if raw, ok := c.Get(userID, kind); ok {
		slog.Debug("scrape cache hit", "kind", kind)
		return raw, true, nil
	}

	sfKey := string(kind) + "\x00" + userID
	v, err, shared := c.group.Do(sfKey, func() (any, error) {
		raw, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		c.Put(userID, kind, raw)
		return raw, nil
	})
	if err != nil {
		return "", false, err
	}
	slog.Debug("scrape cache filled", "kind", kind, "shared", shared)
	return v.(string), false, nil
}
