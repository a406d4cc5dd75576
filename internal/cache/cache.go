// Package cache memoizes rendered pages for a short TTL. Staleness is
// bounded only by expiry: writes do not invalidate, so a viewer may see a
// feed up to one TTL old.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"microblog/internal/monitoring"
)

// Key identifies one cached rendering: the route, the viewer's session
// cookie (anonymous viewers share the empty value) and the page number.
type Key struct {
	Route   string
	Session string
	Page    int
}

type PageCache struct {
	lru *expirable.LRU[Key, []byte]
}

func New(size int, ttl time.Duration) *PageCache {
	return &PageCache{
		lru: expirable.NewLRU[Key, []byte](size, nil, ttl),
	}
}

// GetOrCompute returns the cached bytes for key, computing and storing them
// on miss or expiry. The second result reports whether this was a hit.
func (c *PageCache) GetOrCompute(key Key, compute func() ([]byte, error)) ([]byte, bool, error) {
	if value, ok := c.lru.Get(key); ok {
		monitoring.PageCacheHits.Inc()
		return value, true, nil
	}
	monitoring.PageCacheMisses.Inc()

	value, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.lru.Add(key, value)
	return value, false, nil
}

// Purge drops every entry.
func (c *PageCache) Purge() {
	c.lru.Purge()
}
