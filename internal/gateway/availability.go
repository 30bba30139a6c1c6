// Package gateway provides the availability-cache wrapper (C3) around the
// vector and graph storage gateways: a 30s-TTL health cache guarded by a
// mutex, poisoned immediately by operation sites that observe a failure so
// subsequent requests degrade without re-probing a backend that just broke.
package gateway

import (
	"context"
	"sync"
	"time"
)

// cacheTTL is how long an availability result is trusted before the next
// Available() call re-probes.
const cacheTTL = 30 * time.Second

// Prober is a health check callback, typically Store.Ping or an HTTP probe.
type Prober func(ctx context.Context) error

// Cache caches the result of a [Prober] for cacheTTL, poisoned immediately
// by [Cache.MarkDown] when an operation site observes a failure outside the
// probe path itself. Safe for concurrent use.
type Cache struct {
	probe Prober

	mu        sync.Mutex
	checkedAt time.Time
	available bool
}

// New returns a [Cache] wrapping probe.
func New(probe Prober) *Cache {
	return &Cache{probe: probe}
}

// Available reports whether the backend is currently considered healthy,
// re-probing if the cached result is older than cacheTTL.
func (c *Cache) Available(ctx context.Context) bool {
	c.mu.Lock()
	if time.Since(c.checkedAt) < cacheTTL {
		available := c.available
		c.mu.Unlock()
		return available
	}
	c.mu.Unlock()

	err := c.probe(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = err == nil
	c.checkedAt = time.Now()
	return c.available
}

// MarkDown poisons the cache immediately, forcing every Available() call in
// the next cacheTTL window to report false without re-probing. Call sites
// invoke this the moment an operation observes a transient failure so the
// cache doesn't keep serving a stale "healthy" result.
func (c *Cache) MarkDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = false
	c.checkedAt = time.Now()
}

// MarkOK marks the backend healthy immediately, used after an operation
// succeeds against a backend the cache had poisoned, so recovery is visible
// without waiting out the TTL.
func (c *Cache) MarkOK() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = true
	c.checkedAt = time.Now()
}
