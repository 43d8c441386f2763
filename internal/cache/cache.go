// Package cache provides the process-wide analysis cache.
package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// Cache is a byte-oriented key/value cache with hit/miss accounting.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Stats() Stats
	Clear(ctx context.Context) error
}

// Stats is a snapshot of cache counters
type Stats struct {
	Backend string  `json:"backend"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hitRate"`
	Errors  uint64  `json:"errors,omitempty"`
}

type counters struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	failures atomic.Uint64
}

func (c *counters) hit()  { c.hits.Add(1) }
func (c *counters) miss() { c.misses.Add(1) }

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.failures.Store(0)
}

func (c *counters) snapshot(backend string, entries int) Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Backend: backend, Hits: hits, Misses: misses, Entries: entries, Errors: c.failures.Load()}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
