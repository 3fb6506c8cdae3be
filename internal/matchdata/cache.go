package matchdata

import (
	"sync"
	"time"
)

// cache holds immutable snapshots keyed by fixture. Entries are never
// mutated after Put; expired ones are ignored on read and pruned on growth.
type cache struct {
	ttl time.Duration
	max int

	mu      sync.RWMutex
	entries map[int64]*Snapshot
}

func newCache(ttl time.Duration, max int) *cache {
	return &cache{ttl: ttl, max: max, entries: map[int64]*Snapshot{}}
}

func (c *cache) get(id int64, now time.Time) (*Snapshot, bool) {
	c.mu.RLock()
	s, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || now.Sub(s.FetchedAt) >= c.ttl {
		return nil, false
	}
	return s, true
}

func (c *cache) put(s *Snapshot, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[s.FixtureID]; !exists && c.max > 0 && len(c.entries) >= c.max {
		c.pruneLocked(now)
	}
	c.entries[s.FixtureID] = s
}

// pruneLocked drops expired entries, then the oldest until below max.
func (c *cache) pruneLocked(now time.Time) {
	for id, s := range c.entries {
		if now.Sub(s.FetchedAt) >= c.ttl {
			delete(c.entries, id)
		}
	}
	for len(c.entries) >= c.max {
		var oldest int64
		var oldestAt time.Time
		first := true
		for id, s := range c.entries {
			if first || s.FetchedAt.Before(oldestAt) {
				oldest, oldestAt, first = id, s.FetchedAt, false
			}
		}
		delete(c.entries, oldest)
	}
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
