package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers recently seen message keys so webhook retries and
// double-taps don't run the pipeline twice. Entries expire after ttl; the
// cache is capped to maxEntries to bound memory under key churn.
type DedupeCache struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	ttl        time.Duration
	maxEntries int
}

// NewDedupeCache creates a dedupe cache with the given TTL and size cap.
func NewDedupeCache(ttl time.Duration, maxEntries int) *DedupeCache {
	if maxEntries <= 0 {
		maxEntries = 5000
	}
	return &DedupeCache{
		seen:       make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// IsDuplicate records the key and reports whether it was already seen within
// the TTL window.
func (c *DedupeCache) IsDuplicate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if at, ok := c.seen[key]; ok && now.Sub(at) < c.ttl {
		return true
	}

	// Prune expired entries when at cap; hard-evict if pruning wasn't enough.
	if len(c.seen) >= c.maxEntries {
		for k, at := range c.seen {
			if now.Sub(at) >= c.ttl {
				delete(c.seen, k)
			}
		}
		for len(c.seen) >= c.maxEntries {
			for k := range c.seen {
				delete(c.seen, k)
				break
			}
		}
	}

	c.seen[key] = now
	return false
}

// Len returns the number of tracked keys (expired entries included until pruned).
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
