package inbound

import (
	"sync"
	"time"
)

type dedupEntry struct {
	seenAt time.Time
}

// DedupCache remembers (provider, dedup key) pairs for a rolling window so
// provider redeliveries are dropped before they reach the router.
type DedupCache struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]dedupEntry
}

func NewDedupCache(window time.Duration) *DedupCache {
	return &DedupCache{
		window: window,
		seen:   make(map[string]dedupEntry),
	}
}

// Seen reports whether the key was observed inside the window and marks it
// as observed. The check and the mark are one atomic step so two concurrent
// duplicates cannot both pass.
func (c *DedupCache) Seen(provider, key string) bool {
	if key == "" {
		return false
	}
	now := time.Now()
	full := provider + ":" + key

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[full]; ok && now.Sub(entry.seenAt) <= c.window {
		return true
	}
	c.seen[full] = dedupEntry{seenAt: now}

	// Expired entries accumulate between hits; sweep opportunistically.
	if len(c.seen) > 4096 {
		for k, e := range c.seen {
			if now.Sub(e.seenAt) > c.window {
				delete(c.seen, k)
			}
		}
	}
	return false
}
