package engine

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheEntries = 1000
	maxCachedArrayItems = 10
)

type cacheEntry struct {
	matches   bool
	expiresAt time.Time
}

// resultCache memoizes condition outcomes per process. Entries expire after a
// TTL so relative date operators cannot serve stale answers indefinitely; the
// cache is never shared across processes.
type resultCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
}

func newResultCache(ttl time.Duration, maxEntries int) *resultCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &resultCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func (c *resultCache) get(key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return false, false
	}
	return entry.matches, true
}

func (c *resultCache) set(key string, matches bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.evictExpiredLocked()
		if len(c.entries) >= c.maxEntries {
			// Still full of live entries; drop everything rather than grow
			// without bound. Correctness does not depend on retention.
			c.entries = make(map[string]cacheEntry)
		}
	}
	c.entries[key] = cacheEntry{matches: matches, expiresAt: time.Now().Add(c.ttl)}
}

func (c *resultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *resultCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *resultCache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// cacheKey derives a canonical key from the condition shape and the subset of
// data the condition could observe. Only primitive values participate; arrays
// are truncated so oversized payloads cannot blow up key size. Nested objects
// are excluded, which keeps equal-looking payloads from aliasing distinct
// nested state at the cost of fewer hits.
func cacheKey(condition any, data map[string]any) (string, bool) {
	sanitized := make(map[string]any, len(data))
	for key, value := range data {
		switch val := value.(type) {
		case string, bool, float64, float32, int, int32, int64, nil:
			sanitized[key] = val
		case []any:
			if len(val) > maxCachedArrayItems {
				val = val[:maxCachedArrayItems]
			}
			sanitized[key] = val
		}
	}
	payload := struct {
		Condition any            `json:"condition"`
		Data      map[string]any `json:"data"`
	}{Condition: condition, Data: sanitized}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", false
	}
	return string(raw), true
}
