package probe

import (
	"sync"
	"time"
)

// cacheEntry is a probed result with an expiration time
type cacheEntry struct {
	result     Result
	expiration time.Time
}

func (e cacheEntry) expired() bool {
	return time.Now().After(e.expiration)
}

// resultCache is a TTL cache of probe results keyed by file path. Probing
// runs ffprobe or decodes audio frames, so repeated imports of the same
// path (library scan plus watcher events) shouldn't pay twice.
type resultCache struct {
	items map[string]cacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
}

func newResultCache(ttl time.Duration) *resultCache {
	c := &resultCache{
		items: make(map[string]cacheEntry),
		ttl:   ttl,
	}
	go c.cleanupExpired()
	return c
}

func (c *resultCache) set(path string, result Result) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[path] = cacheEntry{
		result:     result,
		expiration: time.Now().Add(c.ttl),
	}
}

func (c *resultCache) get(path string) (Result, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[path]
	if !exists || entry.expired() {
		return Result{}, false
	}
	return entry.result, true
}

func (c *resultCache) invalidate(path string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, path)
}

// cleanupExpired removes expired entries periodically
func (c *resultCache) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		for path, entry := range c.items {
			if entry.expired() {
				delete(c.items, path)
			}
		}
		c.mutex.Unlock()
	}
}
