package analyzer

import (
	"sync"
	"time"

	"github.com/mailspend/mailspend/internal/model"
)

// cacheEntry represents a cached analysis result.
type cacheEntry struct {
	expiry time.Time
	result *model.AnalysisResult
}

// analysisCache is the in-process tier of the response cache, keyed by email
// ID. The persistent tier lives in the storage layer.
type analysisCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
}

// newAnalysisCache creates a new cache with the specified TTL.
func newAnalysisCache(ttl time.Duration) *analysisCache {
	if ttl == 0 {
		ttl = 24 * time.Hour // Default TTL
	}

	cache := &analysisCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves a result from the cache if it exists and hasn't expired.
func (c *analysisCache) get(key string) (*model.AnalysisResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.expiry) {
		return nil, false
	}

	return entry.result, true
}

// set stores a result in the cache.
func (c *analysisCache) set(key string, result *model.AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		result: result,
		expiry: time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *analysisCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// clear removes all entries from the cache.
func (c *analysisCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// size returns the number of entries in the cache.
func (c *analysisCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine.
func (c *analysisCache) Close() {
	close(c.stopCh)
}
