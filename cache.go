package swarm

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 5 * time.Minute
)

// cachedResult holds an accepted artifact along with the metadata needed to
// replay it as a completed attempt.
type cachedResult struct {
	artifact Artifact
	quality  float64
	strategy StrategyTag
	backend  string
	storedAt time.Time
}

// resultCache memoizes accepted artifacts so identical tasks skip the backend
// entirely. Only artifacts that passed verification are stored, which keeps a
// hit equivalent to a fresh successful attempt.
type resultCache struct {
	cache  *lru.Cache[string, cachedResult]
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// newResultCache builds a cache with the given capacity and TTL, falling back
// to defaults for non-positive values.
func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New[string, cachedResult](size)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return nil
	}
	return &resultCache{cache: cache, ttl: ttl}
}

// cacheKey derives a deterministic key from the fields that determine the
// generated output. The backend is part of the key so switching providers
// never serves stale content from another model.
func cacheKey(kind TaskKind, description, backend string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(description))
	h.Write([]byte{0})
	h.Write([]byte(backend))
	return hex.EncodeToString(h.Sum(nil))
}

// get returns the cached result for key when it is present, still fresh and
// scored at or above minQuality. A below-bar entry counts as a miss but
// stays cached for tasks with a weaker bar.
func (c *resultCache) get(key string, minQuality float64) (cachedResult, bool) {
	if c == nil {
		return cachedResult{}, false
	}
	entry, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		return cachedResult{}, false
	}
	if time.Since(entry.storedAt) >= c.ttl {
		// Expired entries are evicted so the LRU bookkeeping stays clean.
		c.cache.Remove(key)
		c.misses.Add(1)
		return cachedResult{}, false
	}
	if entry.quality < minQuality {
		c.misses.Add(1)
		return cachedResult{}, false
	}
	c.hits.Add(1)
	return entry, true
}

// put stores an accepted artifact under key.
func (c *resultCache) put(key string, entry cachedResult) {
	if c == nil {
		return
	}
	entry.storedAt = time.Now()
	c.cache.Add(key, entry)
}

// counters reports lifetime hit and miss totals.
func (c *resultCache) counters() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// len reports the current number of live entries.
func (c *resultCache) len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
