package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// resultCache is the executor's query-result cache: keyed by normalized SQL
// + JSON params, TTL-bounded, with opportunistic cleanup once the cache
// exceeds 100 entries. It is a flat TTL map rather than an LRU: this cache
// has no entry-count ceiling of its own (that concern belongs to the
// schema cache).
type resultCache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	ttl         time.Duration
	lastCleanup time.Time
}

type cacheEntry struct {
	result    dbadapter.QueryResult
	createdAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &resultCache{
		entries:     make(map[string]*cacheEntry),
		ttl:         ttl,
		lastCleanup: time.Now(),
	}
}

func (c *resultCache) get(sql string, params []any) (dbadapter.QueryResult, time.Duration, bool) {
	key := cacheKey(sql, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return dbadapter.QueryResult{}, 0, false
	}
	age := time.Since(e.createdAt)
	if age > c.ttl {
		delete(c.entries, key)
		return dbadapter.QueryResult{}, 0, false
	}
	return e.result.Clone(), age, true
}

func (c *resultCache) set(sql string, params []any, result dbadapter.QueryResult) {
	key := cacheKey(sql, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{result: result.Clone(), createdAt: time.Now()}

	if len(c.entries) > 100 && time.Since(c.lastCleanup) > time.Minute {
		c.cleanupLocked()
	}
}

func (c *resultCache) cleanupLocked() {
	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, key)
		}
	}
	c.lastCleanup = now
}

func cacheKey(sql string, params []any) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(sql)), " ")
	payload := struct {
		SQL    string `json:"sql"`
		Params []any  `json:"params"`
	}{SQL: normalized, Params: params}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
