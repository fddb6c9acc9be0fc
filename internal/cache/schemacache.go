// Package cache implements the schema cache: a TTL-bounded, byte-sized
// store for schema/profile/relationship/db-info lookups, keyed
// `kind:db[:entity]`. Eviction sorts entries by `(hits asc, timestamp
// asc)` rather than walking an LRU list; at this cache's write rate the
// sort is cheaper than maintaining list invariants.
package cache

import (
	"encoding/json"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config is `{defaultTTL, maxSize, maxEntries, cleanupInterval}`.
type Config struct {
	DefaultTTL      time.Duration
	MaxSizeBytes    int64
	MaxEntries      int
	CleanupInterval time.Duration
}

// DefaultConfig returns the broker's default schema-cache policy.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      10 * time.Minute,
		MaxSizeBytes:    16 * 1024 * 1024,
		MaxEntries:      5000,
		CleanupInterval: 5 * time.Minute,
	}
}

type entry struct {
	key       string
	value     any
	sizeBytes int64
	hits      int64
	createdAt time.Time
}

// Stats tracks schema-cache hit/miss/eviction counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	SizeBytes int64
}

// SchemaCache is the process-wide introspection cache shared by every
// adapter's schema analyzer and data profiler.
type SchemaCache struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	entries    map[string]*entry
	totalBytes int64

	hits, misses, evictions int64

	stopCh chan struct{}
	once   sync.Once
}

// New builds a SchemaCache and starts its periodic cleanup sweep.
func New(cfg Config, logger *zap.Logger) *SchemaCache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultConfig().MaxSizeBytes
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &SchemaCache{
		cfg:     cfg,
		logger:  logger.Named("schemacache"),
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get returns the cached value for key and whether it was a hit. Callers
// that mutate what they get back are responsible for cloning it first.
func (c *SchemaCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		c.misses++
		if ok {
			c.removeLocked(key)
		}
		return nil, false
	}
	e.hits++
	c.hits++
	return e.value, true
}

// Set stores value under key, evicting by (hits asc, timestamp asc) first if
// the cache is at its entry or byte-size limit.
func (c *SchemaCache) Set(key string, value any) {
	size := estimateSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.totalBytes -= old.sizeBytes
		delete(c.entries, key)
	}

	for len(c.entries) >= c.cfg.MaxEntries || c.totalBytes+size > c.cfg.MaxSizeBytes {
		if !c.evictOneLocked() {
			break
		}
	}

	c.entries[key] = &entry{
		key:       key,
		value:     value,
		sizeBytes: size,
		hits:      0,
		createdAt: time.Now(),
	}
	c.totalBytes += size
}

func (c *SchemaCache) evictOneLocked() bool {
	if len(c.entries) == 0 {
		return false
	}
	victims := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].hits != victims[j].hits {
			return victims[i].hits < victims[j].hits
		}
		return victims[i].createdAt.Before(victims[j].createdAt)
	})
	victim := victims[0]
	delete(c.entries, victim.key)
	c.totalBytes -= victim.sizeBytes
	c.evictions++
	return true
}

func (c *SchemaCache) expired(e *entry) bool {
	return time.Since(e.createdAt) > c.cfg.DefaultTTL
}

func (c *SchemaCache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		c.totalBytes -= e.sizeBytes
		delete(c.entries, key)
	}
}

// Invalidate clears everything (and resets counters) when pattern is empty,
// or removes keys matching pattern as a regular expression.
func (c *SchemaCache) Invalidate(pattern string) error {
	if pattern == "" {
		c.mu.Lock()
		c.entries = make(map[string]*entry)
		c.totalBytes = 0
		c.hits, c.misses, c.evictions = 0, 0, 0
		c.mu.Unlock()
		return nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(key)
		}
	}
	return nil
}

// InvalidateDatabase drops schema/table/profile/relationships/dbinfo entries
// for one pool.
func (c *SchemaCache) InvalidateDatabase(db string) error {
	return c.Invalidate(`^(schema|table|profile|relationships|dbinfo):` + regexp.QuoteMeta(db))
}

// InvalidateTable drops table/profile entries for one table of one pool.
func (c *SchemaCache) InvalidateTable(db, table string) error {
	return c.Invalidate(`^(table|profile):` + regexp.QuoteMeta(db) + `:` + regexp.QuoteMeta(table))
}

// Stats returns a snapshot of cache counters.
func (c *SchemaCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
		SizeBytes: c.totalBytes,
	}
}

func (c *SchemaCache) cleanupLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *SchemaCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if c.expired(e) {
			c.removeLocked(key)
		}
	}
}

// Destroy stops the cleanup timer and empties the cache.
func (c *SchemaCache) Destroy() {
	c.once.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.totalBytes = 0
	c.mu.Unlock()
}

// estimateSize estimates an entry's footprint as 2x the JSON-string length
// of the value, falling back to a small fixed cost if marshaling fails.
func estimateSize(value any) int64 {
	b, err := json.Marshal(value)
	if err != nil {
		return 64
	}
	return int64(2 * len(b))
}
