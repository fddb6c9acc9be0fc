package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCache_GetMissThenSetThenHit(t *testing.T) {
	c := New(DefaultConfig(), nil)
	defer c.Destroy()

	_, ok := c.Get("schema:main")
	assert.False(t, ok)

	c.Set("schema:main", map[string]any{"tables": []string{"orders"}})
	v, ok := c.Get("schema:main")
	require.True(t, ok)
	assert.NotNil(t, v)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestSchemaCache_ExpiresByTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultTTL = time.Millisecond
	c := New(cfg, nil)
	defer c.Destroy()

	c.Set("table:main:orders", "x")
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("table:main:orders")
	assert.False(t, ok)
}

func TestSchemaCache_EvictsLowestHitsFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 2
	c := New(cfg, nil)
	defer c.Destroy()

	c.Set("a", "1")
	c.Set("b", "2")
	// touch "a" so it accrues a hit and survives eviction.
	_, _ = c.Get("a")

	c.Set("c", "3")

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")

	assert.True(t, aOK)
	assert.False(t, bOK)
	assert.True(t, cOK)
}

func TestSchemaCache_InvalidateDatabaseScopesToPool(t *testing.T) {
	c := New(DefaultConfig(), nil)
	defer c.Destroy()

	c.Set("schema:main", "x")
	c.Set("table:main:orders", "y")
	c.Set("schema:other", "z")

	require.NoError(t, c.InvalidateDatabase("main"))

	_, ok := c.Get("schema:main")
	assert.False(t, ok)
	_, ok = c.Get("table:main:orders")
	assert.False(t, ok)
	_, ok = c.Get("schema:other")
	assert.True(t, ok)
}

func TestSchemaCache_InvalidateTableScopesToOneTable(t *testing.T) {
	c := New(DefaultConfig(), nil)
	defer c.Destroy()

	c.Set("table:main:orders", "y")
	c.Set("table:main:customers", "z")

	require.NoError(t, c.InvalidateTable("main", "orders"))

	_, ok := c.Get("table:main:orders")
	assert.False(t, ok)
	_, ok = c.Get("table:main:customers")
	assert.True(t, ok)
}

func TestSchemaCache_InvalidateEmptyPatternClearsEverythingAndResetsCounters(t *testing.T) {
	c := New(DefaultConfig(), nil)
	defer c.Destroy()

	c.Set("schema:main", "x")
	_, _ = c.Get("schema:main")
	_, _ = c.Get("missing")

	require.NoError(t, c.Invalidate(""))

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}
