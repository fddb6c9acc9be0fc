package factory

import (
	"testing"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveType_ExplicitTypeWins(t *testing.T) {
	got := ResolveType(dbadapter.ConnectionConfig{Type: dbadapter.PostgreSQL, Port: 3306})
	assert.Equal(t, dbadapter.PostgreSQL, got)
}

func TestResolveType_PortPrecedesHostSubstring(t *testing.T) {
	// Port 3306 wins even though the host name mentions postgres.
	got := ResolveType(dbadapter.ConnectionConfig{Host: "my-postgres.example", Port: 3306})
	assert.Equal(t, dbadapter.MySQL, got)
}

func TestResolveType_WellKnownPorts(t *testing.T) {
	assert.Equal(t, dbadapter.MySQL, ResolveType(dbadapter.ConnectionConfig{Port: 3306}))
	assert.Equal(t, dbadapter.PostgreSQL, ResolveType(dbadapter.ConnectionConfig{Port: 5432}))
}

func TestResolveType_HostSubstringFallback(t *testing.T) {
	got := ResolveType(dbadapter.ConnectionConfig{Host: "analytics-postgres.internal", Port: 15432})
	assert.Equal(t, dbadapter.PostgreSQL, got)
}

func TestResolveType_DefaultsToMySQL(t *testing.T) {
	got := ResolveType(dbadapter.ConnectionConfig{Host: "db.example.internal", Port: 9999})
	assert.Equal(t, dbadapter.MySQL, got)
}

func TestBuild_UnregisteredTypeFails(t *testing.T) {
	f := New()
	_, err := f.Build(dbadapter.ConnectionConfig{Host: "h", Port: 5432, Database: "d"})
	assert.ErrorContains(t, err, "Unsupported database type")
}

func TestBuild_UnavailableDriverFails(t *testing.T) {
	f := New()
	f.Register(dbadapter.MySQL, func(cfg dbadapter.ConnectionConfig, opts dbadapter.Options) (dbadapter.Adapter, error) {
		t.Fatal("constructor should not be invoked when unavailable")
		return nil, nil
	}, func() bool { return false })

	_, err := f.Build(dbadapter.ConnectionConfig{Host: "h", Port: 3306, Database: "d"})
	assert.ErrorContains(t, err, "not available")
}

func TestBuild_AppliesPoolDefaults(t *testing.T) {
	f := New()
	var capturedOpts dbadapter.Options
	f.Register(dbadapter.MySQL, func(cfg dbadapter.ConnectionConfig, opts dbadapter.Options) (dbadapter.Adapter, error) {
		capturedOpts = opts
		return nil, nil
	}, func() bool { return true })

	_, err := f.Build(dbadapter.ConnectionConfig{Host: "h", Port: 3306, Database: "d"})
	require.NoError(t, err)
	assert.Equal(t, 2, capturedOpts.Pool.Min)
	assert.Equal(t, 10, capturedOpts.Pool.Max)
	assert.Equal(t, int64(300_000), capturedOpts.Pool.IdleTimeoutMillis)
	assert.Equal(t, int64(60_000), capturedOpts.Pool.AcquireTimeoutMillis)
	assert.Equal(t, 3, capturedOpts.Retry.Retries)
	assert.True(t, capturedOpts.MetricsEnabled)
}

func TestBuild_HonorsConfiguredConnectionLimit(t *testing.T) {
	f := New()
	var capturedOpts dbadapter.Options
	f.Register(dbadapter.MySQL, func(cfg dbadapter.ConnectionConfig, opts dbadapter.Options) (dbadapter.Adapter, error) {
		capturedOpts = opts
		return nil, nil
	}, func() bool { return true })

	_, err := f.Build(dbadapter.ConnectionConfig{Host: "h", Port: 3306, Database: "d", ConnectionLimit: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, capturedOpts.Pool.Max)
}
