package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

type fakeAdapter struct {
	id          string
	typ         dbadapter.Type
	connectErr  error
	healthy     bool
	connected   bool
	events      chan dbadapter.Event
	tags        []string
}

func newFakeAdapter(id string, typ dbadapter.Type) *fakeAdapter {
	return &fakeAdapter{id: id, typ: typ, healthy: true, events: make(chan dbadapter.Event, 1)}
}

func (f *fakeAdapter) ID() string       { return f.id }
func (f *fakeAdapter) Type() dbadapter.Type { return f.typ }

func (f *fakeAdapter) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeAdapter) Disconnect(ctx context.Context) error {
	f.connected = false
	return nil
}

func (f *fakeAdapter) Query(ctx context.Context, sql string, params ...any) (*dbadapter.QueryResult, error) {
	return &dbadapter.QueryResult{}, nil
}

func (f *fakeAdapter) Transaction(ctx context.Context, stmts []dbadapter.StatementRequest) ([]*dbadapter.QueryResult, error) {
	return nil, nil
}

func (f *fakeAdapter) GetConnectionStatus() dbadapter.ConnectionStatus {
	return dbadapter.ConnectionStatus{IsConnected: f.connected, DatabaseType: f.typ}
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) dbadapter.HealthStatus {
	if !f.healthy {
		return dbadapter.HealthStatus{IsHealthy: false, Error: "unreachable"}
	}
	return dbadapter.HealthStatus{IsHealthy: true, ResponseTime: time.Millisecond}
}

func (f *fakeAdapter) GetConnectionInfo() dbadapter.ConnectionInfo {
	return dbadapter.ConnectionInfo{Name: f.id, Type: f.typ, Tags: f.tags}
}

func (f *fakeAdapter) GetSchemaAnalyzer() dbadapter.SchemaAnalyzer { return nil }
func (f *fakeAdapter) GetDataProfiler() dbadapter.DataProfiler     { return nil }
func (f *fakeAdapter) GetMetrics() dbadapter.AdapterMetrics        { return dbadapter.AdapterMetrics{} }
func (f *fakeAdapter) ResetMetrics()                               {}
func (f *fakeAdapter) Events() <-chan dbadapter.Event               { return f.events }
func (f *fakeAdapter) IsAvailable() bool                            { return true }

func TestConnectAll_AllSucceed(t *testing.T) {
	m := New(nil)
	a := newFakeAdapter("main", dbadapter.MySQL)
	m.Add("main", a, dbadapter.ConnectionConfig{Name: "main"})

	require.NoError(t, m.ConnectAll(context.Background()))
	assert.True(t, a.connected)
}

func TestConnectAll_OneFailureNamesThePool(t *testing.T) {
	m := New(nil)
	m.Add("good", newFakeAdapter("good", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "good"})
	bad := newFakeAdapter("bad", dbadapter.PostgreSQL)
	bad.connectErr = errors.New("refused")
	m.Add("bad", bad, dbadapter.ConnectionConfig{Name: "bad"})

	err := m.ConnectAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestGetConnection_FallsBackToDefault(t *testing.T) {
	m := New(nil)
	m.Add("main", newFakeAdapter("main", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "main"})
	require.NoError(t, m.SetDefaultConnection("main"))

	a, err := m.GetConnection("")
	require.NoError(t, err)
	assert.Equal(t, "main", a.ID())
}

func TestGetConnection_NoNameNoDefaultFails(t *testing.T) {
	m := New(nil)
	_, err := m.GetConnection("")
	assert.ErrorContains(t, err, "No connection name specified")
}

func TestGetConnection_UnknownNameListsAvailable(t *testing.T) {
	m := New(nil)
	m.Add("main", newFakeAdapter("main", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "main"})
	_, err := m.GetConnection("missing")
	assert.ErrorContains(t, err, "missing")
	assert.ErrorContains(t, err, "main")
}

func TestSetDefaultConnection_RejectsUnknownName(t *testing.T) {
	m := New(nil)
	err := m.SetDefaultConnection("ghost")
	assert.Error(t, err)
}

func TestHealthCheckAll_IsolatesOneBadPool(t *testing.T) {
	m := New(nil)
	m.Add("good", newFakeAdapter("good", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "good"})
	bad := newFakeAdapter("bad", dbadapter.PostgreSQL)
	bad.healthy = false
	m.Add("bad", bad, dbadapter.ConnectionConfig{Name: "bad"})

	results := m.HealthCheckAll(context.Background())
	require.Len(t, results, 2)

	byName := map[string]HealthResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.True(t, byName["good"].Status.IsHealthy)
	assert.False(t, byName["bad"].Status.IsHealthy)
}

func TestGetConnectionsByTag(t *testing.T) {
	m := New(nil)
	m.Add("main", newFakeAdapter("main", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "main", Tags: []string{"prod", "primary"}})
	m.Add("replica", newFakeAdapter("replica", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "replica", Tags: []string{"prod"}})

	assert.ElementsMatch(t, []string{"main", "replica"}, m.GetConnectionsByTag("prod"))
	assert.Equal(t, []string{"main"}, m.GetConnectionsByTag("primary"))
}

func TestGetConnectionsByType_OnlyCountsConnected(t *testing.T) {
	m := New(nil)
	m.Add("main", newFakeAdapter("main", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "main"})
	require.NoError(t, m.ConnectAll(context.Background()))

	assert.Equal(t, []string{"main"}, m.GetConnectionsByType(dbadapter.MySQL))
	assert.Empty(t, m.GetConnectionsByType(dbadapter.PostgreSQL))
}

func TestGetStatistics_AggregatesByTypeAndTag(t *testing.T) {
	m := New(nil)
	m.Add("main", newFakeAdapter("main", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "main", Tags: []string{"prod"}})
	m.Add("olap", newFakeAdapter("olap", dbadapter.PostgreSQL), dbadapter.ConnectionConfig{Name: "olap", Tags: []string{"analytics"}})

	stats := m.GetStatistics()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.HealthyConnections)
	assert.Equal(t, 1, stats.ByType[dbadapter.MySQL])
	assert.Equal(t, 1, stats.ByType[dbadapter.PostgreSQL])
	assert.Equal(t, 1, stats.ByTag["prod"])
}

func TestDisconnectAll_ClearsRegistry(t *testing.T) {
	m := New(nil)
	m.Add("main", newFakeAdapter("main", dbadapter.MySQL), dbadapter.ConnectionConfig{Name: "main"})
	require.NoError(t, m.ConnectAll(context.Background()))

	m.DisconnectAll(context.Background())
	assert.Empty(t, m.GetConnectionNames())
}
