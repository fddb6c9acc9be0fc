package rpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordbasex/dbbroker/internal/cache"
	"github.com/lordbasex/dbbroker/internal/dbadapter"
	"github.com/lordbasex/dbbroker/internal/executor"
	"github.com/lordbasex/dbbroker/internal/manager"
)

// fakeAdapter implements dbadapter.Adapter with the handful of methods
// tool dispatch actually reaches; the rest panic if ever called.
type fakeAdapter struct {
	id     string
	rows   []dbadapter.Row
	schema *dbadapter.SchemaInfo
}

func (f *fakeAdapter) ID() string                           { return f.id }
func (f *fakeAdapter) Type() dbadapter.Type                  { return dbadapter.MySQL }
func (f *fakeAdapter) Connect(ctx context.Context) error     { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error  { return nil }

func (f *fakeAdapter) Query(ctx context.Context, sql string, params ...any) (*dbadapter.QueryResult, error) {
	return &dbadapter.QueryResult{Rows: f.rows, RowCount: len(f.rows)}, nil
}
func (f *fakeAdapter) Transaction(ctx context.Context, stmts []dbadapter.StatementRequest) ([]*dbadapter.QueryResult, error) {
	panic("not used")
}
func (f *fakeAdapter) GetConnectionStatus() dbadapter.ConnectionStatus {
	return dbadapter.ConnectionStatus{IsConnected: true}
}
func (f *fakeAdapter) HealthCheck(ctx context.Context) dbadapter.HealthStatus {
	return dbadapter.HealthStatus{IsHealthy: true}
}
func (f *fakeAdapter) GetConnectionInfo() dbadapter.ConnectionInfo { return dbadapter.ConnectionInfo{Name: f.id} }
func (f *fakeAdapter) GetSchemaAnalyzer() dbadapter.SchemaAnalyzer { return &fakeSchemaAnalyzer{schema: f.schema} }
func (f *fakeAdapter) GetDataProfiler() dbadapter.DataProfiler     { panic("not used") }
func (f *fakeAdapter) GetMetrics() dbadapter.AdapterMetrics        { return dbadapter.AdapterMetrics{} }
func (f *fakeAdapter) ResetMetrics()                               {}
func (f *fakeAdapter) Events() <-chan dbadapter.Event              { return nil }
func (f *fakeAdapter) IsAvailable() bool                            { return true }

type fakeSchemaAnalyzer struct {
	schema *dbadapter.SchemaInfo
}

func (a *fakeSchemaAnalyzer) ListTables(ctx context.Context) ([]dbadapter.TableInfo, error) {
	return a.schema.Tables, nil
}
func (a *fakeSchemaAnalyzer) ListViews(ctx context.Context) ([]dbadapter.ViewInfo, error) { return nil, nil }
func (a *fakeSchemaAnalyzer) ListProcedures(ctx context.Context) ([]dbadapter.ProcedureInfo, error) {
	return nil, nil
}
func (a *fakeSchemaAnalyzer) GetTable(ctx context.Context, name string) (*dbadapter.TableInfo, error) {
	for _, t := range a.schema.Tables {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, assert.AnError
}
func (a *fakeSchemaAnalyzer) GetSchema(ctx context.Context) (*dbadapter.SchemaInfo, error) {
	return a.schema, nil
}
func (a *fakeSchemaAnalyzer) GetRelationships(ctx context.Context) (dbadapter.RelationshipMap, error) {
	return dbadapter.RelationshipMap{}, nil
}
func (a *fakeSchemaAnalyzer) GetDatabaseInfo(ctx context.Context) (*dbadapter.DatabaseInfo, error) {
	return &dbadapter.DatabaseInfo{Name: "test"}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *manager.Manager) {
	t.Helper()
	mgr := manager.New(nil)
	adapter := &fakeAdapter{
		id:   "mysql-test",
		rows: []dbadapter.Row{{"id": 1}},
		schema: &dbadapter.SchemaInfo{
			Tables: []dbadapter.TableInfo{{Name: "customers", Columns: []dbadapter.ColumnInfo{{Name: "id", Type: dbadapter.KindInteger}}}},
		},
	}
	mgr.Add("primary", adapter, dbadapter.ConnectionConfig{Name: "primary"})
	require.NoError(t, mgr.SetDefaultConnection("primary"))

	reg := NewRegistry(mgr, cache.DefaultConfig(), executor.DefaultSecurityConfig(), 5*time.Second, nil)
	t.Cleanup(reg.Close)
	return reg, mgr
}

func TestDispatchTool_ListDatabasesReturnsRegistrySnapshot(t *testing.T) {
	reg, _ := newTestRegistry(t)
	resp := reg.handle(context.Background(), Request{ID: "1", Kind: kindTool, Name: toolListDatabases})
	require.Empty(t, resp.Error)
	result := resp.Result.(ListDatabasesResult)
	assert.Len(t, result.Connections, 1)
}

func TestDispatchTool_HealthCheckAggregateIncludesSummary(t *testing.T) {
	reg, _ := newTestRegistry(t)
	resp := reg.handle(context.Background(), Request{ID: "1", Kind: kindTool, Name: toolDatabaseHealthCheck})
	require.Empty(t, resp.Error)
	result := resp.Result.(AggregateHealthResult)
	require.Len(t, result.Results, 1)
	assert.Equal(t, 1, result.Summary.TotalDatabases)
	assert.Equal(t, 1, result.Summary.HealthyDatabases)
}

func TestDispatchTool_ExecuteQueryRunsAgainstDefaultPool(t *testing.T) {
	reg, _ := newTestRegistry(t)
	resp := reg.handle(context.Background(), Request{
		ID: "1", Kind: kindTool, Name: toolExecuteQuery,
		Params: map[string]any{"query": "SELECT * FROM customers"},
	})
	require.Empty(t, resp.Error)
	result := resp.Result.(*dbadapter.QueryResult)
	assert.Equal(t, 1, result.RowCount)
}

func TestDispatchTool_ExecuteQueryMissingParamIsRejected(t *testing.T) {
	reg, _ := newTestRegistry(t)
	resp := reg.handle(context.Background(), Request{ID: "1", Kind: kindTool, Name: toolExecuteQuery})
	assert.NotEmpty(t, resp.Error)
}

func TestDispatchTool_UnknownToolIsRejected(t *testing.T) {
	reg, _ := newTestRegistry(t)
	resp := reg.handle(context.Background(), Request{ID: "1", Kind: kindTool, Name: "not_a_tool"})
	assert.NotEmpty(t, resp.Error)
}

func TestDispatchResource_SchemaIsServedAndCached(t *testing.T) {
	reg, _ := newTestRegistry(t)
	resp := reg.handle(context.Background(), Request{ID: "1", Kind: kindResource, Name: "database://primary/schema"})
	require.Empty(t, resp.Error)
	info := resp.Result.(*dbadapter.SchemaInfo)
	require.Len(t, info.Tables, 1)

	stats := reg.schema.Stats()
	assert.Equal(t, int64(0), stats.Hits)

	resp2 := reg.handle(context.Background(), Request{ID: "2", Kind: kindResource, Name: "database://primary/schema"})
	require.Empty(t, resp2.Error)
	assert.Equal(t, int64(1), reg.schema.Stats().Hits)
}

func TestDispatchResource_UnknownURIIsRejected(t *testing.T) {
	reg, _ := newTestRegistry(t)
	resp := reg.handle(context.Background(), Request{ID: "1", Kind: kindResource, Name: "database://primary/bogus"})
	assert.NotEmpty(t, resp.Error)
}

func TestParseResourceURI_CoversAllShapes(t *testing.T) {
	cases := []struct {
		uri    string
		pool   string
		kind   string
		entity string
	}{
		{"database://connections", "", "connections", ""},
		{"database://primary/schema", "primary", "schema", ""},
		{"database://primary/tables", "primary", "tables", ""},
		{"database://primary/table/customers", "primary", "table", "customers"},
		{"database://primary/table/customers/profile", "primary", "table_profile", "customers"},
	}
	for _, c := range cases {
		pool, kind, entity, ok := parseResourceURI(c.uri)
		require.True(t, ok, c.uri)
		assert.Equal(t, c.pool, pool, c.uri)
		assert.Equal(t, c.kind, kind, c.uri)
		assert.Equal(t, c.entity, entity, c.uri)
	}
}

func TestParseCrossDatabaseItems_RequiresPoolAndSQL(t *testing.T) {
	_, err := parseCrossDatabaseItems(map[string]any{
		"queries": []any{map[string]any{"pool": "a"}},
	})
	require.Error(t, err)
}

func TestParseCrossDatabaseItems_BuildsItemsInOrder(t *testing.T) {
	items, err := parseCrossDatabaseItems(map[string]any{
		"queries": []any{
			map[string]any{"pool": "a", "sql": "SELECT 1", "alias": "A"},
			map[string]any{"pool": "b", "sql": "SELECT 2"},
		},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].Alias)
	assert.Equal(t, "b", items[1].Pool)
}

func TestRateLimiter_EnforcesBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RefillPerSecond: 0.001, Burst: 2, SweepInterval: time.Minute, IdleAfter: time.Minute})
	t.Cleanup(rl.Stop)

	assert.True(t, rl.Allow("client", 1))
	assert.True(t, rl.Allow("client", 1))
	assert.False(t, rl.Allow("client", 1))
}

func TestRateLimiter_ExpensiveRequestsDrainFaster(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RefillPerSecond: 0.001, Burst: 6, SweepInterval: time.Minute, IdleAfter: time.Minute})
	t.Cleanup(rl.Stop)

	// Two query executions fit in the budget; a third does not, while a
	// separate client's metadata reads are unaffected.
	assert.True(t, rl.Allow("heavy", 3))
	assert.True(t, rl.Allow("heavy", 3))
	assert.False(t, rl.Allow("heavy", 3))
	assert.True(t, rl.Allow("light", 1))
}

func TestRequestCost_ScalesWithRequestKind(t *testing.T) {
	assert.Equal(t, 1.0, requestCost(Request{Kind: kindResource, Name: "database://a/schema"}))
	assert.Equal(t, 1.0, requestCost(Request{Kind: kindTool, Name: toolListDatabases}))
	assert.Equal(t, 3.0, requestCost(Request{Kind: kindTool, Name: toolExecuteQuery}))
	assert.Equal(t, 6.0, requestCost(Request{
		Kind: kindTool, Name: toolCrossDatabaseQuery,
		Params: map[string]any{"queries": []any{map[string]any{}, map[string]any{}}},
	}))
	assert.Equal(t, 5.0, requestCost(Request{Kind: kindTool, Name: toolProfileTable}))
}
