package pgadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

func newMockedAdapter(t *testing.T) (*Adapter, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	a := &Adapter{
		id:     "postgresql-test",
		cfg:    dbadapter.ConnectionConfig{Name: "test", Database: "appdb"},
		pool:   mock,
		events: dbadapter.NewEventBus(),
	}
	a.connected = true
	return a, mock
}

func TestQuery_ReturnsNormalizedRows(t *testing.T) {
	a, mock := newMockedAdapter(t)

	rows := pgxmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "alice").
		AddRow(int64(2), "bob")
	mock.ExpectQuery("SELECT id, name FROM users").WillReturnRows(rows)

	result, err := a.Query(context.Background(), "SELECT id, name FROM users")
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, "alice", result.Rows[0]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_DriverErrorIsSurfaced(t *testing.T) {
	a, mock := newMockedAdapter(t)
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection refused"))

	_, err := a.Query(context.Background(), "SELECT 1")
	require.Error(t, err)

	m := a.GetMetrics()
	assert.Equal(t, int64(1), m.ErrorCount)
}

func TestQuery_SuccessUpdatesMetrics(t *testing.T) {
	a, mock := newMockedAdapter(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(pgxmock.NewRows([]string{"n"}).AddRow(int64(1)))

	_, err := a.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)

	m := a.GetMetrics()
	assert.Equal(t, int64(1), m.QueriesExecuted)
	assert.Equal(t, int64(0), m.ErrorCount)
}

func TestTransaction_RollsBackOnStatementFailure(t *testing.T) {
	a, mock := newMockedAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1").WillReturnRows(pgxmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT 2").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := a.Transaction(context.Background(), []dbadapter.StatementRequest{
		{SQL: "SELECT 1"},
		{SQL: "SELECT 2"},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_CommitsOnSuccess(t *testing.T) {
	a, mock := newMockedAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1").WillReturnRows(pgxmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectCommit()

	results, err := a.Transaction(context.Background(), []dbadapter.StatementRequest{{SQL: "SELECT 1"}})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck_ReportsUnhealthyOnPingFailure(t *testing.T) {
	a, mock := newMockedAdapter(t)
	mock.ExpectPing().WillReturnError(errors.New("no route to host"))

	status := a.HealthCheck(context.Background())
	assert.False(t, status.IsHealthy)
	assert.NotEmpty(t, status.Error)
}

func TestHealthCheck_ReportsHealthyOnSuccess(t *testing.T) {
	a, mock := newMockedAdapter(t)
	mock.ExpectPing()

	status := a.HealthCheck(context.Background())
	assert.True(t, status.IsHealthy)
}

func TestGetConnectionInfo_NeverLeaksPassword(t *testing.T) {
	a, _ := newMockedAdapter(t)
	a.cfg.Password = "supersecret"

	info := a.GetConnectionInfo()
	assert.NotContains(t, info.Name+info.Host+info.Database+info.Description, "supersecret")
}

func TestDisconnect_ClearsConnectedState(t *testing.T) {
	a, mock := newMockedAdapter(t)
	mock.ExpectClose()

	err := a.Disconnect(context.Background())
	require.NoError(t, err)
	assert.False(t, a.GetConnectionStatus().IsConnected)
}

func TestConnect_NoOpsWhenAlreadyConnected(t *testing.T) {
	a, mock := newMockedAdapter(t)
	originalPool := a.pool

	err := a.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, originalPool, a.pool, "a second Connect must not rebuild the pool")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_FailsFastWhenShuttingDown(t *testing.T) {
	a, mock := newMockedAdapter(t)
	mock.ExpectClose()
	require.NoError(t, a.Disconnect(context.Background()))

	_, err := a.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.EqualError(t, err, "adapter is shutting down")
}

func TestTransaction_FailsFastWhenShuttingDown(t *testing.T) {
	a, mock := newMockedAdapter(t)
	mock.ExpectClose()
	require.NoError(t, a.Disconnect(context.Background()))

	_, err := a.Transaction(context.Background(), []dbadapter.StatementRequest{{SQL: "SELECT 1"}})
	require.Error(t, err)
	assert.EqualError(t, err, "adapter is shutting down")
}

func TestQuery_NeverConnectedReturnsDistinctError(t *testing.T) {
	a := &Adapter{id: "postgresql-test", events: dbadapter.NewEventBus()}

	_, err := a.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.EqualError(t, err, "pgadapter: not connected")
}

func TestValueKindForOID_MapsKnownTypes(t *testing.T) {
	assert.Equal(t, dbadapter.KindInteger, valueKindForOID(oidInt8))
	assert.Equal(t, dbadapter.KindDecimal, valueKindForOID(oidNumeric))
	assert.Equal(t, dbadapter.KindText, valueKindForOID(oidText))
	assert.Equal(t, dbadapter.KindJSON, valueKindForOID(oidJSONB))
	assert.Equal(t, dbadapter.KindString, valueKindForOID(99999))
}

func TestValueKindForDBType_MapsKnownTypes(t *testing.T) {
	assert.Equal(t, dbadapter.KindInteger, valueKindForDBType("bigint"))
	assert.Equal(t, dbadapter.KindText, valueKindForDBType("text"))
	assert.Equal(t, dbadapter.KindJSON, valueKindForDBType("jsonb"))
	assert.Equal(t, dbadapter.KindString, valueKindForDBType("something_unknown"))
}

func TestBuildPoolConfig_AppliesResolvedPoolOptions(t *testing.T) {
	cfg := dbadapter.ConnectionConfig{Host: "db", Port: 5432, Database: "appdb", User: "u", Password: "p"}
	opts := dbadapter.Options{Pool: dbadapter.PoolOptions{Min: 2, Max: 8, IdleTimeoutMillis: 60000}}

	poolCfg, err := buildPoolConfig(cfg, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 8, poolCfg.MaxConns)
	assert.EqualValues(t, 2, poolCfg.MinConns)
}
