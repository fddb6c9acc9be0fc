// Package pgadapter implements the PostgreSQL adapter on top of
// github.com/jackc/pgx/v5 and its pgxpool connection pool, mirroring
// mysqladapter's shape over a different driver: pool lifecycle,
// parameterized query execution, explicit transactions, health checks,
// metrics, plus an information_schema/pg_catalog-backed schema analyzer
// and a sampling data profiler.
package pgadapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// pgxConn is the subset of *pgxpool.Pool this adapter depends on. Narrowing
// it to an interface lets tests substitute a mock pool without the
// production path ever importing a mocking library.
type pgxConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
	Close()
}

// Adapter is the PostgreSQL implementation of dbadapter.Adapter.
type Adapter struct {
	id     string
	cfg    dbadapter.ConnectionConfig
	opts   dbadapter.Options
	pool   pgxConn
	logger *zap.Logger

	mu            sync.RWMutex
	connected     bool
	shutdown      bool
	connectedAt   time.Time
	activeQueries int32

	metricsMu sync.Mutex
	metrics   dbadapter.AdapterMetrics

	events *dbadapter.EventBus
}

// New constructs an unconnected PostgreSQL adapter. It is registered with
// the factory as the postgresql Constructor.
func New(cfg dbadapter.ConnectionConfig, opts dbadapter.Options) (dbadapter.Adapter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		id:     fmt.Sprintf("postgresql-%s-%d-%s", cfg.Host, cfg.Port, cfg.Database),
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		events: dbadapter.NewEventBus(),
	}, nil
}

// log returns a.logger, falling back to a no-op logger for adapters built
// directly in tests without going through New.
func (a *Adapter) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// IsAvailable always reports true: pgx is a pure-Go driver registered at
// import time, with no cgo or system-library dependency to probe.
func IsAvailable() bool { return true }

func (a *Adapter) ID() string           { return a.id }
func (a *Adapter) Type() dbadapter.Type { return dbadapter.PostgreSQL }
func (a *Adapter) IsAvailable() bool    { return IsAvailable() }

// Events returns the adapter's best-effort event stream.
func (a *Adapter) Events() <-chan dbadapter.Event { return a.events.Events() }

// Connect builds the pgxpool, pings once, and only then marks the adapter
// connected. It is idempotent: calling Connect on an already-connected
// adapter logs a warning and returns nil without touching the existing pool.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.RLock()
	alreadyConnected := a.connected
	a.mu.RUnlock()
	if alreadyConnected {
		a.log().Warn("connect called on an already-connected adapter; ignoring", zap.String("id", a.id))
		return nil
	}

	poolCfg, err := buildPoolConfig(a.cfg, a.opts)
	if err != nil {
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("pgadapter: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pgadapter: ping: %w", err)
	}

	a.mu.Lock()
	a.pool = pool
	a.connected = true
	a.shutdown = false
	a.connectedAt = time.Now()
	a.mu.Unlock()

	a.events.Emit(a.id, dbadapter.EventConnected, nil)
	return nil
}

// Disconnect closes the pool and sets the shutdown flag, so any Query or
// Transaction call arriving afterward fails fast with "adapter is shutting
// down" instead of the ambiguous "not connected" a never-connected adapter
// would return.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	pool := a.pool
	a.connected = false
	a.shutdown = true
	a.pool = nil
	a.mu.Unlock()

	if pool == nil {
		return nil
	}
	pool.Close()
	a.events.Emit(a.id, dbadapter.EventDisconnected, nil)
	return nil
}

// Query runs sql with params bound positionally ($1, $2, ...) and
// normalizes the result into the shared QueryResult shape.
func (a *Adapter) Query(ctx context.Context, query string, params ...any) (*dbadapter.QueryResult, error) {
	a.mu.RLock()
	pool := a.pool
	shuttingDown := a.shutdown
	a.mu.RUnlock()
	if shuttingDown {
		return nil, fmt.Errorf("adapter is shutting down")
	}
	if pool == nil {
		return nil, fmt.Errorf("pgadapter: not connected")
	}

	atomic.AddInt32(&a.activeQueries, 1)
	defer atomic.AddInt32(&a.activeQueries, -1)

	start := time.Now()
	rows, err := pool.Query(ctx, query, params...)
	if err != nil {
		a.recordFailure()
		a.events.Emit(a.id, dbadapter.EventQueryFailed, map[string]any{"error": err.Error()})
		return nil, err
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		a.recordFailure()
		a.events.Emit(a.id, dbadapter.EventQueryFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	a.recordSuccess(time.Since(start))
	a.events.Emit(a.id, dbadapter.EventQueryExecuted, map[string]any{"rowCount": result.RowCount})
	return result, nil
}

// Transaction runs stmts as an explicit pgx.Tx, committing only if every
// statement succeeds.
func (a *Adapter) Transaction(ctx context.Context, stmts []dbadapter.StatementRequest) ([]*dbadapter.QueryResult, error) {
	a.mu.RLock()
	pool := a.pool
	shuttingDown := a.shutdown
	a.mu.RUnlock()
	if shuttingDown {
		return nil, fmt.Errorf("adapter is shutting down")
	}
	if pool == nil {
		return nil, fmt.Errorf("pgadapter: not connected")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgadapter: begin: %w", err)
	}

	results := make([]*dbadapter.QueryResult, 0, len(stmts))
	for _, stmt := range stmts {
		rows, err := tx.Query(ctx, stmt.SQL, stmt.Params...)
		if err != nil {
			tx.Rollback(ctx)
			return nil, fmt.Errorf("pgadapter: statement failed: %w", err)
		}
		result, err := scanRows(rows)
		rows.Close()
		if err != nil {
			tx.Rollback(ctx)
			return nil, fmt.Errorf("pgadapter: scan failed: %w", err)
		}
		results = append(results, result)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pgadapter: commit: %w", err)
	}
	return results, nil
}

func (a *Adapter) GetConnectionStatus() dbadapter.ConnectionStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := dbadapter.ConnectionStatus{
		IsConnected:   a.connected,
		ActiveQueries: int(atomic.LoadInt32(&a.activeQueries)),
		DatabaseType:  dbadapter.PostgreSQL,
	}
	if a.connected {
		status.LastConnectionTime = a.connectedAt
		status.UptimeMs = time.Since(a.connectedAt).Milliseconds()
	}
	if a.pool != nil {
		status.ConnectionCount = int(a.pool.Stat().TotalConns())
	}
	return status
}

// HealthCheck pings the pool and reports round-trip time.
func (a *Adapter) HealthCheck(ctx context.Context) dbadapter.HealthStatus {
	a.mu.RLock()
	pool := a.pool
	a.mu.RUnlock()
	if pool == nil {
		return dbadapter.HealthStatus{IsHealthy: false, Error: "not connected"}
	}

	start := time.Now()
	err := pool.Ping(ctx)
	elapsed := time.Since(start)
	if err != nil {
		a.events.Emit(a.id, dbadapter.EventHealthCheckFailed, map[string]any{"error": err.Error()})
		return dbadapter.HealthStatus{IsHealthy: false, ResponseTime: elapsed, Error: err.Error()}
	}
	a.events.Emit(a.id, dbadapter.EventHealthCheckPassed, nil)
	return dbadapter.HealthStatus{IsHealthy: true, ResponseTime: elapsed}
}

// GetConnectionInfo returns a secret-free view of this pool's identity.
func (a *Adapter) GetConnectionInfo() dbadapter.ConnectionInfo {
	return dbadapter.ConnectionInfo{
		Name:        a.cfg.Name,
		Type:        dbadapter.PostgreSQL,
		Host:        a.cfg.Host,
		Port:        a.cfg.Port,
		Database:    a.cfg.Database,
		Description: a.cfg.Description,
		Tags:        a.cfg.Tags,
		ID:          a.id,
	}
}

func (a *Adapter) GetSchemaAnalyzer() dbadapter.SchemaAnalyzer {
	return &schemaAnalyzer{adapter: a}
}

func (a *Adapter) GetDataProfiler() dbadapter.DataProfiler {
	return &dataProfiler{adapter: a}
}

func (a *Adapter) GetMetrics() dbadapter.AdapterMetrics {
	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	m := a.metrics
	m.Recompute()
	return m
}

func (a *Adapter) ResetMetrics() {
	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	a.metrics = dbadapter.AdapterMetrics{LastMetricsReset: time.Now()}
}

func (a *Adapter) recordSuccess(d time.Duration) {
	a.metricsMu.Lock()
	a.metrics.QueriesExecuted++
	a.metrics.TotalExecutionTimeMs += d.Milliseconds()
	n := a.metrics.QueriesExecuted
	a.metricsMu.Unlock()
	if n%100 == 0 {
		a.events.Emit(a.id, dbadapter.EventMetricsCollected, nil)
	}
}

func (a *Adapter) recordFailure() {
	a.metricsMu.Lock()
	a.metrics.QueriesExecuted++
	a.metrics.ErrorCount++
	a.metricsMu.Unlock()
}

func buildPoolConfig(cfg dbadapter.ConnectionConfig, opts dbadapter.Options) (*pgxpool.Config, error) {
	sslmode := "prefer"
	if cfg.SSL != nil {
		switch cfg.SSL.Mode {
		case dbadapter.SSLRequired:
			sslmode = "verify-full"
		case dbadapter.SSLPreferred:
			sslmode = "prefer"
		case dbadapter.SSLDisabled:
			sslmode = "disable"
		}
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslmode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgadapter: parse config: %w", err)
	}

	maxConns := int32(opts.Pool.Max)
	if maxConns <= 0 {
		maxConns = 10
	}
	minConns := int32(opts.Pool.Min)
	if minConns <= 0 || minConns > maxConns {
		minConns = maxConns
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	if opts.Pool.IdleTimeoutMillis > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(opts.Pool.IdleTimeoutMillis) * time.Millisecond
	}
	poolCfg.MaxConnLifetime = 3 * time.Minute

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	poolCfg.ConnConfig.ConnectTimeout = timeout

	return poolCfg, nil
}

// scanRows normalizes a pgx.Rows result set into the shared QueryResult
// shape. pgx decodes wire values into native Go types itself, so there is
// no sql.RawBytes step like database/sql requires.
func scanRows(rows pgx.Rows) (*dbadapter.QueryResult, error) {
	descs := rows.FieldDescriptions()
	fields := make([]dbadapter.Field, len(descs))
	for i, d := range descs {
		fields[i] = dbadapter.Field{
			Name: string(d.Name),
			Type: valueKindForOID(d.DataTypeOID),
		}
	}

	var resultRows []dbadapter.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("pgadapter: row values: %w", err)
		}
		row := make(dbadapter.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgadapter: rows: %w", err)
	}

	return &dbadapter.QueryResult{
		Rows:     resultRows,
		Fields:   fields,
		RowCount: len(resultRows),
	}, nil
}
