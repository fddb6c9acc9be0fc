// Package mysqladapter implements the MySQL adapter on top of database/sql
// and github.com/go-sql-driver/mysql: pool lifecycle, prepared-statement
// query execution, explicit transactions, health checks, metrics, plus an
// INFORMATION_SCHEMA-backed schema analyzer and a sampling data profiler.
package mysqladapter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// Adapter is the MySQL implementation of dbadapter.Adapter.
type Adapter struct {
	id     string
	cfg    dbadapter.ConnectionConfig
	opts   dbadapter.Options
	db     *sql.DB
	logger *zap.Logger

	mu          sync.RWMutex
	connected   bool
	shutdown    bool
	connectedAt time.Time
	activeQueries int32

	metricsMu sync.Mutex
	metrics   dbadapter.AdapterMetrics

	events *dbadapter.EventBus
}

// New constructs an unconnected MySQL adapter. It is registered with the
// factory as the mysql Constructor. opts carries the factory's resolved
// pool defaults, applied when Connect builds the pool.
func New(cfg dbadapter.ConnectionConfig, opts dbadapter.Options) (dbadapter.Adapter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		id:     fmt.Sprintf("mysql-%s-%d-%s", cfg.Host, cfg.Port, cfg.Database),
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

// IsAvailable reports whether the mysql driver registered successfully.
func IsAvailable() bool {
	for _, name := range sql.Drivers() {
		if name == "mysql" {
			return true
		}
	}
	return false
}

func (a *Adapter) ID() string           { return a.id }
func (a *Adapter) Type() dbadapter.Type { return dbadapter.MySQL }
func (a *Adapter) IsAvailable() bool    { return IsAvailable() }

// Events returns the adapter's best-effort event stream.
func (a *Adapter) Events() <-chan dbadapter.Event { return a.events.Events() }

// Connect builds the pool, pings once on an acquired connection, and only
// then marks the adapter connected. It is idempotent: calling Connect on an
// already-connected adapter logs a warning and returns nil without touching
// the existing pool.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.RLock()
	alreadyConnected := a.connected
	a.mu.RUnlock()
	if alreadyConnected {
		a.log().Warn("connect called on an already-connected adapter; ignoring", zap.String("id", a.id))
		return nil
	}

	dsn, err := buildDSN(a.cfg)
	if err != nil {
		return err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("mysqladapter: open: %w", err)
	}

	maxConns := a.opts.Pool.Max
	if maxConns <= 0 {
		maxConns = 10
	}
	minConns := a.opts.Pool.Min
	if minConns <= 0 || minConns > maxConns {
		minConns = maxConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	if a.opts.Pool.IdleTimeoutMillis > 0 {
		db.SetConnMaxIdleTime(time.Duration(a.opts.Pool.IdleTimeoutMillis) * time.Millisecond)
	}
	db.SetConnMaxLifetime(3 * time.Minute)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return fmt.Errorf("mysqladapter: acquire: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return fmt.Errorf("mysqladapter: ping: %w", err)
	}
	conn.Close()

	a.mu.Lock()
	a.db = db
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
	db := a.db
	a.connected = false
	a.shutdown = true
	a.db = nil
	a.mu.Unlock()

	if db == nil {
		return nil
	}
	err := db.Close()
	a.events.Emit(a.id, dbadapter.EventDisconnected, nil)
	return err
}

// Query runs sql with params bound as a prepared statement and normalizes
// the result into the shared QueryResult shape.
func (a *Adapter) Query(ctx context.Context, query string, params ...any) (*dbadapter.QueryResult, error) {
	a.mu.RLock()
	db := a.db
	shuttingDown := a.shutdown
	a.mu.RUnlock()
	if shuttingDown {
		return nil, fmt.Errorf("adapter is shutting down")
	}
	if db == nil {
		return nil, fmt.Errorf("mysqladapter: not connected")
	}

	atomic.AddInt32(&a.activeQueries, 1)
	defer atomic.AddInt32(&a.activeQueries, -1)

	start := time.Now()
	rows, err := db.QueryContext(ctx, query, params...)
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

// Transaction runs stmts as explicit BEGIN/COMMIT/ROLLBACK on a single
// acquired connection.
func (a *Adapter) Transaction(ctx context.Context, stmts []dbadapter.StatementRequest) ([]*dbadapter.QueryResult, error) {
	a.mu.RLock()
	db := a.db
	shuttingDown := a.shutdown
	a.mu.RUnlock()
	if shuttingDown {
		return nil, fmt.Errorf("adapter is shutting down")
	}
	if db == nil {
		return nil, fmt.Errorf("mysqladapter: not connected")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: begin: %w", err)
	}

	results := make([]*dbadapter.QueryResult, 0, len(stmts))
	for _, stmt := range stmts {
		rows, err := tx.QueryContext(ctx, stmt.SQL, stmt.Params...)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("mysqladapter: statement failed: %w", err)
		}
		result, err := scanRows(rows)
		rows.Close()
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("mysqladapter: scan failed: %w", err)
		}
		results = append(results, result)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mysqladapter: commit: %w", err)
	}
	return results, nil
}

func (a *Adapter) GetConnectionStatus() dbadapter.ConnectionStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := dbadapter.ConnectionStatus{
		IsConnected:   a.connected,
		ActiveQueries: int(atomic.LoadInt32(&a.activeQueries)),
		DatabaseType:  dbadapter.MySQL,
	}
	if a.connected {
		status.LastConnectionTime = a.connectedAt
		status.UptimeMs = time.Since(a.connectedAt).Milliseconds()
	}
	if a.db != nil {
		status.ConnectionCount = a.db.Stats().OpenConnections
	}
	return status
}

// HealthCheck pings the pool and reports round-trip time.
func (a *Adapter) HealthCheck(ctx context.Context) dbadapter.HealthStatus {
	a.mu.RLock()
	db := a.db
	a.mu.RUnlock()
	if db == nil {
		return dbadapter.HealthStatus{IsHealthy: false, Error: "not connected"}
	}

	start := time.Now()
	err := db.PingContext(ctx)
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
		Type:        dbadapter.MySQL,
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

func buildDSN(cfg dbadapter.ConnectionConfig) (string, error) {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mysqlCfg.DBName = cfg.Database
	mysqlCfg.ParseTime = true
	mysqlCfg.InterpolateParams = false

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	mysqlCfg.Timeout = timeout

	if cfg.SSL != nil && cfg.SSL.Mode != dbadapter.SSLDisabled {
		tlsCfg, err := buildTLSConfig(cfg.SSL)
		if err != nil {
			return "", err
		}
		if err := mysql.RegisterTLSConfig(cfg.Name, tlsCfg); err != nil {
			return "", fmt.Errorf("mysqladapter: register tls config: %w", err)
		}
		mysqlCfg.TLSConfig = cfg.Name
	}

	return mysqlCfg.FormatDSN(), nil
}

// buildTLSConfig converts the pool's SSL settings into a tls.Config:
// certificates are verified only in REQUIRED mode, and CA/cert/key PEM
// material is attached when present.
func buildTLSConfig(ssl *dbadapter.SSLConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: ssl.Mode != dbadapter.SSLRequired}

	if ssl.CA != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(ssl.CA)) {
			return nil, fmt.Errorf("mysqladapter: ssl ca contains no valid PEM certificates")
		}
		tlsCfg.RootCAs = pool
	}
	if ssl.Cert != "" && ssl.Key != "" {
		pair, err := tls.X509KeyPair([]byte(ssl.Cert), []byte(ssl.Key))
		if err != nil {
			return nil, fmt.Errorf("mysqladapter: ssl client key pair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}
	return tlsCfg, nil
}
