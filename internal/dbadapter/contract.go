package dbadapter

import (
	"context"

	"go.uber.org/zap"
)

// StatementRequest is one item of a transaction.
type StatementRequest struct {
	SQL    string
	Params []any
}

// SchemaAnalyzer is the per-adapter introspection contract: table, view,
// procedure, and relationship metadata, read from each engine's catalog.
type SchemaAnalyzer interface {
	ListTables(ctx context.Context) ([]TableInfo, error)
	ListViews(ctx context.Context) ([]ViewInfo, error)
	ListProcedures(ctx context.Context) ([]ProcedureInfo, error)
	GetTable(ctx context.Context, name string) (*TableInfo, error)
	GetSchema(ctx context.Context) (*SchemaInfo, error)
	GetRelationships(ctx context.Context) (RelationshipMap, error)
	GetDatabaseInfo(ctx context.Context) (*DatabaseInfo, error)
}

// DataProfiler is the per-adapter data-quality contract: column statistics,
// distributions, and outliers sampled from live table data.
type DataProfiler interface {
	ProfileTable(ctx context.Context, tableName string, sampleSize int) (*TableProfile, error)
}

// Adapter is the uniform capability set every database adapter implements.
// The factory returns a handle behind this interface; nothing upstream
// type-switches on engine.
type Adapter interface {
	ID() string
	Type() Type

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Query(ctx context.Context, sql string, params ...any) (*QueryResult, error)
	Transaction(ctx context.Context, stmts []StatementRequest) ([]*QueryResult, error)

	GetConnectionStatus() ConnectionStatus
	HealthCheck(ctx context.Context) HealthStatus
	GetConnectionInfo() ConnectionInfo

	GetSchemaAnalyzer() SchemaAnalyzer
	GetDataProfiler() DataProfiler

	GetMetrics() AdapterMetrics
	ResetMetrics()

	// Events returns a channel of best-effort adapter events. Consumers are
	// optional; the adapter never blocks attempting to deliver on it.
	Events() <-chan Event

	// IsAvailable reports whether this adapter's driver can be used at all
	// (e.g. the underlying SQL driver registered successfully). Consulted
	// by the factory's availability probe.
	IsAvailable() bool
}

// Constructor builds a new, unconnected Adapter from a resolved config. Each
// engine package registers one of these with the factory.
type Constructor func(cfg ConnectionConfig, opts Options) (Adapter, error)

// PoolOptions mirrors the factory's pool defaults.
type PoolOptions struct {
	Min                   int
	Max                   int
	IdleTimeoutMillis     int64
	AcquireTimeoutMillis  int64
}

// RetryOptions is surfaced to adapters but intentionally left unengaged:
// SELECTs are driver-idempotent, so the simplest correct behavior is to
// surface the first error rather than retry.
type RetryOptions struct {
	Retries    int
	MinTimeout int64
	MaxTimeout int64
}

// Options bundles everything the factory hands a Constructor.
type Options struct {
	Pool          PoolOptions
	Retry         RetryOptions
	MetricsEnabled bool
	// Logger is the adapter's destination for lifecycle warnings (e.g. a
	// redundant Connect call). Adapters fall back to a no-op logger when
	// this is nil.
	Logger *zap.Logger
}
