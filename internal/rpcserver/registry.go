// Package rpcserver implements the broker's transport binding: an AMQP
// request/reply surface exposing the tool and resource protocol. A
// device-queue consume loop (worker-pool dispatch, rate limiting,
// correlation-ID reply) feeds the registry below, which resolves a named
// pool through the manager and fans a call out to the executor,
// dispatcher, schema cache, or NL generator depending on the tool or
// resource invoked.
package rpcserver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lordbasex/dbbroker/internal/cache"
	"github.com/lordbasex/dbbroker/internal/dbadapter"
	"github.com/lordbasex/dbbroker/internal/dispatcher"
	"github.com/lordbasex/dbbroker/internal/executor"
	"github.com/lordbasex/dbbroker/internal/manager"
	"github.com/lordbasex/dbbroker/internal/nlquery"
	"github.com/lordbasex/dbbroker/internal/validator"
)

// Registry ties the connection manager to the per-pool executors, the
// shared schema cache, the cross-database dispatcher, and the
// natural-language generator. It is the single object every tool/resource
// handler in this package is a method on.
type Registry struct {
	mgr      *manager.Manager
	security executor.SecurityConfig
	schema   *cache.SchemaCache
	dispatch *dispatcher.Dispatcher
	nl       *nlquery.Generator
	logger   *zap.Logger

	mu        sync.Mutex
	executors map[string]*executor.Executor
}

// NewRegistry builds a Registry over an already-populated manager.Manager
// (adapters registered and connected). cacheCfg/security/dispatchTimeout
// control the schema cache and executor/dispatcher policy shared by every
// pool.
func NewRegistry(mgr *manager.Manager, cacheCfg cache.Config, security executor.SecurityConfig, dispatchTimeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		mgr:       mgr,
		security:  security,
		schema:    cache.New(cacheCfg, logger),
		dispatch:  dispatcher.New(mgr, validator.New(validator.DefaultConfig()), dispatchTimeout, logger),
		nl:        nlquery.New(),
		logger:    logger.Named("rpcserver"),
		executors: make(map[string]*executor.Executor),
	}
}

// Close flushes the schema cache's background sweep goroutine. Adapter
// disconnection is the caller's responsibility (manager.DisconnectAll).
func (r *Registry) Close() {
	r.schema.Destroy()
}

// WarmUp prefetches schema metadata for every registered pool into the
// schema cache. Per-pool failures are logged inside the cache layer and
// never fail the call.
func (r *Registry) WarmUp(ctx context.Context) {
	for _, name := range r.mgr.GetConnectionNames() {
		adapter, err := r.mgr.GetConnection(name)
		if err != nil {
			continue
		}
		r.schema.WarmUp(ctx, name, adapter.GetSchemaAnalyzer(), adapter.GetDataProfiler())
	}
}

// executorFor lazily builds (and memoizes) one Executor per named pool,
// so every call against the same pool shares one result cache and audit
// ring instead of rebuilding them per request.
func (r *Registry) executorFor(name string) (*executor.Executor, dbadapter.Adapter, error) {
	adapter, err := r.mgr.GetConnection(name)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ex, ok := r.executors[adapter.ID()]; ok {
		return ex, adapter, nil
	}
	ex := executor.New(adapter, validator.New(validator.DefaultConfig()), r.security, 5*time.Minute, nil, r.logger)
	r.executors[adapter.ID()] = ex
	return ex, adapter, nil
}

// schemaInfo returns pool's full SchemaInfo, serving a cached copy when
// present and populating the cache on miss.
func (r *Registry) schemaInfo(ctx context.Context, pool string) (*dbadapter.SchemaInfo, error) {
	key := "schema:" + pool
	if cached, ok := r.schema.Get(key); ok {
		info := cached.(dbadapter.SchemaInfo)
		return &info, nil
	}

	_, adapter, err := r.executorFor(pool)
	if err != nil {
		return nil, err
	}
	info, err := adapter.GetSchemaAnalyzer().GetSchema(ctx)
	if err != nil {
		return nil, err
	}
	r.schema.Set(key, *info)
	return info, nil
}

func (r *Registry) tableInfo(ctx context.Context, pool, table string) (*dbadapter.TableInfo, error) {
	key := fmt.Sprintf("table:%s:%s", pool, table)
	if cached, ok := r.schema.Get(key); ok {
		info := cached.(dbadapter.TableInfo)
		return &info, nil
	}

	_, adapter, err := r.executorFor(pool)
	if err != nil {
		return nil, err
	}
	info, err := adapter.GetSchemaAnalyzer().GetTable(ctx, table)
	if err != nil {
		return nil, err
	}
	r.schema.Set(key, *info)
	return info, nil
}

func (r *Registry) tableProfile(ctx context.Context, pool, table string, sampleSize int) (*dbadapter.TableProfile, error) {
	key := fmt.Sprintf("profile:%s:%s", pool, table)
	if cached, ok := r.schema.Get(key); ok {
		profile := cached.(dbadapter.TableProfile)
		return &profile, nil
	}

	_, adapter, err := r.executorFor(pool)
	if err != nil {
		return nil, err
	}
	profile, err := adapter.GetDataProfiler().ProfileTable(ctx, table, sampleSize)
	if err != nil {
		return nil, err
	}
	r.schema.Set(key, *profile)
	return profile, nil
}

func (r *Registry) relationships(ctx context.Context, pool string) (dbadapter.RelationshipMap, error) {
	key := "relationships:" + pool
	if cached, ok := r.schema.Get(key); ok {
		return cached.(dbadapter.RelationshipMap), nil
	}

	_, adapter, err := r.executorFor(pool)
	if err != nil {
		return nil, err
	}
	rel, err := adapter.GetSchemaAnalyzer().GetRelationships(ctx)
	if err != nil {
		return nil, err
	}
	r.schema.Set(key, rel)
	return rel, nil
}

func (r *Registry) databaseInfo(ctx context.Context, pool string) (*dbadapter.DatabaseInfo, error) {
	key := "dbinfo:" + pool
	if cached, ok := r.schema.Get(key); ok {
		info := cached.(dbadapter.DatabaseInfo)
		return &info, nil
	}

	_, adapter, err := r.executorFor(pool)
	if err != nil {
		return nil, err
	}
	info, err := adapter.GetSchemaAnalyzer().GetDatabaseInfo(ctx)
	if err != nil {
		return nil, err
	}
	r.schema.Set(key, *info)
	return info, nil
}

// clearSchemaCache implements the clear_schema_cache(pattern?) tool:
// pattern empty clears everything, otherwise it is treated as a regular
// expression over cache keys.
func (r *Registry) clearSchemaCache(pattern string) error {
	return r.schema.Invalidate(pattern)
}

func paramString(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func paramInt(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

func paramSlice(params map[string]any, key string) []any {
	v, ok := params[key]
	if !ok {
		return nil
	}
	s, _ := v.([]any)
	return s
}

func parseResourceURI(uri string) (pool, kind, entity string, ok bool) {
	const prefix = "database://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", "", false
	}
	rest := strings.TrimPrefix(uri, prefix)
	if rest == "connections" {
		return "", "connections", "", true
	}

	parts := strings.SplitN(rest, "/", 2)
	pool = parts[0]
	if len(parts) == 1 {
		return pool, "", "", false
	}
	tail := parts[1]
	switch {
	case tail == "schema":
		return pool, "schema", "", true
	case tail == "tables":
		return pool, "tables", "", true
	case strings.HasPrefix(tail, "table/"):
		rest := strings.TrimPrefix(tail, "table/")
		if strings.HasSuffix(rest, "/profile") {
			return pool, "table_profile", strings.TrimSuffix(rest, "/profile"), true
		}
		return pool, "table", rest, true
	}
	return pool, "", "", false
}
