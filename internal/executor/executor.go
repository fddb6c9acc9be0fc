// Package executor implements the query executor pipeline: validate,
// cache lookup, dry-run short-circuit, timeout-bounded execution, row-cap
// truncation, cache store, audit append, and suspicious-error telemetry.
package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
	"github.com/lordbasex/dbbroker/internal/validator"
)

// SecurityConfig supplies the defaults for Options.Timeout/MaxRows when the
// caller doesn't specify them.
type SecurityConfig struct {
	MaxExecutionTime time.Duration
	MaxResultRows    int
}

// DefaultSecurityConfig returns the broker's default execution limits.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxExecutionTime: 30 * time.Second,
		MaxResultRows:    1000,
	}
}

// Options controls one ExecuteQuery call. DisableAudit's zero value is
// false, so audit logging defaults to on without needing a tri-state bool.
type Options struct {
	Timeout      time.Duration
	MaxRows      int
	DisableAudit bool
	DryRun       bool
}

// Executor runs validated, cached, timeout-bounded queries against one
// adapter.
type Executor struct {
	adapter  dbadapter.Adapter
	validate *validator.Validator
	security SecurityConfig
	cache    *resultCache
	audit    *auditRing
	logger   *zap.Logger
	events   *dbadapter.EventBus
}

// New builds an Executor for one adapter.
func New(adapter dbadapter.Adapter, v *validator.Validator, security SecurityConfig, cacheTTL time.Duration, events *dbadapter.EventBus, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		adapter:  adapter,
		validate: v,
		security: security,
		cache:    newResultCache(cacheTTL),
		audit:    newAuditRing(),
		logger:   logger.Named("executor"),
		events:   events,
	}
}

var nonDeterministicFuncRe = regexp.MustCompile(`(?i)\b(now|rand|uuid|connection_id)\s*\(`)

// ExecuteQuery validates, checks the cache, optionally short-circuits for a
// dry run, runs the query under a timeout, truncates and caches the result,
// and appends an audit entry.
func (e *Executor) ExecuteQuery(ctx context.Context, sql string, params []any, opts Options) (*dbadapter.QueryResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = e.security.MaxExecutionTime
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = e.security.MaxResultRows
	}
	start := time.Now()

	// 1. Validate.
	res := e.validate.Validate(sql)
	if !res.IsValid {
		err := fmt.Errorf("Query validation failed: %s", strings.Join(res.Errors, "; "))
		return nil, err
	}

	// 2. Non-fatal warnings.
	for _, w := range res.Warnings {
		e.logger.Warn("query admitted with warning", zap.String("warning", w))
	}

	// 3. Cache lookup.
	if !opts.DryRun {
		if cached, age, ok := e.cache.get(sql, params); ok {
			cached.Cached = true
			cached.CacheAge = age
			analysis := res.Analysis
			cached.Analysis = &analysis
			return &cached, nil
		}
	}

	// 4. Dry-run branch.
	if opts.DryRun {
		analysis := res.Analysis
		return &dbadapter.QueryResult{
			Rows:          []dbadapter.Row{},
			Fields:        []dbadapter.Field{},
			RowCount:      0,
			ExecutionTime: time.Since(start),
			Analysis:      &analysis,
			DryRun:        true,
		}, nil
	}

	// 5. Timed execution, racing the adapter call against opts.Timeout.
	result, err := e.executeWithTimeout(ctx, sql, params, opts)
	elapsed := time.Since(start)

	if err != nil {
		e.audit.append(AuditEntry{
			Timestamp:     start,
			Query:         sql,
			ExecutionTime: elapsed,
			Success:       false,
			ErrorMessage:  err.Error(),
		})
		// 8. Security telemetry.
		if isSuspiciousError(err.Error()) && e.events != nil {
			e.events.Emit(e.adapter.ID(), dbadapter.EventQueryFailed, map[string]any{
				"kind":  "suspicious_query_error",
				"sql":   truncate(sql, 200),
				"error": err.Error(),
			})
		}
		return nil, err
	}

	result.ExecutionTime = elapsed
	analysis := res.Analysis
	result.Analysis = &analysis

	// 6. Cache store, when cacheable.
	if e.isCacheable(sql, *result) {
		e.cache.set(sql, params, *result)
	}

	// 7. Audit, unless suppressed.
	if !opts.DisableAudit {
		e.audit.append(AuditEntry{
			Timestamp:     start,
			Query:         sql,
			ExecutionTime: elapsed,
			RowCount:      result.RowCount,
			Success:       true,
		})
	}

	return result, nil
}

func (e *Executor) executeWithTimeout(ctx context.Context, sql string, params []any, opts Options) (*dbadapter.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type outcome struct {
		result *dbadapter.QueryResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		r, err := e.adapter.Query(ctx, sql, params...)
		done <- outcome{result: r, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		return applyRowLimit(o.result, opts.MaxRows), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("Query timeout after %dms", opts.Timeout.Milliseconds())
	}
}

func applyRowLimit(result *dbadapter.QueryResult, maxRows int) *dbadapter.QueryResult {
	if result == nil {
		return &dbadapter.QueryResult{}
	}
	total := len(result.Rows)
	if maxRows > 0 && total > maxRows {
		result.TotalRows = total
		result.Rows = result.Rows[:maxRows]
		result.Truncated = true
	} else {
		result.TotalRows = total
	}
	result.RowCount = len(result.Rows)
	return result
}

// isCacheable reports whether a result is safe to cache: the query must be
// a SELECT with no non-deterministic calls, the result must have at most
// 1000 rows, and there must be no metadata payload (a non-row-set result,
// e.g. SHOW/DESCRIBE).
func (e *Executor) isCacheable(sql string, result dbadapter.QueryResult) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if !strings.HasPrefix(upper, "SELECT") {
		return false
	}
	if nonDeterministicFuncRe.MatchString(sql) {
		return false
	}
	if result.RowCount > 1000 {
		return false
	}
	if len(result.Metadata) > 0 {
		return false
	}
	return true
}

// ExplainQuery is executeQuery("EXPLAIN "+sql, params, {enableAudit:false}).
func (e *Executor) ExplainQuery(ctx context.Context, sql string, params []any) (*dbadapter.QueryResult, error) {
	return e.ExecuteQuery(ctx, "EXPLAIN "+sql, params, Options{DisableAudit: true})
}

// AnalyzeResult is analyzeQuery(sql)'s return shape: validation plus static
// analysis, without touching the database.
type AnalyzeResult struct {
	Validation validator.Result
	Analysis   dbadapter.QueryAnalysis
}

// AnalyzeQuery returns {validation, analysis} without executing sql.
func (e *Executor) AnalyzeQuery(sql string) AnalyzeResult {
	res := e.validate.Validate(sql)
	return AnalyzeResult{Validation: res, Analysis: res.Analysis}
}

// Audit returns a snapshot of the bounded audit ring.
func (e *Executor) Audit() []AuditEntry {
	return e.audit.snapshot()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
