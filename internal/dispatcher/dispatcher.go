// Package dispatcher implements the cross-database fan-out: an ordered list
// of {pool, sql, alias} items executed concurrently on distinct adapters,
// assembled back into an order-preserving, per-item-labeled result with
// summary totals. Each item's success or failure is isolated: one failing
// pool never aborts the others, and results never touch the executor's
// result cache.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
	"github.com/lordbasex/dbbroker/internal/validator"
)

// ConnectionResolver is the subset of manager.Manager the dispatcher needs:
// looking a pool name up to its live adapter. Narrowed to an interface so
// dispatcher tests can substitute a stub registry instead of a real
// manager.Manager.
type ConnectionResolver interface {
	GetConnection(name string) (dbadapter.Adapter, error)
}

// Item is one entry of a cross-database query request. Alias defaults to
// Pool when empty.
type Item struct {
	Pool   string
	SQL    string
	Alias  string
	Params []any
}

// ItemResult is one item's outcome, in input order.
type ItemResult struct {
	Pool          string
	Alias         string
	SQLExcerpt    string
	ExecutionTime time.Duration
	RowCount      int
	Rows          []dbadapter.Row
	Fields        []dbadapter.Field
	Error         string
}

// Summary totals a cross-database call's outcome across every item,
// successful or not.
type Summary struct {
	TotalQueries       int
	TotalRows          int
	TotalExecutionTime time.Duration
	FailedQueries      int
}

// Result is crossQuery's return shape: a summary plus the per-item results.
// RequestID correlates this call's log lines across every pool it touched.
type Result struct {
	RequestID string
	Summary   Summary
	Results   []ItemResult
}

const excerptLen = 200

// Dispatcher runs cross-database fan-out queries.
type Dispatcher struct {
	resolver ConnectionResolver
	validate *validator.Validator
	timeout  time.Duration
	logger   *zap.Logger
}

// New builds a Dispatcher. timeout bounds each item's execution
// independently; a slow pool never delays the others' results.
func New(resolver ConnectionResolver, v *validator.Validator, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		resolver: resolver,
		validate: v,
		timeout:  timeout,
		logger:   logger.Named("dispatcher"),
	}
}

// Dispatch validates and runs every item concurrently against its named
// pool. Results preserve input order regardless of completion order. A
// failure (unknown pool, validation rejection, query error, timeout)
// surfaces as ItemResult.Error on that item alone; the call itself only
// fails if items is empty.
func (d *Dispatcher) Dispatch(ctx context.Context, items []Item) (*Result, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("cross-database query requires at least one item")
	}

	requestID := uuid.NewString()

	results := make([]ItemResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			results[i] = d.runOne(ctx, requestID, item)
		}(i, item)
	}
	wg.Wait()

	summary := Summary{TotalQueries: len(results)}
	for _, r := range results {
		summary.TotalRows += r.RowCount
		summary.TotalExecutionTime += r.ExecutionTime
		if r.Error != "" {
			summary.FailedQueries++
		}
	}
	return &Result{RequestID: requestID, Summary: summary, Results: results}, nil
}

func (d *Dispatcher) runOne(ctx context.Context, requestID string, item Item) ItemResult {
	alias := item.Alias
	if alias == "" {
		alias = item.Pool
	}
	out := ItemResult{Pool: item.Pool, Alias: alias, SQLExcerpt: truncate(item.SQL, excerptLen)}

	res := d.validate.Validate(item.SQL)
	if !res.IsValid {
		out.Error = fmt.Sprintf("query validation failed: %s", joinErrors(res.Errors))
		return out
	}

	adapter, err := d.resolver.GetConnection(item.Pool)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	itemCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	qr, err := adapter.Query(itemCtx, item.SQL, item.Params...)
	elapsed := time.Since(start)
	out.ExecutionTime = elapsed

	if err != nil {
		d.logger.Warn("cross-database item failed",
			zap.String("request_id", requestID), zap.String("pool", item.Pool), zap.Error(err))
		out.Error = err.Error()
		return out
	}

	out.RowCount = qr.RowCount
	out.Rows = qr.Rows
	out.Fields = qr.Fields
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}
