package rpcserver

import (
	"context"
	"fmt"
	"time"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
	"github.com/lordbasex/dbbroker/internal/dispatcher"
	"github.com/lordbasex/dbbroker/internal/executor"
	"github.com/lordbasex/dbbroker/internal/manager"
)

// ListDatabasesResult is list_databases()'s return shape: a summary plus
// per-pool connection info and the registry's aggregate statistics.
type ListDatabasesResult struct {
	Connections []dbadapter.ConnectionInfo
	Statistics  manager.Statistics
}

func (r *Registry) listDatabases() ListDatabasesResult {
	return ListDatabasesResult{
		Connections: r.mgr.ConnectionInfos(),
		Statistics:  r.mgr.GetStatistics(),
	}
}

// HealthResult mirrors manager.HealthResult for the tool's JSON shape.
type HealthResult struct {
	Name   string
	Status dbadapter.HealthStatus
}

// HealthSummary aggregates the fan-out: the average response time counts
// every pool's sample, healthy or not.
type HealthSummary struct {
	TotalDatabases      int
	HealthyDatabases    int
	AverageResponseTime time.Duration
}

// AggregateHealthResult is database_health_check's no-pool return shape.
type AggregateHealthResult struct {
	Results []HealthResult
	Summary HealthSummary
}

func (r *Registry) databaseHealthCheck(ctx context.Context, pool string) (any, error) {
	if pool != "" {
		_, adapter, err := r.executorFor(pool)
		if err != nil {
			return nil, err
		}
		return HealthResult{Name: pool, Status: adapter.HealthCheck(ctx)}, nil
	}

	results := r.mgr.HealthCheckAll(ctx)
	out := AggregateHealthResult{
		Results: make([]HealthResult, len(results)),
		Summary: HealthSummary{TotalDatabases: len(results)},
	}
	var total time.Duration
	for i, res := range results {
		out.Results[i] = HealthResult{Name: res.Name, Status: res.Status}
		total += res.Status.ResponseTime
		if res.Status.IsHealthy {
			out.Summary.HealthyDatabases++
		}
	}
	if len(results) > 0 {
		out.Summary.AverageResponseTime = total / time.Duration(len(results))
	}
	return out, nil
}

func (r *Registry) executeQuery(ctx context.Context, pool, sql string, params []any) (*dbadapter.QueryResult, error) {
	ex, _, err := r.executorFor(pool)
	if err != nil {
		return nil, err
	}
	return ex.ExecuteQuery(ctx, sql, params, executor.Options{})
}

// NaturalLanguageQueryResult is natural_language_query's return shape:
// the generated SQL and confidence, plus the execution outcome of running
// it.
type NaturalLanguageQueryResult struct {
	GeneratedSQL  string
	Confidence    float64
	Explanation   string
	ExecutionTime time.Duration
	RowCount      int
	Rows          []dbadapter.Row
	Fields        []dbadapter.Field
}

func (r *Registry) naturalLanguageQuery(ctx context.Context, pool, question string) (*NaturalLanguageQueryResult, error) {
	schema, err := r.schemaInfo(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("natural_language_query: %w", err)
	}

	generated, err := r.nl.Generate(question, schema)
	if err != nil {
		return nil, err
	}

	ex, _, err := r.executorFor(pool)
	if err != nil {
		return nil, err
	}
	result, err := ex.ExecuteQuery(ctx, generated.SQL, nil, executor.Options{})
	if err != nil {
		return nil, fmt.Errorf("natural_language_query: generated %q: %w", generated.SQL, err)
	}

	return &NaturalLanguageQueryResult{
		GeneratedSQL:  generated.SQL,
		Confidence:    generated.Confidence,
		Explanation:   generated.Explanation,
		ExecutionTime: result.ExecutionTime,
		RowCount:      result.RowCount,
		Rows:          result.Rows,
		Fields:        result.Fields,
	}, nil
}

func (r *Registry) crossDatabaseQuery(ctx context.Context, items []dispatcher.Item) (*dispatcher.Result, error) {
	return r.dispatch.Dispatch(ctx, items)
}

func (r *Registry) analyzeQuery(pool, sql string) (executor.AnalyzeResult, error) {
	ex, _, err := r.executorFor(pool)
	if err != nil {
		return executor.AnalyzeResult{}, err
	}
	return ex.AnalyzeQuery(sql), nil
}

func (r *Registry) explainQuery(ctx context.Context, pool, sql string, params []any) (*dbadapter.QueryResult, error) {
	ex, _, err := r.executorFor(pool)
	if err != nil {
		return nil, err
	}
	return ex.ExplainQuery(ctx, sql, params)
}

func (r *Registry) analyzeSchema(ctx context.Context, pool string) (*dbadapter.SchemaInfo, error) {
	return r.schemaInfo(ctx, pool)
}

func (r *Registry) profileTable(ctx context.Context, pool, table string, sampleSize int) (*dbadapter.TableProfile, error) {
	if sampleSize <= 0 {
		sampleSize = 1000
	}
	return r.tableProfile(ctx, pool, table, sampleSize)
}

func (r *Registry) getTableRelationships(ctx context.Context, pool string) (dbadapter.RelationshipMap, error) {
	return r.relationships(ctx, pool)
}
