package rpcserver

import (
	"context"
	"fmt"

	"github.com/lordbasex/dbbroker/internal/dispatcher"
)

// handle routes one Request to its Registry method and builds the
// corresponding Response. It never panics on a malformed request; an
// unknown tool/resource name or a missing required param becomes a
// caller-visible Response.Error instead of propagating up to the
// transport loop.
func (r *Registry) handle(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}

	result, err := r.dispatchRequest(ctx, req)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Result = result
	return resp
}

func (r *Registry) dispatchRequest(ctx context.Context, req Request) (any, error) {
	switch req.Kind {
	case kindResource:
		return r.resolveResource(ctx, req.Name)
	case kindTool:
		return r.dispatchTool(ctx, req)
	default:
		return nil, fmt.Errorf("unknown request kind: %s", req.Kind)
	}
}

func (r *Registry) dispatchTool(ctx context.Context, req Request) (any, error) {
	p := req.Params
	switch req.Name {
	case toolListDatabases:
		return r.listDatabases(), nil

	case toolDatabaseHealthCheck:
		return r.databaseHealthCheck(ctx, paramString(p, "pool"))

	case toolExecuteQuery:
		sql := paramString(p, "query")
		if sql == "" {
			return nil, fmt.Errorf("execute_query: missing required param 'query'")
		}
		return r.executeQuery(ctx, paramString(p, "database"), sql, paramSlice(p, "parameters"))

	case toolNaturalLanguageQuery:
		question := paramString(p, "question")
		if question == "" {
			return nil, fmt.Errorf("natural_language_query: missing required param 'question'")
		}
		return r.naturalLanguageQuery(ctx, paramString(p, "database"), question)

	case toolCrossDatabaseQuery:
		items, err := parseCrossDatabaseItems(p)
		if err != nil {
			return nil, err
		}
		return r.crossDatabaseQuery(ctx, items)

	case toolAnalyzeQuery:
		sql := paramString(p, "query")
		if sql == "" {
			return nil, fmt.Errorf("analyze_query: missing required param 'query'")
		}
		return r.analyzeQuery(paramString(p, "database"), sql)

	case toolExplainQuery:
		sql := paramString(p, "query")
		if sql == "" {
			return nil, fmt.Errorf("explain_query: missing required param 'query'")
		}
		return r.explainQuery(ctx, paramString(p, "database"), sql, paramSlice(p, "parameters"))

	case toolAnalyzeSchema:
		return r.analyzeSchema(ctx, paramString(p, "database"))

	case toolProfileTable:
		table := paramString(p, "table")
		if table == "" {
			return nil, fmt.Errorf("profile_table: missing required param 'table'")
		}
		return r.profileTable(ctx, paramString(p, "database"), table, paramInt(p, "sampleSize", 0))

	case toolGetTableRelationships:
		return r.getTableRelationships(ctx, paramString(p, "database"))

	case toolClearSchemaCache:
		pattern := paramString(p, "pattern")
		if err := r.clearSchemaCache(pattern); err != nil {
			return nil, err
		}
		return map[string]any{"cleared": true}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Name)
	}
}

func parseCrossDatabaseItems(p map[string]any) ([]dispatcher.Item, error) {
	raw := paramSlice(p, "queries")
	if len(raw) == 0 {
		return nil, fmt.Errorf("cross_database_query: missing required param 'queries'")
	}

	items := make([]dispatcher.Item, 0, len(raw))
	for i, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cross_database_query: queries[%d] is not an object", i)
		}
		pool := paramString(m, "pool")
		sql := paramString(m, "sql")
		if pool == "" || sql == "" {
			return nil, fmt.Errorf("cross_database_query: queries[%d] requires 'pool' and 'sql'", i)
		}
		items = append(items, dispatcher.Item{
			Pool:   pool,
			SQL:    sql,
			Alias:  paramString(m, "alias"),
			Params: paramSlice(m, "params"),
		})
	}
	return items, nil
}
