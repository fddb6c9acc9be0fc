package rpcserver

import (
	"context"
	"fmt"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// TablesResult is the database://<pool>/tables resource: just the tables
// subset of SchemaInfo, without views/procedures.
type TablesResult struct {
	Tables []dbadapter.TableInfo
}

// resolveResource reads one database:// resource URI.
func (r *Registry) resolveResource(ctx context.Context, uri string) (any, error) {
	pool, kind, entity, ok := parseResourceURI(uri)
	if !ok {
		return nil, fmt.Errorf("unknown resource URI: %s", uri)
	}

	switch kind {
	case "connections":
		return r.mgr.ConnectionInfos(), nil
	case "schema":
		return r.schemaInfo(ctx, pool)
	case "tables":
		schema, err := r.schemaInfo(ctx, pool)
		if err != nil {
			return nil, err
		}
		return TablesResult{Tables: schema.Tables}, nil
	case "table":
		return r.tableInfo(ctx, pool, entity)
	case "table_profile":
		return r.tableProfile(ctx, pool, entity, 1000)
	default:
		return nil, fmt.Errorf("unknown resource URI: %s", uri)
	}
}
