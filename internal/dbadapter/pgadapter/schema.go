package pgadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// schemaAnalyzer issues information_schema/pg_catalog queries against the
// public schema of the adapter's connected database.
type schemaAnalyzer struct {
	adapter *Adapter
}

const defaultSchema = "public"

func (s *schemaAnalyzer) db() (pgxConn, error) {
	s.adapter.mu.RLock()
	pool := s.adapter.pool
	s.adapter.mu.RUnlock()
	if pool == nil {
		return nil, fmt.Errorf("pgadapter: not connected")
	}
	return pool, nil
}

func (s *schemaAnalyzer) ListTables(ctx context.Context) ([]dbadapter.TableInfo, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT t.table_name,
		       COALESCE(s.n_live_tup, 0) AS row_estimate,
		       COALESCE(pg_total_relation_size(quote_ident(t.table_name)), 0) AS size_bytes
		FROM information_schema.tables t
		LEFT JOIN pg_stat_user_tables s ON s.relname = t.table_name AND s.schemaname = t.table_schema
		WHERE t.table_schema = $1 AND t.table_type = 'BASE TABLE'
		ORDER BY t.table_name`, defaultSchema)
	if err != nil {
		return nil, fmt.Errorf("pgadapter: list tables: %w", err)
	}
	defer rows.Close()

	var tables []dbadapter.TableInfo
	for rows.Next() {
		var name string
		var rowCount, sizeBytes int64
		if err := rows.Scan(&name, &rowCount, &sizeBytes); err != nil {
			return nil, fmt.Errorf("pgadapter: scan table: %w", err)
		}
		tables = append(tables, dbadapter.TableInfo{
			Name:        name,
			Schema:      defaultSchema,
			RowCount:    &rowCount,
			SizeInBytes: &sizeBytes,
		})
	}
	return tables, rows.Err()
}

func (s *schemaAnalyzer) GetTable(ctx context.Context, name string) (*dbadapter.TableInfo, error) {
	columns, err := s.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	indexes, err := s.indexes(ctx, name)
	if err != nil {
		return nil, err
	}
	fks, err := s.foreignKeys(ctx, name)
	if err != nil {
		return nil, err
	}

	db, err := s.db()
	if err != nil {
		return nil, err
	}
	var rowCount, sizeBytes int64
	row := db.QueryRow(ctx, `
		SELECT COALESCE(s.n_live_tup, 0), COALESCE(pg_total_relation_size(quote_ident($1::text)), 0)
		FROM pg_stat_user_tables s
		WHERE s.relname = $1 AND s.schemaname = $2
		UNION ALL
		SELECT 0, COALESCE(pg_total_relation_size(quote_ident($1::text)), 0)
		LIMIT 1`, name, defaultSchema)
	if err := row.Scan(&rowCount, &sizeBytes); err != nil {
		rowCount, sizeBytes = 0, 0
	}

	return &dbadapter.TableInfo{
		Name:        name,
		Schema:      defaultSchema,
		Columns:     columns,
		Indexes:     indexes,
		ForeignKeys: fks,
		RowCount:    &rowCount,
		SizeInBytes: &sizeBytes,
	}, nil
}

func (s *schemaAnalyzer) columns(ctx context.Context, table string) ([]dbadapter.ColumnInfo, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT c.column_name, c.data_type, c.udt_name, c.is_nullable, c.column_default,
		       c.character_maximum_length, c.numeric_precision, c.numeric_scale,
		       COALESCE(
		           (SELECT true FROM information_schema.key_column_usage kcu
		            JOIN information_schema.table_constraints tc
		              ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		            WHERE tc.constraint_type = 'PRIMARY KEY'
		              AND kcu.table_schema = c.table_schema
		              AND kcu.table_name = c.table_name
		              AND kcu.column_name = c.column_name
		            LIMIT 1), false) AS is_primary_key,
		       COALESCE(c.column_default LIKE 'nextval(%', false) AS is_auto_increment,
		       COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass::oid, c.ordinal_position), '') AS comment
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, defaultSchema, table)
	if err != nil {
		return nil, fmt.Errorf("pgadapter: columns: %w", err)
	}
	defer rows.Close()

	var out []dbadapter.ColumnInfo
	for rows.Next() {
		var name, dataType, udtName, isNullable string
		var defaultVal *string
		var maxLen, precision, scale *int
		var isPK, isAuto bool
		var comment string
		if err := rows.Scan(&name, &dataType, &udtName, &isNullable, &defaultVal, &maxLen, &precision, &scale, &isPK, &isAuto, &comment); err != nil {
			return nil, fmt.Errorf("pgadapter: scan column: %w", err)
		}
		out = append(out, dbadapter.ColumnInfo{
			Name:            name,
			Type:            valueKindForDBType(dataType),
			NativeType:      udtName,
			Nullable:        isNullable == "YES",
			DefaultValue:    defaultVal,
			IsPrimaryKey:    isPK,
			IsAutoIncrement: isAuto,
			MaxLength:       maxLen,
			Precision:       precision,
			Scale:           scale,
			Comment:         comment,
		})
	}
	return out, rows.Err()
}

func (s *schemaAnalyzer) indexes(ctx context.Context, table string) ([]dbadapter.IndexInfo, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT i.relname AS index_name, a.attname AS column_name,
		       ix.indisunique, ix.indisprimary, am.amname AS index_type
		FROM pg_class t
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_index ix ON ix.indrelid = t.oid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_am am ON am.oid = i.relam
		JOIN unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1 AND t.relname = $2
		ORDER BY i.relname, k.ord`, defaultSchema, table)
	if err != nil {
		return nil, fmt.Errorf("pgadapter: indexes: %w", err)
	}
	defer rows.Close()

	byName := map[string]*dbadapter.IndexInfo{}
	var order []string
	for rows.Next() {
		var indexName, columnName, indexType string
		var isUnique, isPrimary bool
		if err := rows.Scan(&indexName, &columnName, &isUnique, &isPrimary, &indexType); err != nil {
			return nil, fmt.Errorf("pgadapter: scan index: %w", err)
		}
		idx, ok := byName[indexName]
		if !ok {
			idx = &dbadapter.IndexInfo{Name: indexName, IsUnique: isUnique, IsPrimary: isPrimary, Type: indexType}
			byName[indexName] = idx
			order = append(order, indexName)
		}
		idx.Columns = append(idx.Columns, columnName)
	}
	out := make([]dbadapter.IndexInfo, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, rows.Err()
}

func (s *schemaAnalyzer) foreignKeys(ctx context.Context, table string) ([]dbadapter.ForeignKeyInfo, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT tc.constraint_name, kcu.column_name, ccu.table_name AS referenced_table,
		       ccu.column_name AS referenced_column, rc.update_rule, rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
		  ON rc.constraint_name = tc.constraint_name AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY tc.constraint_name, kcu.ordinal_position`, defaultSchema, table)
	if err != nil {
		return nil, fmt.Errorf("pgadapter: foreign keys: %w", err)
	}
	defer rows.Close()

	byName := map[string]*dbadapter.ForeignKeyInfo{}
	var order []string
	for rows.Next() {
		var name, column, refTable, refColumn, onUpdate, onDelete string
		if err := rows.Scan(&name, &column, &refTable, &refColumn, &onUpdate, &onDelete); err != nil {
			return nil, fmt.Errorf("pgadapter: scan fk: %w", err)
		}
		fk, ok := byName[name]
		if !ok {
			fk = &dbadapter.ForeignKeyInfo{Name: name, ReferencedTable: refTable, OnUpdate: onUpdate, OnDelete: onDelete}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	out := make([]dbadapter.ForeignKeyInfo, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, rows.Err()
}

func (s *schemaAnalyzer) ListViews(ctx context.Context) ([]dbadapter.ViewInfo, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT table_name, view_definition
		FROM information_schema.views
		WHERE table_schema = $1
		ORDER BY table_name`, defaultSchema)
	if err != nil {
		return nil, fmt.Errorf("pgadapter: list views: %w", err)
	}
	defer rows.Close()

	var out []dbadapter.ViewInfo
	for rows.Next() {
		var name string
		var def *string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, fmt.Errorf("pgadapter: scan view: %w", err)
		}
		v := dbadapter.ViewInfo{Name: name, Schema: defaultSchema}
		if def != nil {
			v.Definition = *def
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *schemaAnalyzer) ListProcedures(ctx context.Context) ([]dbadapter.ProcedureInfo, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT p.proname, pg_get_function_result(p.oid), pg_get_function_arguments(p.oid)
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = $1 AND p.prokind IN ('f', 'p')
		ORDER BY p.proname`, defaultSchema)
	if err != nil {
		return nil, fmt.Errorf("pgadapter: list procedures: %w", err)
	}
	defer rows.Close()

	var out []dbadapter.ProcedureInfo
	for rows.Next() {
		var name, returnType, args string
		if err := rows.Scan(&name, &returnType, &args); err != nil {
			return nil, fmt.Errorf("pgadapter: scan procedure: %w", err)
		}
		out = append(out, dbadapter.ProcedureInfo{
			Name:       name,
			Schema:     defaultSchema,
			ReturnType: returnType,
			Parameters: parseFunctionArguments(args),
		})
	}
	return out, rows.Err()
}

// parseFunctionArguments splits pg_get_function_arguments' comma-joined
// "name type" list into ProcedureParam entries. Default-value clauses
// ("DEFAULT expr" or "= expr") are stripped since only the name/type/mode
// matter here.
func parseFunctionArguments(args string) []dbadapter.ProcedureParam {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	var out []dbadapter.ProcedureParam
	for _, part := range strings.Split(args, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := indexOfDefaultClause(part); idx >= 0 {
			part = strings.TrimSpace(part[:idx])
		}
		mode := "IN"
		for _, m := range []string{"OUT", "INOUT", "VARIADIC"} {
			if strings.HasPrefix(part, m+" ") {
				mode = m
				part = strings.TrimSpace(strings.TrimPrefix(part, m))
				break
			}
		}
		fields := strings.SplitN(part, " ", 2)
		p := dbadapter.ProcedureParam{Mode: mode}
		if len(fields) == 2 {
			p.Name = fields[0]
			p.Type = fields[1]
		} else {
			p.Type = part
		}
		out = append(out, p)
	}
	return out
}

// indexOfDefaultClause finds where a parameter's default-value clause
// starts, checking both the "DEFAULT expr" and "= expr" spellings
// pg_get_function_arguments can emit.
func indexOfDefaultClause(part string) int {
	if idx := strings.Index(strings.ToUpper(part), " DEFAULT "); idx >= 0 {
		return idx
	}
	return strings.Index(part, "=")
}

func (s *schemaAnalyzer) GetSchema(ctx context.Context) (*dbadapter.SchemaInfo, error) {
	tableList, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]dbadapter.TableInfo, 0, len(tableList))
	for _, t := range tableList {
		full, err := s.GetTable(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *full)
	}

	views, err := s.ListViews(ctx)
	if err != nil {
		return nil, err
	}
	procedures, err := s.ListProcedures(ctx)
	if err != nil {
		return nil, err
	}

	return &dbadapter.SchemaInfo{Tables: tables, Views: views, Procedures: procedures}, nil
}

func (s *schemaAnalyzer) GetRelationships(ctx context.Context) (dbadapter.RelationshipMap, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	// Keys and values are schema-qualified, unlike MySQL's bare table
	// names, since Postgres tables are only unique per schema.
	out := make(dbadapter.RelationshipMap, len(tables))
	for _, t := range tables {
		fks, err := s.foreignKeys(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		var refs []string
		for _, fk := range fks {
			qualified := defaultSchema + "." + fk.ReferencedTable
			if !seen[qualified] {
				seen[qualified] = true
				refs = append(refs, qualified)
			}
		}
		out[defaultSchema+"."+t.Name] = refs
	}
	return out, nil
}

func (s *schemaAnalyzer) GetDatabaseInfo(ctx context.Context) (*dbadapter.DatabaseInfo, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	var version string
	if err := db.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return nil, fmt.Errorf("pgadapter: version: %w", err)
	}

	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.ListViews(ctx)
	if err != nil {
		return nil, err
	}
	procedures, err := s.ListProcedures(ctx)
	if err != nil {
		return nil, err
	}

	return &dbadapter.DatabaseInfo{
		Name:           s.adapter.cfg.Database,
		Type:           dbadapter.PostgreSQL,
		Version:        version,
		TableCount:     len(tables),
		ViewCount:      len(views),
		ProcedureCount: len(procedures),
	}, nil
}
