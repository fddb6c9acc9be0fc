package mysqladapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// schemaAnalyzer issues INFORMATION_SCHEMA queries scoped to the adapter's
// configured database.
type schemaAnalyzer struct {
	adapter *Adapter
}

func (s *schemaAnalyzer) db() (*Adapter, error) {
	if s.adapter.db == nil {
		return nil, fmt.Errorf("mysqladapter: not connected")
	}
	return s.adapter, nil
}

func (s *schemaAnalyzer) ListTables(ctx context.Context) ([]dbadapter.TableInfo, error) {
	schema, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := schema.db.QueryContext(ctx, `
		SELECT TABLE_NAME, TABLE_ROWS, DATA_LENGTH, INDEX_LENGTH
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`, s.adapter.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: list tables: %w", err)
	}
	defer rows.Close()

	var tables []dbadapter.TableInfo
	for rows.Next() {
		var name string
		var rowCount, dataLen, indexLen sql.NullInt64
		if err := rows.Scan(&name, &rowCount, &dataLen, &indexLen); err != nil {
			return nil, fmt.Errorf("mysqladapter: scan table: %w", err)
		}
		t := dbadapter.TableInfo{Name: name, Schema: s.adapter.cfg.Database}
		if rowCount.Valid {
			v := rowCount.Int64
			t.RowCount = &v
		}
		if dataLen.Valid && indexLen.Valid {
			v := dataLen.Int64 + indexLen.Int64
			t.SizeInBytes = &v
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (s *schemaAnalyzer) GetTable(ctx context.Context, name string) (*dbadapter.TableInfo, error) {
	schema, err := s.db()
	if err != nil {
		return nil, err
	}

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

	row := schema.db.QueryRowContext(ctx, `
		SELECT TABLE_ROWS, DATA_LENGTH, INDEX_LENGTH
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`, s.adapter.cfg.Database, name)

	var rowCount, dataLen, indexLen sql.NullInt64
	if err := row.Scan(&rowCount, &dataLen, &indexLen); err != nil {
		return nil, fmt.Errorf("mysqladapter: table stats: %w", err)
	}

	t := &dbadapter.TableInfo{
		Name:        name,
		Schema:      s.adapter.cfg.Database,
		Columns:     columns,
		Indexes:     indexes,
		ForeignKeys: fks,
	}
	if rowCount.Valid {
		v := rowCount.Int64
		t.RowCount = &v
	}
	if dataLen.Valid && indexLen.Valid {
		v := dataLen.Int64 + indexLen.Int64
		t.SizeInBytes = &v
	}
	return t, nil
}

func (s *schemaAnalyzer) columns(ctx context.Context, table string) ([]dbadapter.ColumnInfo, error) {
	rows, err := s.adapter.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT,
		       COLUMN_KEY, EXTRA, CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE, COLUMN_COMMENT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, s.adapter.cfg.Database, table)
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: columns: %w", err)
	}
	defer rows.Close()

	var out []dbadapter.ColumnInfo
	for rows.Next() {
		var name, dataType, columnType, isNullable, columnKey, extra, comment string
		var defaultVal sql.NullString
		var maxLen, precision, scale sql.NullInt64
		if err := rows.Scan(&name, &dataType, &columnType, &isNullable, &defaultVal, &columnKey, &extra, &maxLen, &precision, &scale, &comment); err != nil {
			return nil, fmt.Errorf("mysqladapter: scan column: %w", err)
		}

		c := dbadapter.ColumnInfo{
			Name:            name,
			Type:            valueKindForDBType(strings.ToUpper(dataType)),
			NativeType:      columnType,
			Nullable:        isNullable == "YES",
			IsPrimaryKey:    columnKey == "PRI",
			IsAutoIncrement: strings.Contains(extra, "auto_increment"),
			Comment:         comment,
		}
		if defaultVal.Valid {
			v := defaultVal.String
			c.DefaultValue = &v
		}
		if maxLen.Valid {
			v := int(maxLen.Int64)
			c.MaxLength = &v
		}
		if precision.Valid {
			v := int(precision.Int64)
			c.Precision = &v
		}
		if scale.Valid {
			v := int(scale.Int64)
			c.Scale = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *schemaAnalyzer) indexes(ctx context.Context, table string) ([]dbadapter.IndexInfo, error) {
	rows, err := s.adapter.db.QueryContext(ctx, `
		SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, INDEX_TYPE
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`, s.adapter.cfg.Database, table)
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: indexes: %w", err)
	}
	defer rows.Close()

	byName := map[string]*dbadapter.IndexInfo{}
	var order []string
	for rows.Next() {
		var indexName, columnName, indexType string
		var nonUnique int
		if err := rows.Scan(&indexName, &columnName, &nonUnique, &indexType); err != nil {
			return nil, fmt.Errorf("mysqladapter: scan index: %w", err)
		}
		idx, ok := byName[indexName]
		if !ok {
			idx = &dbadapter.IndexInfo{
				Name:      indexName,
				IsUnique:  nonUnique == 0,
				IsPrimary: indexName == "PRIMARY",
				Type:      indexType,
			}
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
	rows, err := s.adapter.db.QueryContext(ctx, `
		SELECT k.CONSTRAINT_NAME, k.COLUMN_NAME, k.REFERENCED_TABLE_NAME, k.REFERENCED_COLUMN_NAME,
		       r.UPDATE_RULE, r.DELETE_RULE
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
		JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS r
		  ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		WHERE k.TABLE_SCHEMA = ? AND k.TABLE_NAME = ? AND k.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION`, s.adapter.cfg.Database, table)
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: foreign keys: %w", err)
	}
	defer rows.Close()

	byName := map[string]*dbadapter.ForeignKeyInfo{}
	var order []string
	for rows.Next() {
		var name, column, refTable, refColumn, onUpdate, onDelete string
		if err := rows.Scan(&name, &column, &refTable, &refColumn, &onUpdate, &onDelete); err != nil {
			return nil, fmt.Errorf("mysqladapter: scan fk: %w", err)
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
	schema, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := schema.db.QueryContext(ctx, `
		SELECT TABLE_NAME, VIEW_DEFINITION
		FROM INFORMATION_SCHEMA.VIEWS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`, s.adapter.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: list views: %w", err)
	}
	defer rows.Close()

	var out []dbadapter.ViewInfo
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, fmt.Errorf("mysqladapter: scan view: %w", err)
		}
		out = append(out, dbadapter.ViewInfo{Name: name, Schema: s.adapter.cfg.Database, Definition: def})
	}
	return out, rows.Err()
}

func (s *schemaAnalyzer) ListProcedures(ctx context.Context) ([]dbadapter.ProcedureInfo, error) {
	schema, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := schema.db.QueryContext(ctx, `
		SELECT ROUTINE_NAME, DTD_IDENTIFIER
		FROM INFORMATION_SCHEMA.ROUTINES
		WHERE ROUTINE_SCHEMA = ? AND ROUTINE_TYPE = 'PROCEDURE'
		ORDER BY ROUTINE_NAME`, s.adapter.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: list procedures: %w", err)
	}
	defer rows.Close()

	var out []dbadapter.ProcedureInfo
	for rows.Next() {
		var name string
		var returnType sql.NullString
		if err := rows.Scan(&name, &returnType); err != nil {
			return nil, fmt.Errorf("mysqladapter: scan procedure: %w", err)
		}
		p := dbadapter.ProcedureInfo{Name: name, Schema: s.adapter.cfg.Database}
		if returnType.Valid {
			p.ReturnType = returnType.String
		}
		params, err := s.procedureParams(ctx, name)
		if err != nil {
			return nil, err
		}
		p.Parameters = params
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *schemaAnalyzer) procedureParams(ctx context.Context, procedure string) ([]dbadapter.ProcedureParam, error) {
	rows, err := s.adapter.db.QueryContext(ctx, `
		SELECT PARAMETER_NAME, DTD_IDENTIFIER, PARAMETER_MODE
		FROM INFORMATION_SCHEMA.PARAMETERS
		WHERE SPECIFIC_SCHEMA = ? AND SPECIFIC_NAME = ? AND PARAMETER_NAME IS NOT NULL
		ORDER BY ORDINAL_POSITION`, s.adapter.cfg.Database, procedure)
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: procedure params: %w", err)
	}
	defer rows.Close()

	var out []dbadapter.ProcedureParam
	for rows.Next() {
		var name, typ, mode sql.NullString
		if err := rows.Scan(&name, &typ, &mode); err != nil {
			return nil, fmt.Errorf("mysqladapter: scan param: %w", err)
		}
		out = append(out, dbadapter.ProcedureParam{Name: name.String, Type: typ.String, Mode: mode.String})
	}
	return out, rows.Err()
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
	out := make(dbadapter.RelationshipMap, len(tables))
	for _, t := range tables {
		fks, err := s.foreignKeys(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		var refs []string
		for _, fk := range fks {
			if !seen[fk.ReferencedTable] {
				seen[fk.ReferencedTable] = true
				refs = append(refs, fk.ReferencedTable)
			}
		}
		out[t.Name] = refs
	}
	return out, nil
}

func (s *schemaAnalyzer) GetDatabaseInfo(ctx context.Context) (*dbadapter.DatabaseInfo, error) {
	schema, err := s.db()
	if err != nil {
		return nil, err
	}

	var version string
	if err := schema.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return nil, fmt.Errorf("mysqladapter: version: %w", err)
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
		Type:           dbadapter.MySQL,
		Version:        version,
		TableCount:     len(tables),
		ViewCount:      len(views),
		ProcedureCount: len(procedures),
	}, nil
}
