package mysqladapter

import (
	"database/sql"
	"fmt"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// valueKindForDBType is the fixed MySQL-type-name -> ValueKind map.
func valueKindForDBType(dbType string) dbadapter.ValueKind {
	switch dbType {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT":
		return dbadapter.KindInteger
	case "DECIMAL", "NUMERIC":
		return dbadapter.KindDecimal
	case "FLOAT", "DOUBLE", "REAL":
		return dbadapter.KindFloat
	case "VARCHAR", "CHAR":
		return dbadapter.KindString
	case "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT":
		return dbadapter.KindText
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY":
		return dbadapter.KindBinary
	case "DATE":
		return dbadapter.KindDate
	case "TIME":
		return dbadapter.KindTime
	case "DATETIME":
		return dbadapter.KindDateTime
	case "TIMESTAMP":
		return dbadapter.KindTimestamp
	case "JSON":
		return dbadapter.KindJSON
	case "GEOMETRY", "POINT", "LINESTRING", "POLYGON":
		return dbadapter.KindGeometry
	case "BOOLEAN", "BOOL":
		return dbadapter.KindBoolean
	default:
		return dbadapter.KindString
	}
}

// convertValue returns byte-array numeric/decimal/text columns as strings
// to preserve precision across JSON serialization; native Go scalar types
// pass through.
func convertValue(val any) any {
	if val == nil {
		return nil
	}
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

// scanRows normalizes a *sql.Rows result set into the shared QueryResult
// shape.
func scanRows(rows *sql.Rows) (*dbadapter.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("mysqladapter: column types: %w", err)
	}

	fields := make([]dbadapter.Field, len(cols))
	for i, ct := range colTypes {
		nullable, _ := ct.Nullable()
		fields[i] = dbadapter.Field{
			Name:     cols[i],
			Type:     valueKindForDBType(ct.DatabaseTypeName()),
			Nullable: nullable,
		}
	}

	var resultRows []dbadapter.Row
	for rows.Next() {
		scanDest := make([]any, len(cols))
		for i := range scanDest {
			scanDest[i] = new(any)
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, fmt.Errorf("mysqladapter: scan: %w", err)
		}

		row := make(dbadapter.Row, len(cols))
		for i, dest := range scanDest {
			raw := *(dest.(*any))
			row[cols[i]] = convertValue(raw)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysqladapter: rows: %w", err)
	}

	return &dbadapter.QueryResult{
		Rows:     resultRows,
		Fields:   fields,
		RowCount: len(resultRows),
	}, nil
}
