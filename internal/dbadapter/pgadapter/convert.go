package pgadapter

import "github.com/lordbasex/dbbroker/internal/dbadapter"

// Well-known PostgreSQL builtin type OIDs (see pg_type.dat upstream).
// These are stable across server versions, so hardcoding them avoids a
// dependency on pgtype's catalog just to classify a handful of common
// scalar kinds.
const (
	oidBool        = 16
	oidBytea       = 17
	oidInt8        = 20
	oidInt2        = 21
	oidInt4        = 23
	oidText        = 25
	oidJSON        = 114
	oidFloat4      = 700
	oidFloat8      = 701
	oidVarchar     = 1043
	oidBPChar      = 1042
	oidDate        = 1082
	oidTime        = 1083
	oidTimestamp   = 1114
	oidTimestamptz = 1184
	oidNumeric     = 1700
	oidUUID        = 2950
	oidJSONB       = 3802
)

// valueKindForOID maps a wire-protocol type OID to the cross-engine
// ValueKind vocabulary. Types without a specific case (arrays, ranges,
// extension types) fall back to KindString, matching pgx's tendency to
// decode unrecognized types into their textual form.
func valueKindForOID(oid uint32) dbadapter.ValueKind {
	switch oid {
	case oidInt2, oidInt4, oidInt8:
		return dbadapter.KindInteger
	case oidNumeric:
		return dbadapter.KindDecimal
	case oidFloat4, oidFloat8:
		return dbadapter.KindFloat
	case oidText:
		return dbadapter.KindText
	case oidVarchar, oidBPChar, oidUUID:
		return dbadapter.KindString
	case oidBytea:
		return dbadapter.KindBinary
	case oidDate:
		return dbadapter.KindDate
	case oidTime:
		return dbadapter.KindTime
	case oidTimestamp:
		return dbadapter.KindDateTime
	case oidTimestamptz:
		return dbadapter.KindTimestamp
	case oidJSON, oidJSONB:
		return dbadapter.KindJSON
	case oidBool:
		return dbadapter.KindBoolean
	default:
		return dbadapter.KindString
	}
}

// valueKindForDBType maps an information_schema.columns data_type string
// to the same vocabulary, used by schema introspection where only the
// textual type name is available (no wire OID).
func valueKindForDBType(dataType string) dbadapter.ValueKind {
	switch dataType {
	case "smallint", "integer", "bigint":
		return dbadapter.KindInteger
	case "numeric", "decimal":
		return dbadapter.KindDecimal
	case "real", "double precision":
		return dbadapter.KindFloat
	case "character varying", "character", "uuid":
		return dbadapter.KindString
	case "text":
		return dbadapter.KindText
	case "bytea":
		return dbadapter.KindBinary
	case "date":
		return dbadapter.KindDate
	case "time without time zone", "time with time zone":
		return dbadapter.KindTime
	case "timestamp without time zone":
		return dbadapter.KindDateTime
	case "timestamp with time zone":
		return dbadapter.KindTimestamp
	case "json", "jsonb":
		return dbadapter.KindJSON
	case "boolean":
		return dbadapter.KindBoolean
	case "point", "polygon", "line", "lseg", "box", "circle", "path":
		return dbadapter.KindGeometry
	default:
		return dbadapter.KindString
	}
}

// convertValue passes pgx-decoded values through unchanged; unlike
// database/sql, pgx.Rows.Values() already returns native Go types (int64,
// float64, string, time.Time, []byte, bool, nil) with no raw-bytes step.
func convertValue(val any) any {
	return val
}
