package pgadapter

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// dataProfiler runs a column-level data-quality scan against a sample of a
// table's rows, mirroring mysqladapter's profiler with Postgres-specific
// SQL: PERCENTILE_CONT for the median instead of an OFFSET scan, ~* for
// pattern matching, and RANDOM() instead of RAND() for sampling.
type dataProfiler struct {
	adapter *Adapter
}

var patternChecks = map[string]string{
	"email": `^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`,
	"phone": `^\+?[0-9][0-9()\\. -]{6,}[0-9]$`,
	"url":   `^https?://`,
	"date":  `^\d{4}-\d{2}-\d{2}`,
}

// largeTableSizeBytes is the data/index size above which assessQuality
// recommends partitioning or index pruning.
const largeTableSizeBytes = 10 * 1024 * 1024 * 1024

func (p *dataProfiler) ProfileTable(ctx context.Context, tableName string, sampleSize int) (*dbadapter.TableProfile, error) {
	if sampleSize <= 0 {
		sampleSize = 1000
	}

	schema := &schemaAnalyzer{adapter: p.adapter}
	table, err := schema.GetTable(ctx, tableName)
	if err != nil {
		return nil, err
	}

	var totalRows int64
	if table.RowCount != nil {
		totalRows = *table.RowCount
	}

	tableQuoted := quoteIdent(tableName)
	method := "full"
	confidence := 100.0
	source := tableQuoted
	effectiveRows := totalRows
	if totalRows > int64(sampleSize) {
		method = "random"
		confidence = math.Min(95, float64(sampleSize)/float64(totalRows)*100)
		source = fmt.Sprintf("(SELECT * FROM %s ORDER BY RANDOM() LIMIT %d) AS sampled", tableQuoted, sampleSize)
		effectiveRows = int64(sampleSize)
	}

	columnProfiles := make([]dbadapter.ColumnProfile, 0, len(table.Columns))
	for _, col := range table.Columns {
		cp, err := p.profileColumn(ctx, source, col, effectiveRows, method == "random")
		if err != nil {
			return nil, err
		}
		columnProfiles = append(columnProfiles, cp)
	}

	var sizeBytes int64
	if table.SizeInBytes != nil {
		sizeBytes = *table.SizeInBytes
	}

	var parents, children []string
	relationships, err := schema.GetRelationships(ctx)
	if err == nil {
		qualified := defaultSchema + "." + tableName
		parents = relationships[qualified]
		for name, refs := range relationships {
			for _, r := range refs {
				if r == qualified {
					children = append(children, name)
				}
			}
		}
	}

	return &dbadapter.TableProfile{
		TableName:          tableName,
		TotalRows:          totalRows,
		TotalColumns:       len(table.Columns),
		EstimatedSizeBytes: sizeBytes,
		Columns:            columnProfiles,
		DataQuality:        assessQuality(columnProfiles, sizeBytes),
		Relationships:      dbadapter.TableRelationships{ParentTables: parents, ChildTables: children},
		SamplingMethod:     method,
		SamplingConfidence: confidence,
	}, nil
}

// profileColumn scans one column against source, which is either the
// table itself or an already-bounded sample subquery built by ProfileTable.
// rows is the row count source actually contains, used as the percentage
// denominator; sampled marks the subquery case.
func (p *dataProfiler) profileColumn(ctx context.Context, source string, col dbadapter.ColumnInfo, rows int64, sampled bool) (dbadapter.ColumnProfile, error) {
	cp := dbadapter.ColumnProfile{ColumnName: col.Name, DataType: col.Type}

	quoted := quoteIdent(col.Name)

	p.adapter.mu.RLock()
	db := p.adapter.pool
	p.adapter.mu.RUnlock()
	if db == nil {
		return cp, fmt.Errorf("pgadapter: not connected")
	}

	var nullCount, distinctCount int64
	row := db.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FILTER (WHERE %s IS NULL), COUNT(DISTINCT %s) FROM %s", quoted, quoted, source))
	if err := row.Scan(&nullCount, &distinctCount); err != nil {
		return cp, fmt.Errorf("pgadapter: profile null/distinct: %w", err)
	}
	cp.NullCount = nullCount
	cp.UniqueCount = distinctCount
	if rows > 0 {
		cp.NullPercentage = 100 * float64(nullCount) / float64(rows)
		cp.UniquePercentage = 100 * float64(distinctCount) / float64(rows)
	}

	if isNumericKind(col.Type) {
		p.profileNumeric(ctx, source, quoted, &cp)
	}

	if col.Type == dbadapter.KindString || col.Type == dbadapter.KindText {
		p.profileStringQuality(ctx, source, quoted, &cp)
	}

	if err := p.profileMedianMode(ctx, source, quoted, &cp, sampled); err != nil {
		return cp, err
	}

	topValues, err := p.topValues(ctx, source, quoted, rows)
	if err != nil {
		return cp, err
	}
	cp.TopValues = topValues

	patterns, err := p.patternCounts(ctx, source, quoted, col.Type)
	if err != nil {
		return cp, err
	}
	cp.Patterns = patterns

	return cp, nil
}

func (p *dataProfiler) profileNumeric(ctx context.Context, source, column string, cp *dbadapter.ColumnProfile) {
	row := p.adapter.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT MIN(%s), MAX(%s), AVG(%s), STDDEV(%s), VARIANCE(%s) FROM %s",
		column, column, column, column, column, source))

	var minV, maxV, avg, stddev, variance *float64
	if err := row.Scan(&minV, &maxV, &avg, &stddev, &variance); err != nil {
		return
	}
	if minV != nil {
		cp.MinValue = *minV
	}
	if maxV != nil {
		cp.MaxValue = *maxV
	}
	cp.AvgValue = avg
	cp.Stddev = stddev
	cp.Variance = variance

	if stddev != nil && avg != nil {
		cp.Outliers = p.outliers(ctx, source, column, *avg, *stddev)
	}
}

func (p *dataProfiler) outliers(ctx context.Context, source, column string, mean, stddev float64) []any {
	if stddev == 0 {
		return nil
	}
	lower := mean - 3*stddev
	upper := mean + 3*stddev
	rows, err := p.adapter.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s < $1 OR %s > $2 LIMIT 10", column, source, column, column), lower, upper)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v *float64
		if err := rows.Scan(&v); err == nil && v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// profileStringQuality counts empty strings and values with leading or
// trailing whitespace, stashed in AdapterSpecific for assessQuality to
// factor into the column's score.
func (p *dataProfiler) profileStringQuality(ctx context.Context, source, column string, cp *dbadapter.ColumnProfile) {
	var empty, whitespace int64
	err := p.adapter.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FILTER (WHERE %s = ''), COUNT(*) FILTER (WHERE %s IS NOT NULL AND %s <> TRIM(%s)) FROM %s",
		column, column, column, column, source)).Scan(&empty, &whitespace)
	if err != nil {
		return
	}
	if cp.AdapterSpecific == nil {
		cp.AdapterSpecific = map[string]any{}
	}
	cp.AdapterSpecific["emptyCount"] = empty
	cp.AdapterSpecific["whitespaceCount"] = whitespace
}

// profileMedianMode fills MedianValue and Mode. When sampled is true
// PERCENTILE_CONT runs over the random sample, not the full population,
// so the median is an estimate and can be biased for skewed
// distributions; the profile marks this in
// AdapterSpecific["medianSource"] so callers can tell an exact median
// from a sampled one.
func (p *dataProfiler) profileMedianMode(ctx context.Context, source, column string, cp *dbadapter.ColumnProfile, sampled bool) error {
	var median *string
	err := p.adapter.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY %s::double precision)::text FROM %s WHERE %s IS NOT NULL",
		column, source, column)).Scan(&median)
	if err == nil && median != nil {
		cp.MedianValue = *median
		if sampled {
			if cp.AdapterSpecific == nil {
				cp.AdapterSpecific = map[string]any{}
			}
			cp.AdapterSpecific["medianSource"] = "sample"
		}
	}

	var mode *string
	err = p.adapter.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s::text FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY COUNT(*) DESC LIMIT 1",
		column, source, column, column)).Scan(&mode)
	if err == nil && mode != nil {
		cp.Mode = *mode
	}
	return nil
}

func (p *dataProfiler) topValues(ctx context.Context, source, column string, rows int64) ([]dbadapter.TopValue, error) {
	rs, err := p.adapter.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s::text, COUNT(*) FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY COUNT(*) DESC LIMIT 10",
		column, source, column, column))
	if err != nil {
		return nil, fmt.Errorf("pgadapter: top values: %w", err)
	}
	defer rs.Close()

	var out []dbadapter.TopValue
	for rs.Next() {
		var v *string
		var count int64
		if err := rs.Scan(&v, &count); err != nil {
			return nil, fmt.Errorf("pgadapter: scan top value: %w", err)
		}
		tv := dbadapter.TopValue{Count: count}
		if v != nil {
			tv.Value = *v
		}
		if rows > 0 {
			tv.Percentage = 100 * float64(count) / float64(rows)
		}
		out = append(out, tv)
	}
	return out, rs.Err()
}

func (p *dataProfiler) patternCounts(ctx context.Context, source, column string, kind dbadapter.ValueKind) (map[string]int64, error) {
	if kind != dbadapter.KindString && kind != dbadapter.KindText {
		return nil, nil
	}

	counts := map[string]int64{}
	for name, pattern := range patternChecks {
		var count int64
		err := p.adapter.pool.QueryRow(ctx, fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s ~* $1", source, column), pattern).Scan(&count)
		if err != nil {
			continue
		}
		if count > 0 {
			counts[name] = count
		}
	}
	return counts, nil
}

func isNumericKind(k dbadapter.ValueKind) bool {
	return k == dbadapter.KindInteger || k == dbadapter.KindDecimal || k == dbadapter.KindFloat
}

// looksLikeStatusColumn reports whether a column name suggests a small,
// intentionally low-cardinality enumeration (status, flag, type, ...) that
// shouldn't be flagged for low uniqueness.
func looksLikeStatusColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"status", "state", "type", "flag", "active", "enabled", "gender", "kind", "role", "category"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// scoreColumn computes a 0-100 quality score for a single column from its
// null percentage, uniqueness, top-value dominance, and type-specific
// checks (outlier count for numerics; empty/whitespace counts for
// strings), along with the human-readable issues that lowered the score.
func scoreColumn(c dbadapter.ColumnProfile) (float64, []string) {
	score := 100.0
	var issues []string

	switch {
	case c.NullPercentage > 50:
		issues = append(issues, fmt.Sprintf("column %s is more than half null", c.ColumnName))
		score -= 25
	case c.NullPercentage > 20:
		issues = append(issues, fmt.Sprintf("column %s has a high null percentage (%.1f%%)", c.ColumnName, c.NullPercentage))
		score -= 10
	}

	if c.UniqueCount > 1 && c.UniquePercentage < 1 && !looksLikeStatusColumn(c.ColumnName) {
		issues = append(issues, fmt.Sprintf("column %s has very low cardinality (%.2f%% unique)", c.ColumnName, c.UniquePercentage))
		score -= 10
	}

	if len(c.TopValues) > 0 && c.TopValues[0].Percentage > 90 {
		issues = append(issues, fmt.Sprintf("column %s is dominated by a single value (%.1f%%)", c.ColumnName, c.TopValues[0].Percentage))
		score -= 10
	}

	switch {
	case isNumericKind(c.DataType):
		if n := len(c.Outliers); n > 0 {
			issues = append(issues, fmt.Sprintf("column %s has %d outlier candidate(s)", c.ColumnName, n))
			score -= math.Min(15, float64(n))
		}
	case c.DataType == dbadapter.KindString || c.DataType == dbadapter.KindText:
		if empty, ok := c.AdapterSpecific["emptyCount"].(int64); ok && empty > 0 {
			issues = append(issues, fmt.Sprintf("column %s has %d empty string value(s)", c.ColumnName, empty))
			score -= 5
		}
		if ws, ok := c.AdapterSpecific["whitespaceCount"].(int64); ok && ws > 0 {
			issues = append(issues, fmt.Sprintf("column %s has %d value(s) with leading/trailing whitespace", c.ColumnName, ws))
			score -= 5
		}
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}

// assessQuality scores each column, stamps its DataQualityIssues in place,
// and aggregates the table's overall score as the mean of column scores.
func assessQuality(columns []dbadapter.ColumnProfile, sizeBytes int64) dbadapter.DataQuality {
	if len(columns) == 0 {
		return dbadapter.DataQuality{OverallScore: 100}
	}

	var issues, recs []string
	var total float64
	for i := range columns {
		score, colIssues := scoreColumn(columns[i])
		columns[i].DataQualityIssues = colIssues
		issues = append(issues, colIssues...)
		total += score

		if columns[i].NullPercentage > 50 {
			recs = append(recs, fmt.Sprintf("review whether %s should be nullable", columns[i].ColumnName))
		}
		if columns[i].UniqueCount > 1 && columns[i].UniquePercentage < 1 && !looksLikeStatusColumn(columns[i].ColumnName) {
			recs = append(recs, fmt.Sprintf("consider indexing or normalizing %s given its low cardinality", columns[i].ColumnName))
		}
	}

	overall := total / float64(len(columns))
	if overall < 70 {
		recs = append(recs, "overall data quality is below 70; schedule a cleaning pass")
	}
	if sizeBytes > largeTableSizeBytes {
		recs = append(recs, "table data/index size is large; consider partitioning or pruning unused indexes")
	}

	return dbadapter.DataQuality{OverallScore: math.Round(overall), Issues: issues, Recommendations: recs}
}

// quoteIdent double-quotes a Postgres identifier, doubling any embedded
// quote the way the server itself requires.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
