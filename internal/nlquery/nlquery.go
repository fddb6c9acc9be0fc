// Package nlquery implements the natural-language-to-SQL contract: a
// question, an optional target pool, and cached schema context in, a SQL
// string and confidence out. The generator here is a conservative
// template bank (row count, select-all, equality filter) rather than an
// LLM call. Every statement it produces still has to pass
// internal/validator before execution, so a weak guess is never worse than
// a rejected query.
package nlquery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// Result is natural_language_query's return shape, minus the execution
// fields the executor layers on after the SQL runs.
type Result struct {
	SQL                   string
	Confidence            float64
	Explanation           string
	SuggestedImprovements []string
}

// Generator turns a question plus cached schema context into a candidate
// SQL statement.
type Generator struct{}

// New builds a Generator. It holds no state: every call is a pure function
// of its arguments.
func New() *Generator {
	return &Generator{}
}

var (
	countRe    = regexp.MustCompile(`(?i)\bhow many\b|\bcount\b|\bnumber of\b`)
	listRe     = regexp.MustCompile(`(?i)\ball\b|\blist\b|\bshow\b`)
	equalityRe = regexp.MustCompile(`(?i)\bwhere\s+(\w+)\s*(?:=|is|equals)\s*['"]?([\w.@-]+)['"]?`)
	limitRe    = regexp.MustCompile(`(?i)\btop\s+(\d+)\b|\bfirst\s+(\d+)\b|\blimit\s+(\d+)\b`)
)

const defaultListLimit = 100

// Generate produces a candidate SQL statement for question against the
// tables named in schemaContext. It never queries the database itself; the
// caller is responsible for validating and executing the result.
func (g *Generator) Generate(question string, schemaContext *dbadapter.SchemaInfo) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("nlquery: empty question")
	}
	if schemaContext == nil || len(schemaContext.Tables) == 0 {
		return Result{}, fmt.Errorf("nlquery: no schema context available for this pool")
	}

	table, ok := matchTable(question, schemaContext.Tables)
	if !ok {
		return Result{}, fmt.Errorf("nlquery: could not identify a table from the question; known tables: %s", tableNames(schemaContext.Tables))
	}

	var (
		sql        string
		confidence float64
		explain    string
		suggest    []string
	)

	whereClause, column, hasEquality := buildEquality(question, table)

	switch {
	case countRe.MatchString(question):
		sql = fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", table.Name)
		confidence = 0.7
		explain = fmt.Sprintf("interpreted as a row count over %s", table.Name)
		if hasEquality {
			sql += " WHERE " + whereClause
			confidence = 0.6
			explain += fmt.Sprintf(" filtered by %s", column)
		}
	case hasEquality:
		sql = fmt.Sprintf("SELECT * FROM %s WHERE %s", table.Name, whereClause)
		confidence = 0.55
		explain = fmt.Sprintf("interpreted as a lookup on %s.%s", table.Name, column)
		suggest = append(suggest, "confirm the filtered column is indexed for acceptable latency")
	case listRe.MatchString(question):
		limit := defaultListLimit
		if n, ok := matchLimit(question); ok {
			limit = n
		}
		sql = fmt.Sprintf("SELECT * FROM %s LIMIT %d", table.Name, limit)
		confidence = 0.5
		explain = fmt.Sprintf("interpreted as a row listing over %s, capped at %d rows", table.Name, limit)
		suggest = append(suggest, "narrow the question with a specific column or filter for a more precise query")
	default:
		sql = fmt.Sprintf("SELECT * FROM %s LIMIT %d", table.Name, defaultListLimit)
		confidence = 0.3
		explain = fmt.Sprintf("no count/filter/list phrasing recognized; defaulted to a bounded sample of %s", table.Name)
		suggest = append(suggest, "rephrase using 'how many', 'show all', or 'where <column> is <value>' for a higher-confidence match")
	}

	return Result{
		SQL:                   sql,
		Confidence:            confidence,
		Explanation:           explain,
		SuggestedImprovements: suggest,
	}, nil
}

// matchTable finds the schema table whose name appears as a whole word in
// question. Ties favor the longest matching name, since a longer name is
// less likely to be a coincidental substring match.
func matchTable(question string, tables []dbadapter.TableInfo) (dbadapter.TableInfo, bool) {
	lower := strings.ToLower(question)
	var best dbadapter.TableInfo
	found := false
	for _, t := range tables {
		name := strings.ToLower(t.Name)
		if !wordBoundaryContains(lower, name) {
			continue
		}
		if !found || len(t.Name) > len(best.Name) {
			best = t
			found = true
		}
	}
	return best, found
}

func wordBoundaryContains(haystack, needle string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(needle) + `\b`)
	if err != nil {
		return strings.Contains(haystack, needle)
	}
	return re.MatchString(haystack)
}

// buildEquality extracts a "where <column> is <value>" clause from
// question, validating column against the target table's known columns so
// the generated SQL never references a column that doesn't exist.
func buildEquality(question string, table dbadapter.TableInfo) (clause, column string, ok bool) {
	m := equalityRe.FindStringSubmatch(question)
	if m == nil {
		return "", "", false
	}
	col, val := m[1], m[2]
	for _, c := range table.Columns {
		if strings.EqualFold(c.Name, col) {
			if _, err := strconv.ParseFloat(val, 64); err == nil {
				return fmt.Sprintf("%s = %s", c.Name, val), c.Name, true
			}
			return fmt.Sprintf("%s = '%s'", c.Name, strings.ReplaceAll(val, "'", "''")), c.Name, true
		}
	}
	return "", "", false
}

func matchLimit(question string) (int, bool) {
	m := limitRe.FindStringSubmatch(question)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		if n, err := strconv.Atoi(g); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

func tableNames(tables []dbadapter.TableInfo) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}
