// Package validator implements the read-only SQL admission filter: an
// ordered pipeline of shape, keyword, pattern, and complexity checks that
// can only ever approve SELECT-class statements. There is no flag to
// enable write access.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

// Config controls the validator's admission policy.
type Config struct {
	MaxQueryLength int
	AllowedLeadingKeywords []string
}

// DefaultConfig returns the broker's default read-only policy.
func DefaultConfig() Config {
	return Config{
		MaxQueryLength:         10000,
		AllowedLeadingKeywords: []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "ANALYZE", "WITH"},
	}
}

// Result is the outcome of validating one query.
type Result struct {
	IsValid        bool
	Errors         []string
	Warnings       []string
	SanitizedQuery string
	Analysis       dbadapter.QueryAnalysis
}

var forbiddenKeywords = []string{
	// DML
	"INSERT", "UPDATE", "DELETE", "REPLACE", "MERGE",
	// DDL
	"CREATE", "ALTER", "DROP", "TRUNCATE", "RENAME",
	// transaction control
	"BEGIN", "COMMIT", "ROLLBACK", "START TRANSACTION",
	// privilege
	"GRANT", "REVOKE", "SET PASSWORD", "CREATE USER", "DROP USER",
	// bulk I/O
	"LOAD DATA", "SELECT INTO OUTFILE", "LOAD_FILE",
	// invocation
	"CALL", "EXECUTE", "EXEC",
	// administrative
	"FLUSH", "RESET", "KILL", "SHUTDOWN",
}

var riskyFunctions = []string{
	"BENCHMARK", "SLEEP", "GET_LOCK", "RELEASE_LOCK", "LOAD_FILE",
	"UUID", "RAND", "CONNECTION_ID", "VERSION", "USER", "DATABASE", "SCHEMA",
}

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespaceRe   = regexp.MustCompile(`\s+`)

	unionSelectRe    = regexp.MustCompile(`(?i)\bunion\b[\s\S]*?\bselect\b`)
	controlByteRe    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
	atAtRe           = regexp.MustCompile(`@@`)
	concatFuncRe     = regexp.MustCompile(`(?i)\bconcat\s*\(`)
	infoSchemaRe     = regexp.MustCompile(`(?i)\binformation_schema\b`)
	mysqlUserRe      = regexp.MustCompile(`(?i)\bmysql\.user\b`)
	intoOutfileRe    = regexp.MustCompile(`(?i)\binto\s+outfile\b`)
	loadFileRe       = regexp.MustCompile(`(?i)\bload_file\s*\(`)
	scriptTagRe      = regexp.MustCompile(`(?i)<\s*script`)
	looseQuoteRe     = regexp.MustCompile(`(^|[^\\])'(?:[^']*$|(?:[^'\\]|\\.)*$)`)

	selectStarRe = regexp.MustCompile(`(?i)select\s+\*`)
	limitRe      = regexp.MustCompile(`(?i)\blimit\b`)
	likeWildRe   = regexp.MustCompile(`(?i)like\s+'%[^']*%'`)
	fromListRe   = regexp.MustCompile(`(?i)\bfrom\s+[a-z0-9_.,\s]+`)
	joinRe       = regexp.MustCompile(`(?i)\bjoin\b`)
	whereRe      = regexp.MustCompile(`(?i)\bwhere\b`)
	unionRe      = regexp.MustCompile(`(?i)\bunion\b`)
	subqueryRe   = regexp.MustCompile(`(?i)\(\s*select\b`)
	orderByRe    = regexp.MustCompile(`(?i)\border\s+by\b`)
	groupByRe    = regexp.MustCompile(`(?i)\bgroup\s+by\b`)
	havingRe     = regexp.MustCompile(`(?i)\bhaving\b`)
	deleteUpdateNoWhereRe = regexp.MustCompile(`(?i)^\s*(delete|update)\b`)
)

// Stats tracks admission outcomes across the lifetime of the validator.
type Stats struct {
	TotalQueries   int64
	ValidQueries   int64
	BlockedQueries int64
}

// Validator is the read-only SQL admission filter.
type Validator struct {
	cfg   Config
	mu    sync.Mutex
	stats Stats
}

// New builds a Validator with the given config.
func New(cfg Config) *Validator {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultConfig().MaxQueryLength
	}
	if len(cfg.AllowedLeadingKeywords) == 0 {
		cfg.AllowedLeadingKeywords = DefaultConfig().AllowedLeadingKeywords
	}
	return &Validator{cfg: cfg}
}

// Validate runs the ordered admission pipeline: shape, normalization,
// forbidden keywords, leading-operation allowlist, suspicious patterns,
// risky-function warnings, complexity scoring, and heuristic checks.
func (v *Validator) Validate(sql string) Result {
	v.mu.Lock()
	v.stats.TotalQueries++
	v.mu.Unlock()

	res := Result{IsValid: true}

	// 1. Basic shape.
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		res.IsValid = false
		res.Errors = append(res.Errors, "query must be a non-empty string")
		v.recordBlocked()
		return res
	}
	if len(sql) > v.cfg.MaxQueryLength {
		res.IsValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("query exceeds maximum length of %d characters", v.cfg.MaxQueryLength))
	}

	// 2. Normalization.
	normalized := normalize(sql)
	res.SanitizedQuery = normalized

	// 3. Forbidden keywords.
	upper := strings.ToUpper(normalized)
	for _, kw := range forbiddenKeywords {
		if containsKeyword(upper, kw) {
			res.IsValid = false
			res.Errors = append(res.Errors, fmt.Sprintf("forbidden keyword detected: %s", kw))
		}
	}

	// 4. Leading operation allow-list.
	leading := leadingToken(normalized)
	if !v.isAllowedLeading(leading) {
		res.IsValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("operation '%s' is not permitted; only read-only statements are allowed", leading))
	}

	// 5. Suspicious patterns.
	if reason := suspiciousPattern(normalized); reason != "" {
		res.IsValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("suspicious pattern detected: %s", reason))
	}

	// 6. Risky functions (warn only).
	for _, fn := range riskyFunctions {
		if regexp.MustCompile(`(?i)\b`+fn+`\s*\(`).MatchString(normalized) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("query references risky function %s()", fn))
		}
	}

	// 7. Complexity scoring.
	analysis := v.analyze(normalized)
	res.Analysis = analysis
	switch analysis.EstimatedComplexity {
	case "high":
		res.Warnings = append(res.Warnings, "query complexity is high")
	}
	if len(analysis.Tables) > 5 {
		res.Warnings = append(res.Warnings, "query references more than five tables")
	}
	if analysis.HasSubqueries {
		res.Warnings = append(res.Warnings, "query contains one or more subqueries")
	}

	// 8. Advanced checks.
	if selectStarRe.MatchString(normalized) && !limitRe.MatchString(normalized) {
		res.Warnings = append(res.Warnings, "SELECT * without LIMIT may return an unbounded result set")
	}
	if likeWildRe.MatchString(normalized) {
		res.Warnings = append(res.Warnings, "LIKE '%...%' prevents index usage")
	}
	if strings.Count(strings.ToUpper(normalized), "FROM") > 1 && !joinRe.MatchString(normalized) && !whereRe.MatchString(normalized) {
		res.Warnings = append(res.Warnings, "multiple FROM clauses without JOIN/WHERE may produce a cartesian product")
	}
	if deleteUpdateNoWhereRe.MatchString(normalized) && !whereRe.MatchString(normalized) {
		res.IsValid = false
		res.Errors = append(res.Errors, "DELETE/UPDATE without WHERE is not permitted")
	}

	if res.IsValid {
		v.recordValid()
	} else {
		v.recordBlocked()
	}
	return res
}

// Analyze returns a static analysis of sql without any admission side
// effects: no stats counters are touched and the query is never rejected.
func (v *Validator) Analyze(sql string) dbadapter.QueryAnalysis {
	return v.analyze(normalize(sql))
}

func (v *Validator) analyze(normalized string) dbadapter.QueryAnalysis {
	upper := strings.ToUpper(normalized)
	result := dbadapter.QueryAnalysis{
		Operation:     leadingToken(normalized),
		Tables:        extractTables(normalized),
		HasSubqueries: subqueryRe.MatchString(normalized),
		HasJoins:      joinRe.MatchString(normalized),
		HasAggregates: hasAggregates(upper),
	}

	score := 2*count(joinRe, normalized) +
		3*count(unionRe, normalized) +
		4*count(subqueryRe, normalized) +
		1*count(orderByRe, normalized) +
		2*count(groupByRe, normalized) +
		2*count(havingRe, normalized)

	switch {
	case score <= 3:
		result.EstimatedComplexity = "low"
	case score <= 8:
		result.EstimatedComplexity = "medium"
	default:
		result.EstimatedComplexity = "high"
	}
	return result
}

func hasAggregates(upper string) bool {
	for _, fn := range []string{"COUNT(", "SUM(", "AVG(", "MIN(", "MAX("} {
		if strings.Contains(upper, fn) {
			return true
		}
	}
	return false
}

func count(re *regexp.Regexp, s string) int {
	return len(re.FindAllStringIndex(s, -1))
}

// extractTables is a heuristic union of identifiers following FROM/JOIN.
// It is intentionally not a parser, just a regex-based approximation.
func extractTables(normalized string) []string {
	seen := map[string]bool{}
	var out []string
	fromJoinRe := regexp.MustCompile("(?i)\\b(?:from|join)\\s+([a-zA-Z0-9_.\"`]+(?:\\s*,\\s*[a-zA-Z0-9_.\"`]+)*)")
	for _, m := range fromJoinRe.FindAllStringSubmatch(normalized, -1) {
		for _, raw := range strings.Split(m[1], ",") {
			name := strings.TrimSpace(raw)
			name = strings.Trim(name, "`\"")
			if name == "" {
				continue
			}
			// Drop a trailing alias token, e.g. "orders o" -> "orders".
			if idx := strings.IndexAny(name, " \t"); idx >= 0 {
				name = name[:idx]
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func normalize(sql string) string {
	s := blockCommentRe.ReplaceAllString(sql, " ")
	s = lineCommentRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func leadingToken(normalized string) string {
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func (v *Validator) isAllowedLeading(leading string) bool {
	for _, kw := range v.cfg.AllowedLeadingKeywords {
		if strings.EqualFold(kw, leading) {
			return true
		}
	}
	return false
}

func containsKeyword(upperQuery, keyword string) bool {
	// Multi-word keywords ("START TRANSACTION") are matched as substrings;
	// single-word keywords are matched as whole tokens to avoid false
	// positives on identifiers that merely contain the keyword as a
	// substring (e.g. a column named "created_at" should not trip CREATE).
	if strings.Contains(keyword, " ") {
		return strings.Contains(upperQuery, keyword)
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
	return re.MatchString(upperQuery)
}

func suspiciousPattern(normalized string) string {
	switch {
	case controlByteRe.MatchString(normalized):
		return "control byte in query text"
	case unionSelectRe.MatchString(normalized):
		return "UNION ... SELECT"
	case concatFuncRe.MatchString(normalized):
		return "CONCAT(...) usage"
	case infoSchemaRe.MatchString(normalized):
		return "INFORMATION_SCHEMA access"
	case mysqlUserRe.MatchString(normalized):
		return "mysql.user access"
	case intoOutfileRe.MatchString(normalized):
		return "INTO OUTFILE"
	case loadFileRe.MatchString(normalized):
		return "LOAD_FILE(...)"
	case atAtRe.MatchString(normalized):
		return "@@ system variable access"
	case scriptTagRe.MatchString(normalized):
		return "script tag"
	case looseQuoteRe.MatchString(normalized) && strings.Count(normalized, "'")%2 != 0:
		return "unbalanced quote"
	default:
		return ""
	}
}

func (v *Validator) recordValid() {
	v.mu.Lock()
	v.stats.ValidQueries++
	v.mu.Unlock()
}

func (v *Validator) recordBlocked() {
	v.mu.Lock()
	v.stats.BlockedQueries++
	v.mu.Unlock()
}

// Stats returns a snapshot of admission counters.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}
