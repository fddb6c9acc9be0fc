package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AllowsPlainSelect(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate("SELECT id, name FROM customers WHERE id = 1")
	require.True(t, res.IsValid, res.Errors)
	assert.Empty(t, res.Errors)
}

func TestValidate_AllowsShowDescribeExplain(t *testing.T) {
	v := New(DefaultConfig())
	for _, q := range []string{
		"SHOW TABLES",
		"DESCRIBE customers",
		"EXPLAIN SELECT * FROM customers",
		"WITH recent AS (SELECT * FROM customers) SELECT * FROM recent",
	} {
		res := v.Validate(q)
		assert.True(t, res.IsValid, "%s should be valid: %v", q, res.Errors)
	}
}

func TestValidate_BlocksWriteOperations(t *testing.T) {
	v := New(DefaultConfig())
	for _, q := range []string{
		"INSERT INTO customers (name) VALUES ('x')",
		"UPDATE customers SET name = 'x' WHERE id = 1",
		"DELETE FROM customers WHERE id = 1",
		"DROP TABLE customers",
		"CREATE TABLE t (id INT)",
		"TRUNCATE TABLE customers",
		"GRANT ALL ON customers TO 'x'@'%'",
	} {
		res := v.Validate(q)
		assert.False(t, res.IsValid, "%s should be rejected", q)
		assert.NotEmpty(t, res.Errors)
	}
}

func TestValidate_RejectsDeleteUpdateWithoutWhere(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate("DELETE FROM customers")
	assert.False(t, res.IsValid)
}

func TestValidate_RejectsNonSelectLeadingToken(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate("CALL some_procedure()")
	assert.False(t, res.IsValid)
}

func TestValidate_DetectsUnionInjection(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate("SELECT * FROM customers WHERE id = 1 UNION SELECT username, password FROM users")
	assert.False(t, res.IsValid)
}

func TestValidate_DetectsInformationSchemaAccess(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate("SELECT * FROM information_schema.tables")
	assert.False(t, res.IsValid)
}

func TestValidate_WarnsOnSelectStarWithoutLimit(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate("SELECT * FROM customers")
	require.True(t, res.IsValid)
	assert.NotEmpty(t, res.Warnings)
}

func TestValidate_RejectsOverLengthQuery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueryLength = 20
	v := New(cfg)
	res := v.Validate("SELECT * FROM customers WHERE id = 1")
	assert.False(t, res.IsValid)
}

func TestValidate_RejectsEmptyQuery(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate("   ")
	assert.False(t, res.IsValid)
}

func TestAnalyze_ComplexityScoring(t *testing.T) {
	v := New(DefaultConfig())

	low := v.Analyze("SELECT id FROM customers")
	assert.Equal(t, "low", low.EstimatedComplexity)

	high := v.Analyze(`SELECT c.id FROM customers c
		JOIN orders o ON o.customer_id = c.id
		JOIN order_items oi ON oi.order_id = o.id
		WHERE c.id IN (SELECT customer_id FROM vip_customers)
		GROUP BY c.id HAVING COUNT(*) > 1 ORDER BY c.id
		UNION SELECT id FROM archived_customers`)
	assert.Equal(t, "high", high.EstimatedComplexity)
	assert.True(t, high.HasSubqueries)
	assert.True(t, high.HasJoins)
}

func TestAnalyze_ExtractsTables(t *testing.T) {
	v := New(DefaultConfig())
	a := v.Analyze("SELECT o.id FROM orders o JOIN customers c ON c.id = o.customer_id")
	assert.Contains(t, a.Tables, "orders")
	assert.Contains(t, a.Tables, "customers")
}

func TestValidate_StatsTrackCounts(t *testing.T) {
	v := New(DefaultConfig())
	v.Validate("SELECT 1")
	v.Validate("DROP TABLE x")
	stats := v.Stats()
	assert.Equal(t, int64(2), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.ValidQueries)
	assert.Equal(t, int64(1), stats.BlockedQueries)
}
