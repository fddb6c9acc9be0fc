package nlquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

func schema() *dbadapter.SchemaInfo {
	return &dbadapter.SchemaInfo{
		Tables: []dbadapter.TableInfo{
			{
				Name: "customers",
				Columns: []dbadapter.ColumnInfo{
					{Name: "id", Type: dbadapter.KindInteger},
					{Name: "status", Type: dbadapter.KindString},
					{Name: "email", Type: dbadapter.KindString},
				},
			},
			{Name: "orders", Columns: []dbadapter.ColumnInfo{{Name: "id", Type: dbadapter.KindInteger}}},
		},
	}
}

func TestGenerate_CountQuestionProducesCountSQL(t *testing.T) {
	g := New()
	result, err := g.Generate("how many customers are there", schema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM customers", result.SQL)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestGenerate_EqualityFilterMatchesKnownColumn(t *testing.T) {
	g := New()
	result, err := g.Generate("show customers where status is active", schema())
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "status = 'active'")
}

func TestGenerate_ListQuestionAppliesDefaultLimit(t *testing.T) {
	g := New()
	result, err := g.Generate("list all orders", schema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders LIMIT 100", result.SQL)
}

func TestGenerate_ExplicitLimitIsHonored(t *testing.T) {
	g := New()
	result, err := g.Generate("show top 5 orders", schema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders LIMIT 5", result.SQL)
}

func TestGenerate_UnknownTableIsRejected(t *testing.T) {
	g := New()
	_, err := g.Generate("how many widgets are there", schema())
	require.Error(t, err)
}

func TestGenerate_EmptyQuestionIsRejected(t *testing.T) {
	g := New()
	_, err := g.Generate("", schema())
	require.Error(t, err)
}

func TestGenerate_NoSchemaContextIsRejected(t *testing.T) {
	g := New()
	_, err := g.Generate("how many customers", nil)
	require.Error(t, err)
}

func TestGenerate_UnrecognizedPhrasingFallsBackToBoundedSample(t *testing.T) {
	g := New()
	result, err := g.Generate("tell me about customers", schema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM customers LIMIT 100", result.SQL)
	assert.Less(t, result.Confidence, 0.5)
}
