package pgadapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
)

func TestIsNumericKind_ClassifiesCorrectly(t *testing.T) {
	assert.True(t, isNumericKind(dbadapter.KindInteger))
	assert.True(t, isNumericKind(dbadapter.KindDecimal))
	assert.True(t, isNumericKind(dbadapter.KindFloat))
	assert.False(t, isNumericKind(dbadapter.KindString))
	assert.False(t, isNumericKind(dbadapter.KindDate))
}

func TestAssessQuality_FlagsHighNullColumns(t *testing.T) {
	quality := assessQuality([]dbadapter.ColumnProfile{
		{ColumnName: "middle_name", NullPercentage: 80},
		{ColumnName: "id", NullPercentage: 0},
	}, 0)
	assert.Len(t, quality.Issues, 1)
	assert.Contains(t, quality.Issues[0], "middle_name")
	assert.Less(t, quality.OverallScore, 100.0)
}

func TestAssessQuality_NoIssuesScoresFull(t *testing.T) {
	quality := assessQuality([]dbadapter.ColumnProfile{
		{ColumnName: "id", NullPercentage: 0},
	}, 0)
	assert.Empty(t, quality.Issues)
	assert.Equal(t, 100.0, quality.OverallScore)
}

func TestAssessQuality_LargeTableRecommendsPartitioning(t *testing.T) {
	quality := assessQuality([]dbadapter.ColumnProfile{
		{ColumnName: "id", NullPercentage: 0},
	}, largeTableSizeBytes+1)
	assert.Contains(t, strings.Join(quality.Recommendations, "\n"), "partition")
}

func TestQuoteIdent_DoublesEmbeddedQuotes(t *testing.T) {
	assert.Equal(t, `"customers"`, quoteIdent("customers"))
	assert.Equal(t, `"weird""name"`, quoteIdent(`weird"name`))
}
