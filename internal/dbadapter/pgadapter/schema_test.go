package pgadapter

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTables_PopulatesRowCountAndSize(t *testing.T) {
	a, mock := newMockedAdapter(t)
	analyzer := &schemaAnalyzer{adapter: a}

	rows := pgxmock.NewRows([]string{"table_name", "row_estimate", "size_bytes"}).
		AddRow("customers", int64(1200), int64(81920))
	mock.ExpectQuery("SELECT t.table_name").WithArgs(pgxmock.AnyArg()).WillReturnRows(rows)

	tables, err := analyzer.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "customers", tables[0].Name)
	require.NotNil(t, tables[0].RowCount)
	assert.Equal(t, int64(1200), *tables[0].RowCount)
}

func TestIndexes_GroupsColumnsByIndexNamePreservingOrder(t *testing.T) {
	a, mock := newMockedAdapter(t)
	analyzer := &schemaAnalyzer{adapter: a}

	rows := pgxmock.NewRows([]string{"index_name", "column_name", "indisunique", "indisprimary", "index_type"}).
		AddRow("customers_pkey", "id", true, true, "btree").
		AddRow("idx_name_email", "name", false, false, "btree").
		AddRow("idx_name_email", "email", false, false, "btree")
	mock.ExpectQuery("SELECT i.relname").WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnRows(rows)

	indexes, err := analyzer.indexes(context.Background(), "customers")
	require.NoError(t, err)
	require.Len(t, indexes, 2)
	assert.Equal(t, "customers_pkey", indexes[0].Name)
	assert.True(t, indexes[0].IsPrimary)
	assert.Equal(t, []string{"name", "email"}, indexes[1].Columns)
}

func TestForeignKeys_GroupsColumnsByConstraintName(t *testing.T) {
	a, mock := newMockedAdapter(t)
	analyzer := &schemaAnalyzer{adapter: a}

	rows := pgxmock.NewRows([]string{
		"constraint_name", "column_name", "referenced_table", "referenced_column", "update_rule", "delete_rule",
	}).AddRow("fk_orders_customer", "customer_id", "customers", "id", "CASCADE", "RESTRICT")
	mock.ExpectQuery("SELECT tc.constraint_name").WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnRows(rows)

	fks, err := analyzer.foreignKeys(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "customers", fks[0].ReferencedTable)
	assert.Equal(t, "CASCADE", fks[0].OnUpdate)
}

func TestGetRelationships_DedupsReferencedTables(t *testing.T) {
	a, mock := newMockedAdapter(t)
	analyzer := &schemaAnalyzer{adapter: a}

	mock.ExpectQuery("SELECT t.table_name").WithArgs(pgxmock.AnyArg()).WillReturnRows(
		pgxmock.NewRows([]string{"table_name", "row_estimate", "size_bytes"}).
			AddRow("orders", int64(10), int64(100)))
	mock.ExpectQuery("SELECT tc.constraint_name").WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnRows(
		pgxmock.NewRows([]string{
			"constraint_name", "column_name", "referenced_table", "referenced_column", "update_rule", "delete_rule",
		}).
			AddRow("fk1", "customer_id", "customers", "id", "CASCADE", "RESTRICT").
			AddRow("fk2", "warehouse_id", "customers", "id", "CASCADE", "RESTRICT"))

	rel, err := analyzer.GetRelationships(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"public.customers"}, rel["public.orders"])
}

func TestParseFunctionArguments_SplitsNameTypeModePairs(t *testing.T) {
	params := parseFunctionArguments("customer_id integer, OUT total numeric, limit_count integer DEFAULT 10")
	require.Len(t, params, 3)
	assert.Equal(t, "customer_id", params[0].Name)
	assert.Equal(t, "integer", params[0].Type)
	assert.Equal(t, "IN", params[0].Mode)
	assert.Equal(t, "OUT", params[1].Mode)
	assert.Equal(t, "total", params[1].Name)
	assert.Equal(t, "limit_count", params[2].Name)
}

func TestParseFunctionArguments_EmptyStringReturnsNil(t *testing.T) {
	assert.Nil(t, parseFunctionArguments(""))
}
