package config

import (
	"testing"

	"github.com/lordbasex/dbbroker/internal/dbadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_LegacyMode(t *testing.T) {
	environ := []string{
		"MYSQL_HOST=db1.internal",
		"MYSQL_PORT=3306",
		"MYSQL_USER=app",
		"MYSQL_PASSWORD=secret",
		"MYSQL_DATABASE=appdb",
		"POSTGRES_HOST=db2.internal",
		"POSTGRES_USER=app",
		"POSTGRES_DATABASE=appdb",
	}

	resolved, err := Load("", environ)
	require.NoError(t, err)
	require.Contains(t, resolved.Pools, "mysql")
	require.Contains(t, resolved.Pools, "postgresql")

	mysql := resolved.Pools["mysql"]
	assert.Equal(t, "db1.internal", mysql.Host)
	assert.Equal(t, 3306, mysql.Port)
	assert.Equal(t, "appdb", mysql.Database)

	pg := resolved.Pools["postgresql"]
	assert.Equal(t, "db2.internal", pg.Host)
	assert.Equal(t, 5432, pg.Port)
}

func TestLoad_LegacyModeNoHostsIsEmptyDocument(t *testing.T) {
	_, err := Load("", nil)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesCreateAdditionalPool(t *testing.T) {
	environ := []string{
		"MYSQL_HOST=db1.internal",
		"MYSQL_DATABASE=appdb",
		"DB_ANALYTICS_HOST=analytics.internal",
		"DB_ANALYTICS_PORT=5432",
		"DB_ANALYTICS_TYPE=postgresql",
		"DB_ANALYTICS_DATABASE=analytics",
		"DB_ANALYTICS_TAGS=reporting, readonly",
		"DB_DEFAULT_CONNECTION=analytics",
	}

	resolved, err := Load("", environ)
	require.NoError(t, err)
	require.Contains(t, resolved.Pools, "analytics")
	analytics := resolved.Pools["analytics"]
	assert.Equal(t, dbadapter.PostgreSQL, analytics.Type)
	assert.Equal(t, []string{"reporting", "readonly"}, analytics.Tags)
	assert.Equal(t, "analytics", resolved.DefaultConnection)
}

func TestLoad_EnvOverrideOnExistingPool(t *testing.T) {
	environ := []string{
		"MYSQL_HOST=db1.internal",
		"MYSQL_DATABASE=appdb",
		"DB_MYSQL_CONNECTION_LIMIT=50",
	}
	resolved, err := Load("", environ)
	require.NoError(t, err)
	assert.Equal(t, 50, resolved.Pools["mysql"].ConnectionLimit)
}

func TestDocument_ResolveRejectsUnknownDefaultConnection(t *testing.T) {
	doc := Document{
		Connections: map[string]PoolEntry{
			"main": {Name: "main", Host: "h", Database: "d"},
		},
		DefaultConnection: "missing",
	}
	_, err := doc.resolve()
	assert.Error(t, err)
}

func TestDocument_ResolveRejectsMissingHost(t *testing.T) {
	doc := Document{
		Connections: map[string]PoolEntry{
			"main": {Name: "main", Database: "d"},
		},
	}
	_, err := doc.resolve()
	assert.Error(t, err)
}

func TestPoolEntry_TypeResolutionLeftUnsetWhenAbsent(t *testing.T) {
	doc := Document{
		Connections: map[string]PoolEntry{
			"main": {Name: "main", Host: "h", Port: 5432, Database: "d"},
		},
	}
	resolved, err := doc.resolve()
	require.NoError(t, err)
	assert.Equal(t, dbadapter.Type(""), resolved.Pools["main"].Type)
}
