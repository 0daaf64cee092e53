package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classchart/pkg/config"
)

func TestNewSQLiteEnforcesForeignKeys(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := NewSQLite(config.DatabaseConfig{File: file})
	require.NoError(t, err)
	defer db.Close()

	var enabled int
	require.NoError(t, db.Get(&enabled, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, enabled)
	assert.FileExists(t, file)
}

func TestNewSQLRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQL(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestSQLiteDSNRequiresFile(t *testing.T) {
	_, err := SQLiteDSN("")
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "classchart", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=classchart sslmode=disable", dsn)
}
