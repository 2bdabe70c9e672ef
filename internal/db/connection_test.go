package db

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigConnectionStrings(t *testing.T) {
	cfg := Config{Host: "db", Port: 6543, User: "audit", Password: "p@ss word", DBName: "records", SSLMode: "require"}

	assert.Equal(t, "host=db port=6543 user=audit password=p@ss word dbname=records sslmode=require", cfg.DSN())
	assert.Equal(t, "pgx5://audit:p%40ss%20word@db:6543/records?sslmode=require", cfg.MigrationURL())
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	src, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	_, err = src.Next(next)
	assert.Error(t, err, "no migration after the snapshot table")
}
