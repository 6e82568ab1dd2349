package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/pkg/config"
)

func TestDSN(t *testing.T) {
	pg, err := DSN(config.DatabaseConfig{Driver: config.DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", Name: "bookhub", SSLMode: "disable"})
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=bookhub sslmode=disable", pg)

	my, err := DSN(config.DatabaseConfig{Driver: config.DriverMySQL, Host: "db", Port: 3306, User: "u", Password: "p", Name: "bookhub"})
	require.NoError(t, err)
	assert.Contains(t, my, "u:p@tcp(db:3306)/bookhub")
	assert.Contains(t, my, "parseTime=true")

	lite, err := DSN(config.DatabaseConfig{Driver: config.DriverSQLite})
	require.NoError(t, err)
	assert.Contains(t, lite, ":memory:")

	override, err := DSN(config.DatabaseConfig{Driver: config.DriverPostgres, DSN: "postgres://x"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", override)

	_, err = DSN(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: config.DriverSQLite})
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.Get(&one, "SELECT 1"))
	assert.Equal(t, 1, one)
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: config.DriverSQLite})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE things (name TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO things (name) VALUES ('a')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO things (name) VALUES ('a')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(fmt.Errorf("create thing: %w", err)))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}
