package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchema(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, filepath.Join(dir, DBFileName))

	for _, table := range []string{"schema_meta", "processed_messages", "delivery_records"} {
		var name string
		err := db.Conn().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		require.NoError(t, err, "table %s must exist", table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening an existing database must not re-run migrations destructively.
	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	var version string
	err = db.Conn().QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	_, err = db.Conn().Exec(`UPDATE schema_meta SET value = '99' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than runtime version")
}
