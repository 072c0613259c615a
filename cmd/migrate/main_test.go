package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)

	_, err = migrationFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestShippedMigrationsPresent(t *testing.T) {
	files, err := migrationFiles("../../migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_newsletters.sql", "002_newsletter_sessions.sql"}, files)
}

func TestApply(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.NoError(t, apply(context.Background(), db, "CREATE TABLE t (id INT)"))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE u").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	assert.ErrorContains(t, apply(context.Background(), db, "CREATE TABLE u"), "syntax error")

	assert.NoError(t, mock.ExpectationsWereMet())
}
