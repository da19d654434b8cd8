package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMigrationPart(t *testing.T) {
	content := `
-- +migrate Up
CREATE TABLE transactions (id uuid);
CREATE INDEX idx ON transactions(id);

-- +migrate Down
DROP TABLE transactions;
`
	t.Run("Extract Up", func(t *testing.T) {
		up := extractMigrationPart(content, "Up")
		assert.Contains(t, up, "CREATE TABLE transactions")
		assert.Contains(t, up, "CREATE INDEX idx")
		assert.NotContains(t, up, "DROP TABLE transactions")
		assert.NotContains(t, up, "-- +migrate Up")
	})

	t.Run("Extract Down", func(t *testing.T) {
		down := extractMigrationPart(content, "Down")
		assert.Contains(t, down, "DROP TABLE transactions")
		assert.NotContains(t, down, "CREATE TABLE transactions")
	})
}

func TestRunMigrationsUp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tmpDir := t.TempDir()
	fileName := "0001_create_transactions.sql"
	content := "-- +migrate Up\nCREATE TABLE transactions (id uuid);"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, fileName), []byte(content), 0644))

	t.Run("Applies New Migration", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(fileName).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`CREATE TABLE transactions`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO schema_migrations`).
			WithArgs(fileName).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := runMigrationsUp(db, []string{filepath.Join(tmpDir, fileName)})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Skips Applied Migration", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(fileName).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := runMigrationsUp(db, []string{filepath.Join(tmpDir, fileName)})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRunMigrationsDown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tmpDir := t.TempDir()
	fileName := "0001_create_transactions.sql"
	content := "-- +migrate Up\nCREATE TABLE transactions (id uuid);\n-- +migrate Down\nDROP TABLE transactions;"
	filePath := filepath.Join(tmpDir, fileName)
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))

	t.Run("Rolls Back Last Migration", func(t *testing.T) {
		mock.ExpectQuery(`SELECT version FROM schema_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(fileName))
		mock.ExpectExec(`DROP TABLE transactions`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM schema_migrations`).
			WithArgs(fileName).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := runMigrationsDown(db, []string{filePath})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nothing To Roll Back", func(t *testing.T) {
		mock.ExpectQuery(`SELECT version FROM schema_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}))

		err := runMigrationsDown(db, []string{filePath})
		assert.NoError(t, err)
	})

	t.Run("Missing Migration File", func(t *testing.T) {
		mock.ExpectQuery(`SELECT version FROM schema_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0999_gone.sql"))

		err := runMigrationsDown(db, []string{filePath})
		assert.ErrorContains(t, err, "migration file not found")
	})
}
