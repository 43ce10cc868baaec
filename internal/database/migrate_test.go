package database

import (
	"context"
	"log/slog"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_crawl.sql", "002_product_record.sql", "003_outbox.sql"}, names)
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	t.Run("fresh database", func(t *testing.T) {
		db, mock := newMockDB(t)
		names, err := migrationNames()
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock")).WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectQuery("SELECT filename FROM schema_migrations").
			WillReturnRows(pgxmock.NewRows([]string{"filename"}))
		for _, name := range names {
			mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
			mock.ExpectExec("INSERT INTO schema_migrations").
				WithArgs(name).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock")).WillReturnResult(pgxmock.NewResult("SELECT", 1))

		require.NoError(t, Migrate(ctx, db, logger))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already applied", func(t *testing.T) {
		db, mock := newMockDB(t)
		names, err := migrationNames()
		require.NoError(t, err)

		rows := pgxmock.NewRows([]string{"filename"})
		for _, name := range names {
			rows.AddRow(name)
		}

		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock")).WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectQuery("SELECT filename FROM schema_migrations").WillReturnRows(rows)
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock")).WillReturnResult(pgxmock.NewResult("SELECT", 1))

		require.NoError(t, Migrate(ctx, db, logger))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
