package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return Wrap(sqlDB, zap.NewNop()), mock
}

// timeArg matches a time argument by instant
type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	got, ok := v.(time.Time)
	return ok && got.Equal(time.Time(a))
}

func TestRevocationRepository_ValidAfter(t *testing.T) {
	query := regexp.QuoteMeta("SELECT valid_after FROM token_revocations WHERE subject_id = $1")

	t.Run("returns stored cutoff", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRevocationRepository(db, zap.NewNop())
		cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		mock.ExpectQuery(query).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"valid_after"}).AddRow(cutoff))

		got, err := repo.ValidAfter(context.Background(), "u1")

		require.NoError(t, err)
		assert.True(t, cutoff.Equal(got))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row means never revoked", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRevocationRepository(db, zap.NewNop())

		mock.ExpectQuery(query).WithArgs("u2").WillReturnError(sql.ErrNoRows)

		got, err := repo.ValidAfter(context.Background(), "u2")

		require.NoError(t, err)
		assert.True(t, got.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRevocationRepository(db, zap.NewNop())

		mock.ExpectQuery(query).WithArgs("u3").WillReturnError(errors.New("connection reset"))

		_, err := repo.ValidAfter(context.Background(), "u3")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get revocation")
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestRevocationRepository_Revoke(t *testing.T) {
	upsert := regexp.QuoteMeta("INSERT INTO token_revocations (subject_id, valid_after, updated_at)")

	t.Run("upserts truncated cutoff", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRevocationRepository(db, zap.NewNop())
		at := time.Date(2026, 3, 1, 12, 0, 0, 987654321, time.UTC)

		mock.ExpectExec(upsert).
			WithArgs("u1", timeArg(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Revoke(context.Background(), "u1", at)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty subject", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRevocationRepository(db, zap.NewNop())

		err := repo.Revoke(context.Background(), "", time.Now())

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRevocationRepository(db, zap.NewNop())

		mock.ExpectExec(upsert).WillReturnError(errors.New("read-only transaction"))

		err := repo.Revoke(context.Background(), "u1", time.Now())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to revoke tokens")
	})
}

func TestDB_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		assert.NoError(t, db.HealthCheck(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping fails", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err := db.HealthCheck(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "database health check failed")
	})
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS token_revocations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
