package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/persistence"
)

func newMockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepo(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleRows() []persistence.Row {
	minute := time.Date(2023, 11, 14, 22, 13, 0, 0, time.UTC)
	return []persistence.Row{
		{Symbol: "MSFT", Timestamp: minute, Open: 300, High: 302, Low: 298, Close: 301, Volume: 1500},
		{Symbol: "AAPL", Timestamp: minute, Open: 150, High: 151, Low: 149.5, Close: 150.5, Volume: 900},
	}
}

func TestUpsertBatchStatementAndArgs(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sampleRows()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ohlcv_1min .+ ON CONFLICT \(symbol, timestamp\) DO UPDATE SET`).
		WithArgs(
			"MSFT", rows[0].Timestamp, 300.0, 302.0, 298.0, 301.0, int64(1500),
			"AAPL", rows[1].Timestamp, 150.0, 151.0, 149.5, 150.5, int64(900),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.UpsertBatch(context.Background(), rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchMergeClauses(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`GREATEST\(ohlcv_1min\.high, EXCLUDED\.high\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpsertBatch(context.Background(), sampleRows()[:1]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)
	require.NoError(t, repo.UpsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ohlcv_1min`).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := repo.UpsertBatch(context.Background(), sampleRows())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS ohlcv_1min`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectPing()
	assert.NoError(t, repo.Ping(context.Background()))
}
