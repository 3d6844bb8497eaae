package inbox

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupInboxStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sqlx.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewPostgresStore(sqlxDB), mock, sqlxDB
}

func TestPostgresStore_FindOrBuild_ReturnsExistingRow(t *testing.T) {
	store, mock, sqlxDB := setupInboxStore(t)
	defer sqlxDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id, stream, stream_seq, subject, payload, status, received_at, processed_at, last_error, processing_attempts").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "stream", "stream_seq", "subject", "payload",
			"status", "received_at", "processed_at", "last_error", "processing_attempts",
		}).AddRow(1, "e1", nil, nil, "x.y.sync.z", []byte("{}"), "processed", time.Now(), time.Now(), nil, 1))
	mock.ExpectCommit()

	rec, err := store.FindOrBuild(context.Background(), DedupKey{EventID: "e1"}, "x.y.sync.z", []byte("{}"))
	require.NoError(t, err)
	assert.True(t, rec.Processed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindOrBuild_InsertsWhenAbsent(t *testing.T) {
	store, mock, sqlxDB := setupInboxStore(t)
	defer sqlxDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id, stream, stream_seq, subject, payload, status, received_at, processed_at, last_error, processing_attempts").
		WithArgs("e2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO inbox_records").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "stream", "stream_seq", "subject", "payload",
			"status", "received_at", "processed_at", "last_error", "processing_attempts",
		}).AddRow(2, "e2", nil, nil, "x.y.sync.z", []byte("{}"), "received", time.Now(), nil, nil, 0))
	mock.ExpectCommit()

	rec, err := store.FindOrBuild(context.Background(), DedupKey{EventID: "e2"}, "x.y.sync.z", []byte("{}"))
	require.NoError(t, err)
	assert.False(t, rec.Processed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PersistPre_IncrementsAttempts(t *testing.T) {
	store, mock, sqlxDB := setupInboxStore(t)
	defer sqlxDB.Close()

	mock.ExpectExec("UPDATE inbox_records SET status = 'processing'").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := store.PersistPre(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PersistPre_ZeroRowsMeansAlreadyClaimed(t *testing.T) {
	store, mock, sqlxDB := setupInboxStore(t)
	defer sqlxDB.Close()

	mock.ExpectExec("UPDATE inbox_records SET status = 'processing'").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := store.PersistPre(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, claimed, "a concurrent delivery already moved the row out of received")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PersistFailure_SetsLastError(t *testing.T) {
	store, mock, sqlxDB := setupInboxStore(t)
	defer sqlxDB.Close()

	mock.ExpectExec("UPDATE inbox_records SET status = 'failed'").
		WithArgs("boom", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.PersistFailure(context.Background(), 1, "boom")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
