package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sqlx.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewPostgresStore(sqlxDB), mock, sqlxDB
}

func TestPostgresStore_ClaimBatch_ReturnsClaimedRows(t *testing.T) {
	store, mock, sqlxDB := setupStore(t)
	defer sqlxDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM outbox_records").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery("UPDATE outbox_records").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_id", "subject", "payload", "resource_type", "resource_id",
			"event_type", "status", "attempts", "last_error", "enqueued_at", "sent_at",
		}).
			AddRow(1, "e1", "x.y.sync.z", []byte("{}"), "order", "r1", "created", "publishing", 1, nil, time.Now(), nil).
			AddRow(2, "e2", "x.y.sync.z", []byte("{}"), "order", "r2", "created", "publishing", 1, nil, time.Now(), nil))
	mock.ExpectCommit()

	records, err := store.ClaimBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimBatch_EmptyReturnsNil(t *testing.T) {
	store, mock, sqlxDB := setupStore(t)
	defer sqlxDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM outbox_records").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	records, err := store.ClaimBatch(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkSent(t *testing.T) {
	store, mock, sqlxDB := setupStore(t)
	defer sqlxDB.Close()

	mock.ExpectExec("UPDATE outbox_records SET status = 'sent'").
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MarkSent(context.Background(), 1, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Requeue_NoRowsIsError(t *testing.T) {
	store, mock, sqlxDB := setupStore(t)
	defer sqlxDB.Close()

	mock.ExpectExec("UPDATE outbox_records SET status = 'pending'").
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Requeue(context.Background(), 99)
	assert.Error(t, err)
}
