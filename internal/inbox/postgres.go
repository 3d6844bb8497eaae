package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore implements Store against the inbox_records table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindOrBuild(ctx context.Context, key DedupKey, subject string, payload []byte) (*Record, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("inbox: begin find_or_build tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var existing Record
	var selErr error
	if key.HasEventID() {
		selErr = tx.GetContext(ctx, &existing, `
			SELECT id, event_id, stream, stream_seq, subject, payload, status, received_at, processed_at, last_error, processing_attempts
			FROM inbox_records WHERE event_id = $1 FOR UPDATE`, key.EventID)
	} else {
		selErr = tx.GetContext(ctx, &existing, `
			SELECT id, event_id, stream, stream_seq, subject, payload, status, received_at, processed_at, last_error, processing_attempts
			FROM inbox_records WHERE stream = $1 AND stream_seq = $2 FOR UPDATE`, key.Stream, key.StreamSeq)
	}

	if selErr == nil {
		committed = true
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(selErr, sql.ErrNoRows) {
		return nil, fmt.Errorf("inbox: find existing row: %w", selErr)
	}

	var eventID *string
	var stream *string
	var streamSeq *int64
	if key.HasEventID() {
		eventID = &key.EventID
	} else {
		stream = &key.Stream
		streamSeq = &key.StreamSeq
	}

	var rec Record
	insErr := tx.QueryRowxContext(ctx, `
		INSERT INTO inbox_records (event_id, stream, stream_seq, subject, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, 'received', now())
		RETURNING id, event_id, stream, stream_seq, subject, payload, status, received_at, processed_at, last_error, processing_attempts
	`, eventID, stream, streamSeq, subject, payload).Scan(
		&rec.ID, &rec.EventID, &rec.Stream, &rec.StreamSeq, &rec.Subject, &rec.Payload,
		&rec.Status, &rec.ReceivedAt, &rec.ProcessedAt, &rec.LastError, &rec.ProcessingAttempts,
	)
	if insErr != nil {
		var pqErr *pq.Error
		if errors.As(insErr, &pqErr) && pqErr.Code == "23505" {
			// A concurrent delivery raced us and already inserted this
			// dedup key; fetch what it wrote instead of failing ours.
			return s.refetch(ctx, tx, key)
		}
		return nil, fmt.Errorf("inbox: insert row: %w", insErr)
	}

	committed = true
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// refetch re-reads the row a concurrent FindOrBuild just won the insert
// race for, reusing the transaction that observed the conflict.
func (s *PostgresStore) refetch(ctx context.Context, tx *sqlx.Tx, key DedupKey) (*Record, error) {
	var rec Record
	var err error
	if key.HasEventID() {
		err = tx.GetContext(ctx, &rec, `
			SELECT id, event_id, stream, stream_seq, subject, payload, status, received_at, processed_at, last_error, processing_attempts
			FROM inbox_records WHERE event_id = $1`, key.EventID)
	} else {
		err = tx.GetContext(ctx, &rec, `
			SELECT id, event_id, stream, stream_seq, subject, payload, status, received_at, processed_at, last_error, processing_attempts
			FROM inbox_records WHERE stream = $1 AND stream_seq = $2`, key.Stream, key.StreamSeq)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("inbox: refetch after conflict: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PersistPre only claims the row if it is "received" (first delivery) or
// "failed" (a redelivery after a handler failure): the WHERE clause makes
// the transition itself the concurrency guard, so two overlapping
// deliveries of the same event_id (e.g. an ack_wait-expiry redelivery
// landing on a second worker while the first is still handling it) can't
// both pass find_or_build's processed? check and then both run the
// handler. Whichever call affects zero rows lost the race and must not
// invoke the handler.
func (s *PostgresStore) PersistPre(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inbox_records SET status = 'processing', processing_attempts = processing_attempts + 1
		WHERE id = $1 AND status IN ('received', 'failed')`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) PersistPost(ctx context.Context, id int64, processedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE inbox_records SET status = 'processed', processed_at = $1 WHERE id = $2`, processedAt, id)
	return err
}

func (s *PostgresStore) PersistFailure(ctx context.Context, id int64, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE inbox_records SET status = 'failed', last_error = $1 WHERE id = $2`, lastError, id)
	return err
}
