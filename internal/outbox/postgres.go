package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore implements Store against the outbox_records table, using
// the same sqlx idiom the teacher's review repository uses.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore builds a PostgresStore over an existing pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, tx *sqlx.Tx, rec *Record) error {
	query := `
		INSERT INTO outbox_records (event_id, subject, payload, resource_type, resource_id, event_type, status, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', now())
		RETURNING id, enqueued_at
	`
	return tx.QueryRowxContext(
		ctx, query,
		rec.EventID, rec.Subject, rec.Payload, rec.ResourceType, rec.ResourceID, rec.EventType,
	).Scan(&rec.ID, &rec.EnqueuedAt)
}

// ClaimBatch atomically moves up to limit pending rows to publishing,
// ordered (enqueued_at ASC, id ASC), per spec.md section 4.3. The
// SELECT ... FOR UPDATE SKIP LOCKED clause lets multiple publisher workers
// claim disjoint batches concurrently without blocking each other.
func (s *PostgresStore) ClaimBatch(ctx context.Context, limit int) ([]*Record, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("outbox: begin claim tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var ids []int64
	selectQuery := `
		SELECT id FROM outbox_records
		WHERE status = 'pending'
		ORDER BY enqueued_at ASC, id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	if err := tx.SelectContext(ctx, &ids, selectQuery, limit); err != nil {
		return nil, fmt.Errorf("outbox: select claim batch: %w", err)
	}
	if len(ids) == 0 {
		committed = true
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	updateQuery := `
		UPDATE outbox_records
		SET status = 'publishing', attempts = attempts + 1
		WHERE id = ANY($1)
		RETURNING id, event_id, subject, payload, resource_type, resource_id, event_type, status, attempts, last_error, enqueued_at, sent_at
	`
	var records []*Record
	if err := tx.SelectContext(ctx, &records, updateQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("outbox: claim batch: %w", err)
	}

	committed = true
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("outbox: commit claim tx: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `UPDATE outbox_records SET status = 'sent', sent_at = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, query, sentAt, id)
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE outbox_records SET status = 'failed', last_error = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, query, lastError, id)
	return err
}

func (s *PostgresStore) ResetToPending(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE outbox_records SET status = 'pending', last_error = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, query, lastError, id)
	return err
}

func (s *PostgresStore) Requeue(ctx context.Context, id int64) error {
	query := `UPDATE outbox_records SET status = 'pending', attempts = 0, last_error = NULL WHERE id = $1 AND status = 'failed'`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) Stale(ctx context.Context, olderThan time.Duration, limit int) ([]*Record, error) {
	query := `
		SELECT id, event_id, subject, payload, resource_type, resource_id, event_type, status, attempts, last_error, enqueued_at, sent_at
		FROM outbox_records
		WHERE status = 'pending' AND enqueued_at < $1
		ORDER BY enqueued_at ASC
		LIMIT $2
	`
	var records []*Record
	cutoff := time.Now().Add(-olderThan)
	err := s.db.SelectContext(ctx, &records, query, cutoff, limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

