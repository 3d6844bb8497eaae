// Package outbox implements the transactional outbox store and publisher
// pipeline (spec.md section 4.3): a durable local queue of events awaiting
// publish, drained at-least-once onto the JetStream stream.
package outbox

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Status is the lifecycle state of an OutboxRecord.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPublishing Status = "publishing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Record is a durable row created in the same local transaction as the
// business write it accompanies.
type Record struct {
	ID           int64      `db:"id"`
	EventID      string     `db:"event_id"`
	Subject      string     `db:"subject"`
	Payload      []byte     `db:"payload"`
	ResourceType string     `db:"resource_type"`
	ResourceID   string     `db:"resource_id"`
	EventType    string     `db:"event_type"`
	Status       Status     `db:"status"`
	Attempts     int        `db:"attempts"`
	LastError    *string    `db:"last_error"`
	EnqueuedAt   time.Time  `db:"enqueued_at"`
	SentAt       *time.Time `db:"sent_at"`
}

// Store is the typed storage interface for outbox records, replacing the
// dynamic column probing spec.md's Design Notes flag as a redesign target.
type Store interface {
	// Insert persists a new pending record inside the caller's transaction,
	// so the business write and the outbox row commit or roll back together.
	Insert(ctx context.Context, tx *sqlx.Tx, rec *Record) error
	// ClaimBatch atomically transitions up to limit pending rows (ordered
	// enqueued_at ASC, id ASC) to publishing, incrementing attempts, and
	// returns the claimed rows.
	ClaimBatch(ctx context.Context, limit int) ([]*Record, error)
	// MarkSent transitions a claimed row to sent.
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	// MarkFailed transitions a claimed row to failed with a terminal error.
	MarkFailed(ctx context.Context, id int64, lastError string) error
	// ResetToPending reverts a claimed row to pending after a transient
	// publish failure, leaving attempts as already incremented by the claim.
	ResetToPending(ctx context.Context, id int64, lastError string) error
	// Requeue resets a failed record back to pending with attempts=0, per
	// spec.md's "failed may be reset to pending with attempts=0".
	Requeue(ctx context.Context, id int64) error
	// Stale returns pending records older than the given age threshold.
	Stale(ctx context.Context, olderThan time.Duration, limit int) ([]*Record, error)
}
