// Package inbox implements the Inbox Processor (spec.md section 4.5):
// ensuring a stream message's business effects occur at most once, even
// across retries and process restarts.
package inbox

import (
	"context"
	"time"
)

// Status is the lifecycle state of an InboxRecord.
type Status string

const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// DedupKey identifies a delivery for inbox purposes: either an event_id,
// or a (stream, stream_seq) pair when the event_id column is unavailable,
// per spec.md section 3's InboxRecord.
type DedupKey struct {
	EventID   string
	Stream    string
	StreamSeq int64
}

// HasEventID reports whether this key dedups on event_id rather than
// (stream, stream_seq).
func (k DedupKey) HasEventID() bool { return k.EventID != "" }

// Record is a durable row tracking one accepted incoming delivery.
type Record struct {
	ID                  int64      `db:"id"`
	EventID             *string    `db:"event_id"`
	Stream              *string    `db:"stream"`
	StreamSeq           *int64     `db:"stream_seq"`
	Subject             string     `db:"subject"`
	Payload             []byte     `db:"payload"`
	Status              Status     `db:"status"`
	ReceivedAt          time.Time  `db:"received_at"`
	ProcessedAt         *time.Time `db:"processed_at"`
	LastError           *string    `db:"last_error"`
	ProcessingAttempts  int        `db:"processing_attempts"`
}

// Processed reports whether this row represents a completed delivery.
func (r *Record) Processed() bool {
	return r.Status == StatusProcessed && r.ProcessedAt != nil
}

// Store is the typed storage interface for inbox records.
type Store interface {
	// FindOrBuild returns the existing row for key, or inserts and returns
	// a new "received" row if none exists.
	FindOrBuild(ctx context.Context, key DedupKey, subject string, payload []byte) (*Record, error)
	// PersistPre conditionally transitions received or failed ->
	// processing, incrementing processing_attempts, and reports whether
	// this call won the claim. A false return with a nil error means the
	// row is in neither state (e.g. a concurrent redelivery already moved
	// it to "processing") and the caller must not run the handler.
	PersistPre(ctx context.Context, id int64) (bool, error)
	// PersistPost transitions processing -> processed.
	PersistPost(ctx context.Context, id int64, processedAt time.Time) error
	// PersistFailure transitions processing -> failed with lastError.
	PersistFailure(ctx context.Context, id int64, lastError string) error
}
