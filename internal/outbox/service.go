package outbox

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/syncbridge/eventbridge/internal/envelope"
	"github.com/syncbridge/eventbridge/internal/subject"
)

// PublishInput is the caller-facing request to enqueue an event, per
// spec.md section 4.3's Publish API.
type PublishInput struct {
	ResourceType string
	ResourceID   string
	EventType    string
	Payload      any
	EventID      string
	Producer     string
	TraceID      string
}

// Service is the entry point business code calls to enqueue an event
// transactionally alongside its own write.
type Service struct {
	store   Store
	subject subject.Subject
}

// NewService binds a Store to the destination subject events will be
// published on.
func NewService(store Store, dest subject.Subject) *Service {
	return &Service{store: store, subject: dest}
}

// Enqueue builds the envelope and inserts the outbox row inside tx, so the
// caller's business write and the publish obligation commit together.
func (s *Service) Enqueue(ctx context.Context, tx *sqlx.Tx, in PublishInput) (PublishResult, error) {
	env, err := envelope.New(envelope.Params{
		EventID:      in.EventID,
		EventType:    in.EventType,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Producer:     in.Producer,
		TraceID:      in.TraceID,
		Payload:      in.Payload,
	})
	if err != nil {
		return PublishResult{}, err
	}

	payload, err := env.ToJSON()
	if err != nil {
		return PublishResult{}, err
	}

	rec := &Record{
		EventID:      env.EventID,
		Subject:      s.subject.String(),
		Payload:      payload,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		EventType:    in.EventType,
	}
	if err := s.store.Insert(ctx, tx, rec); err != nil {
		return PublishResult{Success: false, EventID: env.EventID, Subject: s.subject.String(), Err: err}, err
	}

	return PublishResult{Success: true, EventID: env.EventID, Subject: s.subject.String()}, nil
}
