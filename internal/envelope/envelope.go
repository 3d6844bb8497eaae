// Package envelope implements the event envelope wire format from spec.md
// sections 3 and 6: an immutable, JSON-codable value identified by its
// event_id alone.
package envelope

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current envelope schema version.
const SchemaVersion = 1

// Envelope is the immutable wire-format event. Construct with New; once
// built, treat every field as read-only — callers that need a variant
// should build a new Envelope rather than mutate this one.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Producer      string          `json:"producer"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	TraceID       string          `json:"trace_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Params holds the inputs to New. EventID, TraceID and OccurredAt are
// generated when absent; ResourceID and Producer stay empty when absent.
// New does not check that EventType or ResourceType are set.
type Params struct {
	EventID      string
	EventType    string
	ResourceType string
	ResourceID   string
	Producer     string
	OccurredAt   time.Time
	TraceID      string
	Payload      any
}

// New constructs a frozen Envelope, filling EventID/TraceID with generated
// UUIDs and OccurredAt with the current UTC time when the caller left them
// empty, per spec.md section 6.
func New(p Params) (Envelope, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return Envelope{}, err
	}

	eventID := p.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	traceID := p.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	} else {
		occurredAt = occurredAt.UTC()
	}

	return Envelope{
		SchemaVersion: SchemaVersion,
		EventID:       eventID,
		EventType:     p.EventType,
		Producer:      p.Producer,
		ResourceType:  p.ResourceType,
		ResourceID:    p.ResourceID,
		OccurredAt:    occurredAt,
		TraceID:       traceID,
		Payload:       payload,
	}, nil
}

// Equal defines envelope equality on event_id alone, per spec.md section 3.
func (e Envelope) Equal(other Envelope) bool {
	return e.EventID == other.EventID
}

// ToJSON renders the wire-format bytes for this envelope.
func (e Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses wire-format bytes into an Envelope. Parsing is strict:
// malformed JSON is returned as an error for the caller to route to the DLQ,
// per spec.md section 4.4 step 2.
func FromJSON(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var e Envelope
	if err := dec.Decode(&e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// UnmarshalPayload decodes the envelope's raw payload into v.
func (e Envelope) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}
