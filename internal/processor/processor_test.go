package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
)

type fakeDlq struct {
	published []DlqPayload
	err       error
}

func (f *fakeDlq) PublishDlq(payload DlqPayload) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, payload)
	return nil
}

func validEnvelopeJSON() []byte {
	return []byte(`{"schema_version":1,"event_id":"e1","event_type":"t","producer":"p","resource_type":"r","occurred_at":"2026-01-01T00:00:00Z","trace_id":"tr1","payload":{}}`)
}

func TestProcessor_HandlerSuccess_ReturnsAck(t *testing.T) {
	p := NewProcessor(Config{MaxDeliver: 5}, nil, testLogger())
	result := p.Process(RawMessage{Subject: "s", Data: validEnvelopeJSON(), NumDelivered: 1}, func(e Event) error {
		return nil
	})
	assert.Equal(t, ActionAck, result.Action)
}

func TestProcessor_ParseFailure_DlqSucceeds_Acks(t *testing.T) {
	dlq := &fakeDlq{}
	p := NewProcessor(Config{MaxDeliver: 5}, dlq, testLogger())
	result := p.Process(RawMessage{Subject: "s", Data: []byte("{not json"), NumDelivered: 1}, func(e Event) error {
		t.Fatal("handler must not run on parse failure")
		return nil
	})
	require.Equal(t, ActionDlqThenAck, result.Action)
	require.Len(t, dlq.published, 1)
	assert.Nil(t, dlq.published[0].Envelope)
	assert.Equal(t, []byte("{not json"), dlq.published[0].RawPayload)
}

func TestProcessor_ParseFailure_DlqFails_NaksWithDelay(t *testing.T) {
	dlq := &fakeDlq{err: errors.New("dlq down")}
	p := NewProcessor(Config{MaxDeliver: 5}, dlq, testLogger())
	result := p.Process(RawMessage{Subject: "s", Data: []byte("{not json"), NumDelivered: 1}, func(e Event) error {
		return nil
	})
	assert.Equal(t, ActionDlqThenNak, result.Action)
	assert.Greater(t, result.NakDelay, time.Duration(0))
}

func TestProcessor_HandlerFailure_BelowMaxDeliver_NaksWithBackoff(t *testing.T) {
	p := NewProcessor(Config{MaxDeliver: 5}, nil, testLogger())
	result := p.Process(RawMessage{Subject: "s", Data: validEnvelopeJSON(), NumDelivered: 2}, func(e Event) error {
		return errors.New("handler failed")
	})
	assert.Equal(t, ActionNak, result.Action)
	assert.Greater(t, result.NakDelay, time.Duration(0))
}

func TestProcessor_HandlerFailure_AtMaxDeliver_RoutesToDlq(t *testing.T) {
	dlq := &fakeDlq{}
	p := NewProcessor(Config{MaxDeliver: 3}, dlq, testLogger())
	result := p.Process(RawMessage{Subject: "s", Data: validEnvelopeJSON(), NumDelivered: 3}, func(e Event) error {
		return errors.New("still failing")
	})
	assert.Equal(t, ActionDlqThenAck, result.Action)
	require.Len(t, dlq.published, 1)
	assert.NotNil(t, dlq.published[0].Envelope, "a poison message that parsed fine must carry the structured envelope, not raw bytes")
	assert.Nil(t, dlq.published[0].RawPayload)
}

func TestProcessor_UnrecoverableError_RoutesToDlqImmediately(t *testing.T) {
	dlq := &fakeDlq{}
	p := NewProcessor(Config{MaxDeliver: 10}, dlq, testLogger())
	result := p.Process(RawMessage{Subject: "s", Data: validEnvelopeJSON(), NumDelivered: 1}, func(e Event) error {
		return bridgeerrors.NewConfigurationError("bad arg", nil)
	})
	assert.Equal(t, ActionDlqThenAck, result.Action)
}

func TestRawMessage_HeaderEventID_PrefersHeader(t *testing.T) {
	m := RawMessage{Headers: map[string][]string{"Nats-Msg-Id": {"abc"}}}
	assert.Equal(t, "abc", m.HeaderEventID(func() string { return "generated" }))
}

func TestRawMessage_HeaderEventID_FallsBackToSeq(t *testing.T) {
	m := RawMessage{StreamSeq: 42}
	assert.Equal(t, "seq:42", m.HeaderEventID(func() string { return "generated" }))
}

func TestRawMessage_HeaderEventID_FallsBackToGenerated(t *testing.T) {
	m := RawMessage{}
	assert.Equal(t, "generated", m.HeaderEventID(func() string { return "generated" }))
}

func TestRawMessage_Deliveries_DefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, RawMessage{}.Deliveries())
	assert.Equal(t, 3, RawMessage{NumDelivered: 3}.Deliveries())
}
