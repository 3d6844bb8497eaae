package processor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
	"github.com/syncbridge/eventbridge/internal/envelope"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// RawMessage is the narrow slice of a delivered transport message the
// processor needs, satisfied by an adapter around *nats.Msg.
type RawMessage struct {
	Subject      string
	Data         []byte
	Headers      map[string][]string
	NumDelivered int
	Stream       string
	StreamSeq    uint64
	Consumer     string
}

// HeaderEventID extracts event_id from the nats-msg-id header
// case-insensitively, falling back to "seq:<stream_seq>" and finally a
// generated UUID, per spec.md section 4.4 step 1 and section 6.
func (m RawMessage) HeaderEventID(generate func() string) string {
	for key, values := range m.Headers {
		if strings.EqualFold(key, "nats-msg-id") && len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	if m.StreamSeq != 0 {
		return "seq:" + strconv.FormatUint(m.StreamSeq, 10)
	}
	return generate()
}

// Deliveries returns NumDelivered, defaulting to 1 per spec.md's
// "deliveries from metadata.num_delivered default 1".
func (m RawMessage) Deliveries() int {
	if m.NumDelivered <= 0 {
		return 1
	}
	return m.NumDelivered
}

// DlqPublisher is the narrow publish surface the Message Processor uses
// to ship dead-lettered messages.
type DlqPublisher interface {
	PublishDlq(payload DlqPayload) error
}

// Processor implements spec.md section 4.4's pipeline.
type Processor struct {
	maxDeliver int
	backoff    BackoffStrategy
	dlq        DlqPublisher
	logger     *logger.Logger
	newUUID    func() string
	traceIDGen func() string
}

// Config tunes a Processor.
type Config struct {
	MaxDeliver int
	Backoff    BackoffStrategy
	NewEventID func() string
	NewTraceID func() string
}

// NewProcessor builds a Processor bound to a dead-letter publisher.
func NewProcessor(cfg Config, dlq DlqPublisher, log *logger.Logger) *Processor {
	if cfg.Backoff == (BackoffStrategy{}) {
		cfg.Backoff = DefaultBackoffStrategy()
	}
	return &Processor{
		maxDeliver: cfg.MaxDeliver,
		backoff:    cfg.Backoff,
		dlq:        dlq,
		logger:     log,
		newUUID:    cfg.NewEventID,
		traceIDGen: cfg.NewTraceID,
	}
}

// Process runs the full pipeline for one delivered message and a compiled
// handler chain, returning the ProcessResult the consumer runtime applies.
func (p *Processor) Process(msg RawMessage, handler Handler) ProcessResult {
	eventID := msg.HeaderEventID(p.newUUID)
	deliveries := msg.Deliveries()

	ctx := MessageContext{
		EventID:    eventID,
		Deliveries: deliveries,
		Stream:     msg.Stream,
		StreamSeq:  msg.StreamSeq,
		Consumer:   msg.Consumer,
		Subject:    msg.Subject,
	}

	env, err := envelope.FromJSON(msg.Data)
	if err != nil {
		return p.toDlqOrNak(msg, ctx, nil, err)
	}

	traceID := env.TraceID
	if traceID == "" && p.traceIDGen != nil {
		traceID = p.traceIDGen()
	}

	event := Event{Envelope: env, Context: ctx, TraceID: traceID}

	handlerErr := handler(event)
	if handlerErr == nil {
		return resultAck()
	}

	if deliveries >= p.maxDeliver || bridgeerrors.Unrecoverable(handlerErr) {
		return p.toDlqOrNak(msg, ctx, &env, handlerErr)
	}

	delay := p.backoff.Delay(deliveries, handlerErr)
	return resultNak(delay, handlerErr)
}

// toDlqOrNak ships msg to the dead-letter subject. env is the successfully
// parsed envelope when one exists (the handler-failure path, e.g. spec.md
// scenario 3's poison message) or nil when msg.Data itself failed to
// parse — spec.md sections 4.4/6 require the DLQ payload to carry
// "original envelope (or raw bytes if unparsable)", so only the
// unparsable case falls back to RawPayload.
func (p *Processor) toDlqOrNak(msg RawMessage, ctx MessageContext, env *envelope.Envelope, cause error) ProcessResult {
	if p.dlq == nil {
		return resultNak(p.backoff.Delay(ctx.Deliveries, cause), cause)
	}

	payload := DlqPayload{
		OriginalSubject: msg.Subject,
		Consumer:        ctx.Consumer,
		Deliveries:      ctx.Deliveries,
		ErrorClass:      fmt.Sprintf("%T", cause),
		ErrorMessage:    cause.Error(),
		Timestamp:       time.Now().UTC(),
	}
	if env != nil {
		if encoded, encErr := env.ToJSON(); encErr == nil {
			payload.Envelope = encoded
		} else {
			payload.RawPayload = msg.Data
		}
	} else {
		payload.RawPayload = msg.Data
	}

	if err := p.dlq.PublishDlq(payload); err != nil {
		p.logger.WithError(err).Error("processor: dlq publish failed, falling back to nak", err)
		return resultDlqThenNak(p.backoff.Delay(ctx.Deliveries, cause), cause)
	}

	return resultDlqThenAck(cause)
}
