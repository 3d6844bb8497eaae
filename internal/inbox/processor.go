package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// Action is the terminal disposition the caller should apply to the
// underlying transport message.
type Action string

const (
	ActionAck Action = "ack"
	ActionNak Action = "nak"
)

// Handler runs business logic for one delivery with auto_ack=false: it
// decides the Action itself rather than the processor assuming success
// means ack, per spec.md section 4.5 step 4.
type Handler func(ctx context.Context, subject string, payload []byte) (Action, error)

// DedupeCache is the optional Redis fast-path; satisfied by
// internal/pkg/cache.Dedupe. A nil DedupeCache just means "always ask the
// database", never an error.
type DedupeCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string) error
}

// Processor implements the transactional apply-once algorithm.
type Processor struct {
	store  Store
	dedupe DedupeCache
	logger *logger.Logger
}

// NewProcessor builds a Processor. store may be nil, in which case
// Process delegates straight to handler, per spec.md section 4.5 step 2
// ("if no inbox storage is configured, delegate to the message processor
// directly").
func NewProcessor(store Store, dedupe DedupeCache, log *logger.Logger) *Processor {
	return &Processor{store: store, dedupe: dedupe, logger: log}
}

// Process runs one delivery through the inbox algorithm, returning the
// Action the caller should apply and whether the delivery went through
// without a failure: the bool is false when the handler failed (error or
// panic) or a store step failed. A false return never means "reject the
// message" on its own — the caller always gets a usable Action alongside
// it, mirroring spec.md's "never raises" contract.
func (p *Processor) Process(ctx context.Context, key DedupKey, subject string, payload []byte, handler Handler) (Action, bool) {
	if p.store == nil {
		action, err := p.safeHandle(ctx, subject, payload, handler)
		if err != nil {
			p.logger.WithError(err).Error("inbox: handler failed with no inbox store configured", err)
			return ActionNak, false
		}
		return action, true
	}

	if p.dedupe != nil && key.HasEventID() {
		seen, err := p.dedupe.Seen(ctx, key.EventID)
		if err == nil && seen {
			return ActionAck, true
		}
		// Cache miss or cache error both fall through to the database,
		// which remains the durable authority.
	}

	rec, err := p.store.FindOrBuild(ctx, key, subject, payload)
	if err != nil {
		p.logger.WithError(err).Error("inbox: find_or_build failed", err)
		return ActionNak, false
	}

	if rec.Processed() {
		if p.dedupe != nil && key.HasEventID() {
			_ = p.dedupe.MarkSeen(ctx, key.EventID)
		}
		return ActionAck, true
	}

	claimed, err := p.store.PersistPre(ctx, rec.ID)
	if err != nil {
		p.logger.WithError(err).Error("inbox: persist_pre failed", err)
		return ActionNak, false
	}
	if !claimed {
		// Lost the claim race to a concurrent delivery of the same
		// event_id; nak so this delivery is retried later, by which time
		// the winner has either marked the row processed (the next
		// attempt's already_processed? check will ack it) or failed (a
		// fresh attempt is warranted).
		return ActionNak, true
	}

	action, handlerErr := p.safeHandle(ctx, subject, payload, handler)
	if handlerErr != nil {
		if failErr := p.store.PersistFailure(ctx, rec.ID, handlerErr.Error()); failErr != nil {
			p.logger.WithError(failErr).Error("inbox: persist_failure failed", failErr)
		}
		return ActionNak, false
	}

	if err := p.store.PersistPost(ctx, rec.ID, time.Now().UTC()); err != nil {
		p.logger.WithError(err).Error("inbox: persist_post failed", err)
		// The handler already ran its business effect; the row stays in
		// "processing", so persist_pre refuses it on every later delivery
		// of this key and those deliveries are nak'd without running the
		// handler again.
		return action, false
	}

	if p.dedupe != nil && key.HasEventID() {
		_ = p.dedupe.MarkSeen(ctx, key.EventID)
	}
	return action, true
}

// safeHandle invokes handler and recovers from a panic as a failure,
// implementing spec.md section 4.5 step 7's "any exception inside this
// pipeline is caught".
func (p *Processor) safeHandle(ctx context.Context, subject string, payload []byte, handler Handler) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			action = ActionNak
			err = panicError{value: r}
		}
	}()
	return handler(ctx, subject, payload)
}

type panicError struct{ value any }

func (e panicError) Error() string {
	return fmt.Sprintf("inbox: handler panicked: %v", e.value)
}
