package outbox

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
	"github.com/syncbridge/eventbridge/internal/envelope"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
	"github.com/syncbridge/eventbridge/internal/pkg/retry"
)

// Publisher is the narrow JetStream publish surface the outbox drains onto.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// PublishResult is the immutable outcome of a single publish attempt,
// matching spec.md section 4.3's { success, event_id, subject, duplicate,
// error? } shape.
type PublishResult struct {
	Success   bool
	EventID   string
	Subject   string
	Duplicate bool
	Err       error
}

// ToHash renders the result as a map, with error collapsed to its message
// string, per spec.md's "to_hash renders error as its message string".
func (r PublishResult) ToHash() map[string]any {
	h := map[string]any{
		"success":   r.Success,
		"event_id":  r.EventID,
		"subject":   r.Subject,
		"duplicate": r.Duplicate,
	}
	if r.Err != nil {
		h["error"] = r.Err.Error()
	}
	return h
}

// PipelineConfig tunes the Publisher's batch/retry behavior.
type PipelineConfig struct {
	BatchSize   int
	MaxAttempts int
	Strategy    retry.Strategy
	Sleep       func(time.Duration)
}

// Pipeline drains claimed outbox rows onto JetStream with retry/backoff.
type Pipeline struct {
	store  Store
	pub    Publisher
	cfg    PipelineConfig
	logger *logger.Logger
}

// NewPipeline builds a Pipeline with spec.md's documented default retry
// policy (LinearBackoff [0.25s, 1s, 2s]) unless overridden.
func NewPipeline(store Store, pub Publisher, cfg PipelineConfig, log *logger.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Strategy == nil {
		cfg.Strategy = retry.DefaultLinearBackoff()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return &Pipeline{store: store, pub: pub, cfg: cfg, logger: log}
}

// Stale reports pending records older than olderThan, so a caller can
// surface rows stuck behind a wedged publisher before they go unnoticed.
func (p *Pipeline) Stale(ctx context.Context, olderThan time.Duration, limit int) ([]*Record, error) {
	return p.store.Stale(ctx, olderThan, limit)
}

// DrainOnce claims one batch and attempts to publish each row, returning
// the number of rows claimed, whether each ended sent, failed, or reset to
// pending.
func (p *Pipeline) DrainOnce(ctx context.Context) (int, error) {
	batch, err := p.store.ClaimBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, rec := range batch {
		p.publishOne(ctx, rec)
	}
	return len(batch), nil
}

func (p *Pipeline) publishOne(ctx context.Context, rec *Record) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		if attempt > 1 {
			p.cfg.Sleep(p.cfg.Strategy.Delay(attempt - 1))
		}

		ack, err := p.pub.Publish(rec.Subject, rec.Payload, nats.MsgId(rec.EventID))
		if err == nil {
			// A duplicate ack (ack.Duplicate true) is treated as success per
			// spec.md 4.3: the stream already has this event_id inside its
			// dedup window, so the row is just as "sent" as a fresh publish.
			_ = ack
			if mErr := p.store.MarkSent(ctx, rec.ID, time.Now().UTC()); mErr != nil {
				p.logger.WithError(mErr).Error("outbox: failed to mark record sent", mErr)
			}
			return
		}

		lastErr = err
		if bridgeerrors.Unrecoverable(err) {
			break
		}
	}

	exhausted := bridgeerrors.NewRetryExhausted(attempts, lastErr)
	if bridgeerrors.Unrecoverable(lastErr) {
		if err := p.store.MarkFailed(ctx, rec.ID, exhausted.Error()); err != nil {
			p.logger.WithError(err).Error("outbox: failed to mark record failed", err)
		}
		return
	}

	// Transient: leave attempts incremented by the claim and return to
	// pending so a later drain retries it, per spec.md's "set back to
	// pending after backoff" for transient errors.
	if err := p.store.ResetToPending(ctx, rec.ID, exhausted.Error()); err != nil {
		p.logger.WithError(err).Error("outbox: failed to reset record to pending", err)
	}
}

// PublishDirect builds and publishes an envelope immediately, bypassing the
// outbox table entirely. It is the Publisher.Publish API spec.md section
// 4.3 documents for callers that invoke it "directly" rather than draining
// from the outbox, and resolves the "outbox/direct-publish concurrency"
// Open Question: when use_outbox=false this is the only writer for an
// event_id, so no claim/lock dance is needed — it retries with the same
// strategy and reports ack.Duplicate verbatim.
func (p *Pipeline) PublishDirect(ctx context.Context, in PublishInput, dest string) PublishResult {
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
		return PublishResult{EventID: in.EventID, Subject: dest, Err: err}
	}

	payload, err := env.ToJSON()
	if err != nil {
		return PublishResult{EventID: env.EventID, Subject: dest, Err: err}
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		if attempt > 1 {
			p.cfg.Sleep(p.cfg.Strategy.Delay(attempt - 1))
		}

		ack, err := p.pub.Publish(dest, payload, nats.MsgId(env.EventID))
		if err == nil {
			return PublishResult{Success: true, EventID: env.EventID, Subject: dest, Duplicate: ack.Duplicate}
		}

		lastErr = err
		if bridgeerrors.Unrecoverable(err) {
			break
		}
	}

	exhausted := bridgeerrors.NewRetryExhausted(attempts, lastErr)
	return PublishResult{Success: false, EventID: env.EventID, Subject: dest, Err: exhausted}
}
