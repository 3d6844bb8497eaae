package main

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/eventbridge/internal/consumerloop"
	"github.com/syncbridge/eventbridge/internal/inbox"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
	"github.com/syncbridge/eventbridge/internal/processor"
)

// buildDispatch composes the inbox's apply-once guarantee around the
// message processor's retry/backoff/DLQ decision, per spec.md sections
// 4.4 and 4.5: the inbox Handler runs the message processor and folds its
// ProcessResult down to the two-value Action the inbox pipeline needs,
// while the processor's computed NakDelay is captured in the closure so
// the final Ack/Nak on the real delivery still carries it.
func buildDispatch(msgProcessor *processor.Processor, inboxProc *inbox.Processor, handler processor.Handler, log *logger.Logger) consumerloop.Dispatch {
	return func(ctx context.Context, d consumerloop.Delivery) {
		msg, ok := d.Raw.(*nats.Msg)
		if !ok {
			log.Error("dispatch: delivery carried no *nats.Msg", nil)
			return
		}

		raw := rawMessageFromNats(msg)
		key := dedupKeyFromRaw(raw)

		var result processor.ProcessResult
		inboxHandler := func(ctx context.Context, subject string, payload []byte) (inbox.Action, error) {
			result = msgProcessor.Process(raw, handler)
			switch result.Action {
			case processor.ActionAck, processor.ActionDlqThenAck:
				return inbox.ActionAck, nil
			default:
				return inbox.ActionNak, result.Err
			}
		}

		action, ok := inboxProc.Process(ctx, key, raw.Subject, raw.Data, inboxHandler)
		if !ok {
			log.WithFields(map[string]any{"event_id": key.EventID}).Warn("dispatch: inbox pipeline reported an internal fault")
		}

		if action == inbox.ActionAck {
			if err := d.Ack(); err != nil {
				log.WithError(err).Warn("dispatch: ack failed")
			}
			return
		}

		delay := result.NakDelay
		if delay <= 0 {
			delay = time.Second
		}
		if err := d.Nak(delay); err != nil {
			log.WithError(err).Warn("dispatch: nak failed")
		}
	}
}
