package main

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/eventbridge/internal/consumerloop"
	"github.com/syncbridge/eventbridge/internal/inbox"
	"github.com/syncbridge/eventbridge/internal/processor"
)

// rawMessageFromNats adapts a delivered *nats.Msg to the narrow
// processor.RawMessage shape, pulling delivery metadata from the
// JetStream ack reply when present.
func rawMessageFromNats(m *nats.Msg) processor.RawMessage {
	raw := processor.RawMessage{
		Subject: m.Subject,
		Data:    m.Data,
		Headers: map[string][]string(m.Header),
	}
	meta, err := m.Metadata()
	if err != nil {
		return raw
	}
	raw.NumDelivered = int(meta.NumDelivered)
	raw.Stream = meta.Stream
	raw.StreamSeq = meta.Sequence.Stream
	raw.Consumer = meta.Consumer
	return raw
}

// dedupKeyFromRaw builds the inbox dedup key from the nats-msg-id header,
// falling back to (stream, stream_seq) when no msg-id was set on publish.
func dedupKeyFromRaw(raw processor.RawMessage) inbox.DedupKey {
	for key, values := range raw.Headers {
		if strings.EqualFold(key, "nats-msg-id") && len(values) > 0 && values[0] != "" {
			return inbox.DedupKey{EventID: values[0]}
		}
	}
	return inbox.DedupKey{Stream: raw.Stream, StreamSeq: int64(raw.StreamSeq)}
}

// deliveriesFromMsgs wraps each fetched *nats.Msg in a consumerloop.Delivery,
// binding Ack/Nak to the underlying JetStream acknowledgement calls.
func deliveriesFromMsgs(msgs []*nats.Msg) []consumerloop.Delivery {
	out := make([]consumerloop.Delivery, 0, len(msgs))
	for _, m := range msgs {
		m := m
		out = append(out, consumerloop.Delivery{
			Ack: func() error { return m.Ack() },
			Nak: func(delay time.Duration) error {
				if delay <= 0 {
					return m.Nak()
				}
				return m.NakWithDelay(delay)
			},
			Raw: m,
		})
	}
	return out
}
