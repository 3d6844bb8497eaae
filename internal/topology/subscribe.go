package topology

import (
	"time"

	"github.com/nats-io/nats.go"
)

// PullSubscription fetches a bounded batch of messages from a pull
// consumer, waiting up to timeout for at least one message before
// returning an empty batch. Per spec.md section 4.2, an empty result on
// timeout is not an error. It opens a fresh subscription per call, which
// is fine for tests and one-shot fetches; the consumer runtime should
// instead call OpenPullSubscription once and reuse FetchPullBatch, to
// avoid leaking a core NATS subscription on every batch.
func PullSubscription(js JetStream, subject, durable string, batchSize int, timeout time.Duration) ([]*nats.Msg, error) {
	sub, err := js.PullSubscribe(subject, durable)
	if err != nil {
		return nil, err
	}
	return FetchPullBatch(sub, batchSize, timeout)
}

// OpenPullSubscription opens a durable pull subscription once, for the
// consumer runtime to reuse across many FetchPullBatch calls.
func OpenPullSubscription(js JetStream, subject, durable string) (*nats.Subscription, error) {
	return js.PullSubscribe(subject, durable)
}

// FetchPullBatch fetches up to batchSize messages off an already-open pull
// subscription, waiting up to timeout. An empty result on timeout is not
// an error, per spec.md section 4.2's "fetch is cancel-safe: timeout
// returns []".
func FetchPullBatch(sub *nats.Subscription, batchSize int, timeout time.Duration) ([]*nats.Msg, error) {
	msgs, err := sub.Fetch(batchSize, nats.MaxWait(timeout))
	if err != nil {
		if err == nats.ErrTimeout {
			return nil, nil
		}
		return nil, err
	}
	return msgs, nil
}

// PushSubscription opens a synchronous push subscription on subject as a
// member of the given queue group; it reads no messages itself (batchSize
// and timeout are unused here), and DrainPushBatch reads from the returned
// handle. Used when ConsumerMode is push, per spec.md section 3's
// deliver_subject/deliver_group fields. A consumer created with DeliverGroup set
// rejects a plain SubscribeSync (the server requires a matching queue
// name), so this always joins via QueueSubscribeSync.
func PushSubscription(js JetStream, subject, queueGroup string, batchSize int, timeout time.Duration) (*nats.Subscription, error) {
	return js.QueueSubscribeSync(subject, queueGroup)
}

// DrainPushBatch pulls up to batchSize messages synchronously off an
// already-open push subscription, each bounded by timeout, returning early
// (without error) the first time NextMsg times out.
func DrainPushBatch(sub *nats.Subscription, batchSize int, timeout time.Duration) ([]*nats.Msg, error) {
	batch := make([]*nats.Msg, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		msg, err := sub.NextMsg(timeout)
		if err != nil {
			if err == nats.ErrTimeout {
				break
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}
