package main

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/eventbridge/internal/config"
	"github.com/syncbridge/eventbridge/internal/consumerloop"
	"github.com/syncbridge/eventbridge/internal/topology"
)

// subscriptionHolder lets onEnsure swap in a fresh subscription after a
// consumer is deleted and recreated during reconciliation, without the
// fetch loop ever observing a nil handle.
type subscriptionHolder struct {
	mu  sync.Mutex
	sub *nats.Subscription
}

func (h *subscriptionHolder) set(sub *nats.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sub = sub
}

func (h *subscriptionHolder) get() *nats.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sub
}

// openSubscription opens the pull or push subscription handle matching
// cfg.ConsumerMode, per spec.md section 4.2's pull/push distinction.
func openSubscription(js topology.JetStream, cfg *config.Config, filterSubject, durable, deliverySubject, queueGroup string) (*nats.Subscription, error) {
	if cfg.ConsumerMode == config.ConsumerModePush {
		return topology.PushSubscription(js, deliverySubject, queueGroup, cfg.Consumer.BatchSize, cfg.Consumer.FetchTimeout)
	}
	return topology.OpenPullSubscription(js, filterSubject, durable)
}

// buildFetcher returns a consumerloop.Fetcher reading off whatever
// subscription holder currently holds, so reconnection in onEnsure is
// transparent to the running loop.
func buildFetcher(holder *subscriptionHolder, cfg *config.Config) consumerloop.Fetcher {
	return func(ctx context.Context, batchSize int, timeout time.Duration) ([]consumerloop.Delivery, error) {
		sub := holder.get()
		if sub == nil {
			return nil, nil
		}

		var (
			msgs []*nats.Msg
			err  error
		)
		if cfg.ConsumerMode == config.ConsumerModePush {
			msgs, err = topology.DrainPushBatch(sub, batchSize, timeout)
		} else {
			msgs, err = topology.FetchPullBatch(sub, batchSize, timeout)
		}
		if err != nil {
			return nil, err
		}
		return deliveriesFromMsgs(msgs), nil
	}
}
