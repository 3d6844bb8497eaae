package topology

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// JetStream is the narrow slice of nats.JetStreamContext the Manager needs.
// Accepting this instead of the full interface keeps the Manager testable
// with a small fake and makes the dependency explicit, per the "typed
// storage interface" redesign guidance in spec.md section 9.
type JetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	ConsumerInfo(stream, consumer string, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
	AddConsumer(stream string, cfg *nats.ConsumerConfig, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
	DeleteConsumer(stream, consumer string, opts ...nats.JSOpt) error
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (*nats.Subscription, error)
	SubscribeSync(subj string, opts ...nats.SubOpt) (*nats.Subscription, error)
	QueueSubscribeSync(subj, queue string, opts ...nats.SubOpt) (*nats.Subscription, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Manager declares and reconciles the bridge's stream and durable consumer,
// following the ensure-pattern in the teacher's
// internal/delivery/events/stream.go, generalized to the spec's compare-
// and-recreate reconcile algorithm (section 4.2).
type Manager struct {
	js           JetStream
	appName      string
	disableJSAPI bool
	logger       *logger.Logger
}

// NewManager builds a Manager bound to a JetStream context.
func NewManager(js JetStream, appName string, disableJSAPI bool, log *logger.Logger) *Manager {
	return &Manager{js: js, appName: appName, disableJSAPI: disableJSAPI, logger: log}
}

// EnsureStream creates the stream if absent. If disableJSAPI is set, it
// assumes the stream is already provisioned and only verifies it exists.
func (m *Manager) EnsureStream(spec StreamSpec) error {
	if m.disableJSAPI {
		if _, err := m.js.StreamInfo(spec.Name); err != nil {
			return &bridgeerrors.StreamNotFoundError{Stream: spec.Name}
		}
		return nil
	}

	_, err := m.js.StreamInfo(spec.Name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		m.logger.WithFields(map[string]any{"stream": spec.Name, "subjects": spec.Subjects}).Info("creating JetStream stream")
		if _, err := m.js.AddStream(spec.toStreamConfig()); err != nil {
			return &bridgeerrors.StreamCreationFailedError{Stream: spec.Name, Cause: err}
		}
		return nil
	}
	if err != nil {
		return bridgeerrors.NewTopologyError(fmt.Sprintf("failed to get stream info: %v", err), map[string]any{"stream": spec.Name})
	}
	return nil
}

// EnsureConsumer implements the reconcile algorithm from spec.md section
// 4.2: fetch existing consumer info; create if absent; if present, compare
// the normalized desired fields and delete+recreate on any difference;
// bind instead of create/update when the JetStream admin API is disabled
// for this credential.
func (m *Manager) EnsureConsumer(stream string, spec SubscriptionSpec) (*nats.ConsumerInfo, error) {
	existing, err := m.js.ConsumerInfo(stream, spec.DurableName)

	if m.disableJSAPI {
		if errors.Is(err, nats.ErrConsumerNotFound) {
			return nil, bridgeerrors.NewTopologyError(
				"consumer not pre-provisioned and admin API is disabled",
				map[string]any{"stream": stream, "consumer": spec.DurableName},
			)
		}
		if err != nil {
			return nil, bridgeerrors.NewTopologyError(err.Error(), map[string]any{"stream": stream})
		}
		return existing, nil
	}

	desired := spec.toConsumerConfig(m.appName)

	if errors.Is(err, nats.ErrConsumerNotFound) {
		m.logger.WithFields(map[string]any{"stream": stream, "consumer": spec.DurableName}).Info("creating JetStream consumer")
		info, err := m.js.AddConsumer(stream, desired)
		if err != nil {
			return nil, bridgeerrors.NewTopologyError(fmt.Sprintf("failed to create consumer: %v", err), map[string]any{"stream": stream, "consumer": spec.DurableName})
		}
		return info, nil
	}
	if err != nil {
		return nil, bridgeerrors.NewTopologyError(err.Error(), map[string]any{"stream": stream})
	}

	if consumerConfigsEqual(&existing.Config, desired) {
		return existing, nil
	}

	m.logger.WithFields(map[string]any{"stream": stream, "consumer": spec.DurableName}).Info("consumer config drifted, recreating")
	if err := m.js.DeleteConsumer(stream, spec.DurableName); err != nil {
		// Deletion failure is logged and create proceeds, per spec.md 4.2 step 3.
		m.logger.WithFields(map[string]any{"error": err.Error()}).Warn("failed to delete drifted consumer, attempting create anyway")
	}

	info, err := m.js.AddConsumer(stream, desired)
	if err != nil {
		return nil, bridgeerrors.NewTopologyError(fmt.Sprintf("failed to recreate consumer: %v", err), map[string]any{"stream": stream, "consumer": spec.DurableName})
	}
	return info, nil
}

// consumerConfigsEqual compares the fields spec.md section 4.2 names
// {filter_subject, ack_policy, deliver_policy, max_deliver, ack_wait,
// backoff}, after normalizing durations to a common unit (nanoseconds,
// which time.Duration already is).
func consumerConfigsEqual(have, want *nats.ConsumerConfig) bool {
	if have.FilterSubject != want.FilterSubject {
		return false
	}
	if have.AckPolicy != want.AckPolicy {
		return false
	}
	if have.DeliverPolicy != want.DeliverPolicy {
		return false
	}
	if have.MaxDeliver != want.MaxDeliver {
		return false
	}
	if have.AckWait != want.AckWait {
		return false
	}
	if len(have.BackOff) != len(want.BackOff) {
		return false
	}
	for i := range have.BackOff {
		if have.BackOff[i] != want.BackOff[i] {
			return false
		}
	}
	return true
}
