// Package topology implements the Topology & Subscription Manager (spec.md
// 4.2): declaring the stream and durable consumer, reconciling drift, and
// building pull/push subscription handles.
package topology

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/eventbridge/internal/pkg/validator"
)

// AckPolicy mirrors spec.md's SubscriptionSpec.ack_policy; explicit is the
// only value the spec requires.
type AckPolicy string

const AckPolicyExplicit AckPolicy = "explicit"

// DeliverPolicy mirrors spec.md's SubscriptionSpec.deliver_policy.
type DeliverPolicy string

const DeliverPolicyAll DeliverPolicy = "all"

// ConsumerMode selects pull or push delivery.
type ConsumerMode string

const (
	ConsumerModePull ConsumerMode = "pull"
	ConsumerModePush ConsumerMode = "push"
)

// SubscriptionSpec is the in-memory declarative configuration for a
// durable consumer, per spec.md section 3.
type SubscriptionSpec struct {
	DurableName     string        `validate:"required"`
	FilterSubject   string        `validate:"required"`
	AckPolicy       AckPolicy     `validate:"required"`
	DeliverPolicy   DeliverPolicy `validate:"required"`
	MaxDeliver      int           `validate:"min=1"`
	AckWait         time.Duration `validate:"min=1"`
	Backoff         []time.Duration `validate:"min=1"`
	ConsumerMode    ConsumerMode  `validate:"required"`
	DeliverySubject string
	DeliverGroup    string
}

// Validate runs struct-tag validation on the spec using the bridge's
// shared validator instance, matching the teacher's validate.Struct
// usage for request-shaped values.
func (s SubscriptionSpec) Validate() error {
	return validator.Get().Struct(s)
}

// QueueGroup resolves the push-mode queue group name using the fallback
// chain spec.md's Open Questions section documents:
// push_consumer_group -> durable_name -> app_name.
func (s SubscriptionSpec) QueueGroup(appName string) string {
	if s.DeliverGroup != "" {
		return s.DeliverGroup
	}
	if s.DurableName != "" {
		return s.DurableName
	}
	return appName
}

// toConsumerConfig renders the desired nats.ConsumerConfig for this spec.
func (s SubscriptionSpec) toConsumerConfig(appName string) *nats.ConsumerConfig {
	cfg := &nats.ConsumerConfig{
		Durable:       s.DurableName,
		FilterSubject: s.FilterSubject,
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		MaxDeliver:    s.MaxDeliver,
		AckWait:       s.AckWait,
		BackOff:       s.Backoff,
	}
	if s.ConsumerMode == ConsumerModePush {
		cfg.DeliverSubject = s.DeliverySubject
		cfg.DeliverGroup = s.QueueGroup(appName)
	}
	return cfg
}

// StreamSpec is the desired configuration for the bridge's stream.
type StreamSpec struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
	Replicas        int
	Description     string
}

func (s StreamSpec) toStreamConfig() *nats.StreamConfig {
	replicas := s.Replicas
	if replicas == 0 {
		replicas = 1
	}
	return &nats.StreamConfig{
		Name:        s.Name,
		Subjects:    s.Subjects,
		Retention:   nats.LimitsPolicy,
		Storage:     nats.FileStorage,
		Replicas:    replicas,
		MaxAge:      s.MaxAge,
		Duplicates:  s.DuplicateWindow,
		Discard:     nats.DiscardOld,
		Description: s.Description,
	}
}
