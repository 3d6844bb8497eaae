package topology

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionSpec_QueueGroup_FallbackChain(t *testing.T) {
	withGroup := SubscriptionSpec{DeliverGroup: "g1", DurableName: "d1"}
	assert.Equal(t, "g1", withGroup.QueueGroup("app-a"))

	withDurable := SubscriptionSpec{DurableName: "d1"}
	assert.Equal(t, "d1", withDurable.QueueGroup("app-a"))

	bare := SubscriptionSpec{}
	assert.Equal(t, "app-a", bare.QueueGroup("app-a"))
}

func TestSubscriptionSpec_ToConsumerConfig_PushSetsDeliverFields(t *testing.T) {
	spec := SubscriptionSpec{
		DurableName:     "d1",
		ConsumerMode:    ConsumerModePush,
		DeliverySubject: "d1.worker",
		MaxDeliver:      5,
		AckWait:         10 * time.Second,
	}
	cfg := spec.toConsumerConfig("app-a")
	assert.Equal(t, "d1.worker", cfg.DeliverSubject)
	assert.Equal(t, "d1", cfg.DeliverGroup)
}

func TestSubscriptionSpec_ToConsumerConfig_PullOmitsDeliverFields(t *testing.T) {
	spec := SubscriptionSpec{DurableName: "d1", ConsumerMode: ConsumerModePull, MaxDeliver: 5, AckWait: 10 * time.Second}
	cfg := spec.toConsumerConfig("app-a")
	assert.Empty(t, cfg.DeliverSubject)
	assert.Empty(t, cfg.DeliverGroup)
}

func TestStreamSpec_ToStreamConfig_DefaultsReplicasToOne(t *testing.T) {
	spec := StreamSpec{Name: "SYNC", Subjects: []string{"x.>"}}
	cfg := spec.toStreamConfig()
	assert.Equal(t, 1, cfg.Replicas)
}
