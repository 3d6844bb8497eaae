package topology

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// fakeJetStream is a minimal in-memory stand-in for the JetStream
// interface, letting the reconcile algorithm be tested without a live
// NATS server.
type fakeJetStream struct {
	streams   map[string]*nats.StreamInfo
	consumers map[string]map[string]*nats.ConsumerInfo
	addCalls  int
	delCalls  int
}

func newFakeJetStream() *fakeJetStream {
	return &fakeJetStream{
		streams:   map[string]*nats.StreamInfo{},
		consumers: map[string]map[string]*nats.ConsumerInfo{},
	}
}

func (f *fakeJetStream) StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if si, ok := f.streams[stream]; ok {
		return si, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	si := &nats.StreamInfo{Config: *cfg}
	f.streams[cfg.Name] = si
	return si, nil
}

func (f *fakeJetStream) UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	si := &nats.StreamInfo{Config: *cfg}
	f.streams[cfg.Name] = si
	return si, nil
}

func (f *fakeJetStream) ConsumerInfo(stream, consumer string, opts ...nats.JSOpt) (*nats.ConsumerInfo, error) {
	byStream, ok := f.consumers[stream]
	if !ok {
		return nil, nats.ErrConsumerNotFound
	}
	ci, ok := byStream[consumer]
	if !ok {
		return nil, nats.ErrConsumerNotFound
	}
	return ci, nil
}

func (f *fakeJetStream) AddConsumer(stream string, cfg *nats.ConsumerConfig, opts ...nats.JSOpt) (*nats.ConsumerInfo, error) {
	f.addCalls++
	if f.consumers[stream] == nil {
		f.consumers[stream] = map[string]*nats.ConsumerInfo{}
	}
	ci := &nats.ConsumerInfo{Name: cfg.Durable, Config: *cfg}
	f.consumers[stream][cfg.Durable] = ci
	return ci, nil
}

func (f *fakeJetStream) DeleteConsumer(stream, consumer string, opts ...nats.JSOpt) error {
	f.delCalls++
	if byStream, ok := f.consumers[stream]; ok {
		delete(byStream, consumer)
	}
	return nil
}

func (f *fakeJetStream) PullSubscribe(subj, durable string, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}

func (f *fakeJetStream) SubscribeSync(subj string, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}

func (f *fakeJetStream) QueueSubscribeSync(subj, queue string, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return nil, nil
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return &nats.PubAck{}, nil
}

func testLogger() *logger.Logger {
	return logger.New("test")
}

func TestEnsureStream_CreatesWhenAbsent(t *testing.T) {
	fjs := newFakeJetStream()
	m := NewManager(fjs, "app-a", false, testLogger())

	err := m.EnsureStream(StreamSpec{Name: "SYNC", Subjects: []string{"prod.app-a.sync.>"}})
	require.NoError(t, err)
	_, ok := fjs.streams["SYNC"]
	assert.True(t, ok)
}

func TestEnsureStream_NoOpWhenPresent(t *testing.T) {
	fjs := newFakeJetStream()
	fjs.streams["SYNC"] = &nats.StreamInfo{Config: nats.StreamConfig{Name: "SYNC"}}
	m := NewManager(fjs, "app-a", false, testLogger())

	err := m.EnsureStream(StreamSpec{Name: "SYNC"})
	require.NoError(t, err)
}

func TestEnsureStream_DisabledJSAPI_RequiresPreExisting(t *testing.T) {
	fjs := newFakeJetStream()
	m := NewManager(fjs, "app-a", true, testLogger())

	err := m.EnsureStream(StreamSpec{Name: "SYNC"})
	assert.Error(t, err)
}

func TestEnsureConsumer_CreatesWhenAbsent(t *testing.T) {
	fjs := newFakeJetStream()
	m := NewManager(fjs, "app-a", false, testLogger())

	spec := SubscriptionSpec{
		DurableName:   "app-a-consumer",
		FilterSubject: "prod.app-a.sync.app-b",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
	}

	info, err := m.EnsureConsumer("SYNC", spec)
	require.NoError(t, err)
	assert.Equal(t, "app-a-consumer", info.Name)
	assert.Equal(t, 1, fjs.addCalls)
}

func TestEnsureConsumer_NoOpWhenMatching(t *testing.T) {
	fjs := newFakeJetStream()
	m := NewManager(fjs, "app-a", false, testLogger())
	spec := SubscriptionSpec{DurableName: "c1", FilterSubject: "x.>", MaxDeliver: 5, AckWait: 30 * time.Second}

	_, err := m.EnsureConsumer("SYNC", spec)
	require.NoError(t, err)
	assert.Equal(t, 1, fjs.addCalls)

	_, err = m.EnsureConsumer("SYNC", spec)
	require.NoError(t, err)
	assert.Equal(t, 1, fjs.addCalls, "unchanged spec must not trigger a recreate")
}

func TestEnsureConsumer_RecreatesOnDrift(t *testing.T) {
	fjs := newFakeJetStream()
	m := NewManager(fjs, "app-a", false, testLogger())
	spec := SubscriptionSpec{DurableName: "c1", FilterSubject: "x.>", MaxDeliver: 5, AckWait: 30 * time.Second}

	_, err := m.EnsureConsumer("SYNC", spec)
	require.NoError(t, err)

	spec.MaxDeliver = 10
	_, err = m.EnsureConsumer("SYNC", spec)
	require.NoError(t, err)
	assert.Equal(t, 2, fjs.addCalls)
	assert.Equal(t, 1, fjs.delCalls)
}

func TestEnsureConsumer_DisabledJSAPI_BindsToExisting(t *testing.T) {
	fjs := newFakeJetStream()
	fjs.consumers["SYNC"] = map[string]*nats.ConsumerInfo{
		"c1": {Name: "c1"},
	}
	m := NewManager(fjs, "app-a", true, testLogger())

	info, err := m.EnsureConsumer("SYNC", SubscriptionSpec{DurableName: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "c1", info.Name)
	assert.Equal(t, 0, fjs.addCalls)
}

func TestEnsureConsumer_DisabledJSAPI_MissingIsError(t *testing.T) {
	fjs := newFakeJetStream()
	m := NewManager(fjs, "app-a", true, testLogger())

	_, err := m.EnsureConsumer("SYNC", SubscriptionSpec{DurableName: "missing"})
	assert.Error(t, err)
}
