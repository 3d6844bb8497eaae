package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

type fakeStore struct {
	batch       []*Record
	sentIDs     []int64
	failedIDs   []int64
	resetIDs    []int64
}

func (f *fakeStore) Insert(ctx context.Context, tx *sqlx.Tx, rec *Record) error { return nil }
func (f *fakeStore) ClaimBatch(ctx context.Context, limit int) ([]*Record, error) {
	batch := f.batch
	f.batch = nil
	return batch, nil
}
func (f *fakeStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	f.sentIDs = append(f.sentIDs, id)
	return nil
}
func (f *fakeStore) MarkFailed(ctx context.Context, id int64, lastError string) error {
	f.failedIDs = append(f.failedIDs, id)
	return nil
}
func (f *fakeStore) ResetToPending(ctx context.Context, id int64, lastError string) error {
	f.resetIDs = append(f.resetIDs, id)
	return nil
}
func (f *fakeStore) Requeue(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) Stale(ctx context.Context, olderThan time.Duration, limit int) ([]*Record, error) {
	return nil, nil
}

type fakePublisher struct {
	failTimes int
	err       error
	calls     int
}

func (f *fakePublisher) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return nil, f.err
	}
	return &nats.PubAck{}, nil
}

func TestPipeline_PublishOne_SucceedsOnFirstAttempt(t *testing.T) {
	store := &fakeStore{batch: []*Record{{ID: 1, EventID: "e1", Subject: "x.y.sync.z", Payload: []byte("{}")}}}
	pub := &fakePublisher{}
	p := NewPipeline(store, pub, PipelineConfig{Sleep: func(time.Duration) {}}, logger.New("test"))

	n, err := p.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, store.sentIDs)
}

func TestPipeline_PublishOne_TransientRetriesThenSucceeds(t *testing.T) {
	store := &fakeStore{batch: []*Record{{ID: 2, EventID: "e2", Subject: "x.y.sync.z", Payload: []byte("{}")}}}
	pub := &fakePublisher{failTimes: 2, err: bridgeerrors.NewConnectionError("dial refused", nil)}
	p := NewPipeline(store, pub, PipelineConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}}, logger.New("test"))

	_, err := p.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, store.sentIDs)
	assert.Equal(t, 3, pub.calls)
}

func TestPipeline_PublishOne_TransientExhaustsToPending(t *testing.T) {
	store := &fakeStore{batch: []*Record{{ID: 3, EventID: "e3", Subject: "x.y.sync.z", Payload: []byte("{}")}}}
	pub := &fakePublisher{failTimes: 99, err: bridgeerrors.NewConnectionError("dial refused", nil)}
	p := NewPipeline(store, pub, PipelineConfig{MaxAttempts: 2, Sleep: func(time.Duration) {}}, logger.New("test"))

	_, err := p.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, store.resetIDs)
	assert.Empty(t, store.failedIDs)
}

func TestPipeline_PublishOne_UnrecoverableFailsImmediately(t *testing.T) {
	store := &fakeStore{batch: []*Record{{ID: 4, EventID: "e4", Subject: "x.y.sync.z", Payload: []byte("{}")}}}
	pub := &fakePublisher{failTimes: 99, err: bridgeerrors.NewConfigurationError("bad subject", nil)}
	p := NewPipeline(store, pub, PipelineConfig{MaxAttempts: 5, Sleep: func(time.Duration) {}}, logger.New("test"))

	_, err := p.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, store.failedIDs)
	assert.Equal(t, 1, pub.calls, "unrecoverable errors must not be retried")
}

func TestPublishResult_ToHash_RendersErrorMessage(t *testing.T) {
	r := PublishResult{Success: false, EventID: "e1", Subject: "s", Err: errors.New("boom")}
	h := r.ToHash()
	assert.Equal(t, "boom", h["error"])
}
