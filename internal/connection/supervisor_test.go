package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
)

func TestNew_RejectsMissingURLs(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestNew_RejectsBadScheme(t *testing.T) {
	_, err := New([]string{"http://localhost:4222"}, nil)
	assert.Error(t, err)
}

func TestNew_RejectsMissingHost(t *testing.T) {
	_, err := New([]string{"nats://"}, nil)
	assert.Error(t, err)
}

func TestNew_RejectsBadPort(t *testing.T) {
	_, err := New([]string{"nats://localhost:99999"}, nil)
	assert.Error(t, err)
}

func TestNew_AcceptsValidURL(t *testing.T) {
	s, err := New([]string{"nats://localhost:4222"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestJetStream_BeforeConnect_ReturnsNotEstablished(t *testing.T) {
	s, err := New([]string{"nats://localhost:4222"}, nil)
	require.NoError(t, err)

	_, err = s.JetStream()
	assert.ErrorIs(t, err, bridgeerrors.ErrConnectionNotEstablished)
}

func TestConnected_BeforeConnect_ReportsUnhealthy(t *testing.T) {
	s, err := New([]string{"nats://localhost:4222"}, nil)
	require.NoError(t, err)

	ok, err := s.Connected()
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	s, err := New([]string{"nats://localhost:4222"}, nil)
	require.NoError(t, err)

	s.Disconnect()
	s.Disconnect()
	assert.Equal(t, StateDisconnected, s.State())
}
