package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
)

func TestBackoffStrategy_TransientUsesShorterBase(t *testing.T) {
	b := DefaultBackoffStrategy()
	transient := b.Delay(1, bridgeerrors.NewConnectionError("x", nil))
	other := b.Delay(1, errors.New("generic"))
	assert.LessOrEqual(t, transient, other)
}

func TestBackoffStrategy_ClampsToMax(t *testing.T) {
	b := DefaultBackoffStrategy()
	d := b.Delay(20, errors.New("x"))
	assert.Equal(t, 60*time.Second, d)
}

func TestBackoffStrategy_ClampsToMin(t *testing.T) {
	b := DefaultBackoffStrategy()
	d := b.Delay(1, bridgeerrors.NewConnectionError("x", nil))
	assert.GreaterOrEqual(t, d, time.Second)
}
