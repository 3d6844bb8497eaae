package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinearBackoff_HoldsAtLastEntry(t *testing.T) {
	b := DefaultLinearBackoff()
	assert.Equal(t, 250*time.Millisecond, b.Delay(1))
	assert.Equal(t, time.Second, b.Delay(2))
	assert.Equal(t, 2*time.Second, b.Delay(3))
	assert.Equal(t, 2*time.Second, b.Delay(10))
}

func TestExponentialBackoff_Monotonic(t *testing.T) {
	b := ExponentialBackoff{Base: 500 * time.Millisecond, Mult: 2, MaxDelay: 60 * time.Second}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		d := b.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "backoff must be monotonically non-decreasing")
		prev = d
	}
}

func TestExponentialBackoff_ClampsAtMax(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Mult: 2, MaxDelay: 10 * time.Second}
	assert.Equal(t, 10*time.Second, b.Delay(20))
}

func TestExponentialBackoff_JitterStaysInRange(t *testing.T) {
	b := ExponentialBackoff{Base: 10 * time.Second, Mult: 1, MaxDelay: 0, Jitter: true}
	for i := 0; i < 50; i++ {
		d := b.Delay(1)
		assert.InDelta(t, float64(10*time.Second), float64(d), float64(1*time.Second))
	}
}

func TestRun_SucceedsWithoutExhausting(t *testing.T) {
	calls := 0
	res := Run(func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	}, DefaultLinearBackoff(), 5, func(time.Duration) {})

	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)
}

func TestRun_ExhaustsAndReturnsLastError(t *testing.T) {
	res := Run(func(attempt int) error {
		return errors.New("always fails")
	}, DefaultLinearBackoff(), 3, func(time.Duration) {})

	assert.Error(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
}
