package processor

import (
	"time"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
)

// BackoffStrategy computes the redelivery delay for a failed handler
// invocation, per spec.md section 4.4: transient errors use a shorter
// base delay than other errors, both following the same clamped
// exponential shape.
type BackoffStrategy struct {
	TransientBase time.Duration
	DefaultBase   time.Duration
	Min           time.Duration
	Max           time.Duration
}

// DefaultBackoffStrategy matches spec.md's documented constants: transient
// base_delay=0.5s, default base_delay=2.0s, clamp(1s, 60s).
func DefaultBackoffStrategy() BackoffStrategy {
	return BackoffStrategy{
		TransientBase: 500 * time.Millisecond,
		DefaultBase:   2 * time.Second,
		Min:           time.Second,
		Max:           60 * time.Second,
	}
}

// Delay returns the redelivery delay in whole seconds for the given
// delivery attempt and error, per spec.md's "returns integer seconds".
func (b BackoffStrategy) Delay(attempt int, err error) time.Duration {
	base := b.DefaultBase
	if bridgeerrors.Transient(err) {
		base = b.TransientBase
	}
	if attempt < 1 {
		attempt = 1
	}

	raw := base
	for i := 1; i < attempt; i++ {
		raw *= 2
	}
	if raw < b.Min {
		raw = b.Min
	}
	if raw > b.Max {
		raw = b.Max
	}
	return raw.Round(time.Second)
}
