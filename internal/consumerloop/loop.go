// Package consumerloop drives the long-lived fetch/dispatch loop described
// in spec.md section 4.6: fetch a batch, dispatch each message through the
// inbox or message processor, adapt idle backoff to traffic, and drain
// in-flight work on shutdown.
package consumerloop

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// DrainMaxBatches bounds how many extra batches the loop fetches during
// shutdown drain, per spec.md section 4.6 step 4's "fetch up to 5 more
// batches".
const DrainMaxBatches = 5

// Fetcher returns up to batchSize messages, blocking at most timeout. An
// empty, nil-error result means "no messages available" — not an error.
type Fetcher func(ctx context.Context, batchSize int, timeout time.Duration) ([]Delivery, error)

// Delivery is one fetched message handed to Dispatch.
type Delivery struct {
	Ack   func() error
	Nak   func(delay time.Duration) error
	Raw   any
}

// Dispatch processes one Delivery and applies ack/nak itself; Loop never
// inspects the outcome beyond catching a panic.
type Dispatch func(ctx context.Context, d Delivery)

// Config tunes loop timing.
type Config struct {
	BatchSize      int
	FetchTimeout   time.Duration
	IdleSleep      time.Duration
	MaxIdleBackoff time.Duration
}

// Loop is the runtime driving one consumer worker.
type Loop struct {
	cfg      Config
	fetch    Fetcher
	dispatch Dispatch
	onEnsure func() error
	logger   *logger.Logger

	mu      sync.Mutex
	running bool
}

// New builds a Loop. onEnsure is invoked to re-run topology ensure and
// resubscribe after a recoverable consumer error, per spec.md section 4.6
// step 2; it may be nil if the caller has nothing to re-run.
func New(cfg Config, fetch Fetcher, dispatch Dispatch, onEnsure func() error, log *logger.Logger) *Loop {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = time.Second
	}
	if cfg.MaxIdleBackoff <= 0 {
		cfg.MaxIdleBackoff = 30 * time.Second
	}
	return &Loop{cfg: cfg, fetch: fetch, dispatch: dispatch, onEnsure: onEnsure, logger: log}
}

// Run drives the loop until ctx is cancelled, then performs the drain
// phase before returning.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()

	idle := l.cfg.IdleSleep

	for l.isRunning() && ctx.Err() == nil {
		n, err := l.fetchBatch(ctx)
		if err != nil {
			if isRecoverableConsumerError(err) {
				l.logger.WithError(err).Warn("consumerloop: recoverable fetch error, re-ensuring topology")
				if l.onEnsure != nil {
					if ensureErr := l.onEnsure(); ensureErr != nil {
						l.logger.WithError(ensureErr).Error("consumerloop: re-ensure failed", ensureErr)
					}
				}
			} else {
				l.logger.WithError(err).Error("consumerloop: non-recoverable fetch error", err)
			}
			// Per spec.md section 4.6 steps 2-3, an error "returns 0 for
			// the current batch" — it falls through to the same
			// idle-backoff path an empty batch takes below, rather than
			// looping straight back to fetch and busy-spinning on a
			// persistent error.
			n = 0
		}

		if n > 0 {
			idle = l.cfg.IdleSleep
			continue
		}

		idle *= 2
		if idle > l.cfg.MaxIdleBackoff {
			idle = l.cfg.MaxIdleBackoff
		}
		select {
		case <-ctx.Done():
		case <-time.After(idle):
		}
	}

	l.drain(context.Background())
}

// Stop sets running=false; the loop exits after its current fetch/dispatch
// cycle, mirroring spec.md's "stop! sets a flag the loop polls between
// messages".
func (l *Loop) Stop() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *Loop) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) fetchBatch(ctx context.Context) (int, error) {
	deliveries, err := l.fetch(ctx, l.cfg.BatchSize, l.cfg.FetchTimeout)
	if err != nil {
		return 0, err
	}
	for _, d := range deliveries {
		l.dispatchSafely(ctx, d)
	}
	return len(deliveries), nil
}

// dispatchSafely isolates one message's failure from the rest of the
// batch, per spec.md section 4.6's "failure in one message must not lose
// others", and attempts a best-effort nak if dispatch itself panics, per
// the "safe_nak_message" crash-safety requirement.
func (l *Loop) dispatchSafely(ctx context.Context, d Delivery) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(map[string]any{"panic": r}).Error("consumerloop: dispatch panicked, attempting safe nak", nil)
			l.safeNak(d)
		}
	}()
	l.dispatch(ctx, d)
}

func (l *Loop) safeNak(d Delivery) {
	if d.Nak == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	if err := d.Nak(0); err != nil {
		l.logger.WithError(err).Warn("consumerloop: safe_nak_message failed")
	}
}

// drain fetches up to DrainMaxBatches more batches (or until empty) so
// in-flight work finishes before the worker exits, per spec.md section
// 4.6 step 4.
func (l *Loop) drain(ctx context.Context) {
	for i := 0; i < DrainMaxBatches; i++ {
		n, err := l.fetchBatch(ctx)
		if err != nil || n == 0 {
			return
		}
	}
}

// recoverableMarkers lists the substrings spec.md section 4.6 step 2 names
// as recoverable consumer errors.
var recoverableMarkers = []string{
	"not found",
	"was deleted",
	"no responders",
	"stream not found",
	"404",
}

func isRecoverableConsumerError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range recoverableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
