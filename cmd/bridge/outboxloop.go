package main

import (
	"context"
	"time"

	"github.com/syncbridge/eventbridge/internal/outbox"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// staleThreshold and staleCheckInterval bound the background sweep that
// surfaces pending outbox rows stuck past a reasonable publish window,
// per spec.md's InboxRecord/OutboxRecord staleness invariant.
const (
	staleThreshold     = time.Hour
	staleCheckInterval = 5 * time.Minute
	staleSweepLimit    = 50
)

// runOutboxLoop drains the outbox pipeline once every idleSleep tick until
// ctx is cancelled. The tick interval is fixed; it does not change with
// how many rows a drain claims.
func runOutboxLoop(ctx context.Context, pipeline *outbox.Pipeline, idleSleep time.Duration, log *logger.Logger) {
	if idleSleep <= 0 {
		idleSleep = time.Second
	}
	ticker := time.NewTicker(idleSleep)
	defer ticker.Stop()

	lastStaleCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pipeline.DrainOnce(ctx)
			if err != nil {
				log.WithError(err).Error("outbox: drain failed", err)
				continue
			}
			if n > 0 {
				log.WithFields(map[string]any{"claimed": n}).Debug("outbox: drained batch")
			}

			if time.Since(lastStaleCheck) >= staleCheckInterval {
				lastStaleCheck = time.Now()
				logStaleRecords(ctx, pipeline, log)
			}
		}
	}
}

func logStaleRecords(ctx context.Context, pipeline *outbox.Pipeline, log *logger.Logger) {
	stale, err := pipeline.Stale(ctx, staleThreshold, staleSweepLimit)
	if err != nil {
		log.WithError(err).Warn("outbox: stale sweep failed")
		return
	}
	if len(stale) > 0 {
		log.WithFields(map[string]any{"count": len(stale)}).Warn("outbox: stale pending records detected")
	}
}
