package main

import (
	"time"

	"github.com/syncbridge/eventbridge/internal/connection"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// connectWithRetry calls Connect up to attempts times, sleeping delay
// between tries, per spec.md section 6's connect_retry_attempts/
// connect_retry_delay options.
func connectWithRetry(sup *connection.Supervisor, attempts int, delay time.Duration, log *logger.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		err := sup.Connect()
		if err == nil {
			return nil
		}
		lastErr = err
		if i < attempts {
			log.WithFields(map[string]any{"attempt": i, "max": attempts}).Warn("nats connect failed, retrying")
			time.Sleep(delay)
		}
	}
	return lastErr
}
