package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// LoggingMiddleware logs the start, end, and duration of each handler
// invocation, adapted from the teacher's HTTP request logger
// (internal/delivery/http/middleware/logger.go) to the Event pipeline.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next Handler) Handler {
		return func(e Event) error {
			start := now()
			log.WithFields(map[string]any{
				"event_id":   e.Context.EventID,
				"event_type": e.Envelope.EventType,
				"deliveries": e.Context.Deliveries,
			}).Debug("processing event")

			err := next(e)

			fields := map[string]any{
				"event_id":    e.Context.EventID,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if err != nil {
				log.WithFields(fields).WithError(err).Warn("event handler failed")
			} else {
				log.WithFields(fields).Debug("event handled")
			}
			return err
		}
	}
}

// ErrorHandlingMiddleware invokes onError as a side effect when the
// handler fails, then re-raises, per spec.md's "on-error callback;
// re-raises".
func ErrorHandlingMiddleware(onError func(e Event, err error)) Middleware {
	return func(next Handler) Handler {
		return func(e Event) error {
			err := next(e)
			if err != nil && onError != nil {
				onError(e, err)
			}
			return err
		}
	}
}

// MetricsRecorder receives success/failure outcomes from MetricsMiddleware.
type MetricsRecorder interface {
	OnSuccess(eventType string, duration time.Duration)
	OnFailure(eventType string, err error)
}

// MetricsMiddleware reports handler outcomes to a MetricsRecorder.
func MetricsMiddleware(recorder MetricsRecorder) Middleware {
	return func(next Handler) Handler {
		return func(e Event) error {
			start := now()
			err := next(e)
			if err != nil {
				recorder.OnFailure(e.Envelope.EventType, err)
			} else {
				recorder.OnSuccess(e.Envelope.EventType, time.Since(start))
			}
			return err
		}
	}
}

// traceContextKey is the ambient-context key TracingMiddleware uses to
// propagate trace_id to code beneath the handler.
type traceContextKey struct{}

// TracingMiddleware propagates e.TraceID into ctx for the duration of the
// handler call and restores the prior value on every exit path (including
// panics, which it lets propagate after restoring), per spec.md section
// 4.4.
func TracingMiddleware(ctx *context.Context) Middleware {
	return func(next Handler) Handler {
		return func(e Event) error {
			prior := (*ctx).Value(traceContextKey{})
			*ctx = context.WithValue(*ctx, traceContextKey{}, e.TraceID)
			defer func() {
				*ctx = context.WithValue(*ctx, traceContextKey{}, prior)
			}()
			return next(e)
		}
	}
}

// TraceIDFromContext retrieves the trace_id TracingMiddleware propagated.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceContextKey{}).(string)
	return v, ok
}

// TimeoutMiddleware returns a ConsumerError carrying event_id and
// deliveries if the handler runs longer than d. The handler runs in its
// own goroutine and is not stopped at the deadline: it keeps running to
// completion and its eventual result is discarded.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(e Event) error {
			done := make(chan error, 1)
			go func() {
				done <- next(e)
			}()
			select {
			case err := <-done:
				return err
			case <-time.After(d):
				err := bridgeerrors.NewConsumerError(
					fmt.Sprintf("timeout after %s", d), e.Context.EventID, e.Context.Deliveries,
				)
				err.Context = map[string]any{"event_id": e.Context.EventID, "deliveries": e.Context.Deliveries}
				return err
			}
		}
	}
}
