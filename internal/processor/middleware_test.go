package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("test")
}

func TestChain_OrdersOutermostFirst(t *testing.T) {
	var order []string
	mwA := func(next Handler) Handler {
		return func(e Event) error {
			order = append(order, "a-in")
			err := next(e)
			order = append(order, "a-out")
			return err
		}
	}
	mwB := func(next Handler) Handler {
		return func(e Event) error {
			order = append(order, "b-in")
			err := next(e)
			order = append(order, "b-out")
			return err
		}
	}
	handler := Chain(func(e Event) error { order = append(order, "handler"); return nil }, mwA, mwB)

	require.NoError(t, handler(Event{}))
	assert.Equal(t, []string{"a-in", "b-in", "handler", "b-out", "a-out"}, order)
}

func TestErrorHandlingMiddleware_InvokesOnErrorAndReraises(t *testing.T) {
	var captured error
	mw := ErrorHandlingMiddleware(func(e Event, err error) { captured = err })
	handler := mw(func(e Event) error { return errors.New("boom") })

	err := handler(Event{})
	assert.Error(t, err)
	assert.Equal(t, err, captured)
}

type recordingMetrics struct {
	successes int
	failures  int
}

func (r *recordingMetrics) OnSuccess(eventType string, duration time.Duration) { r.successes++ }
func (r *recordingMetrics) OnFailure(eventType string, err error)              { r.failures++ }

func TestMetricsMiddleware_RecordsOutcome(t *testing.T) {
	rec := &recordingMetrics{}
	mw := MetricsMiddleware(rec)

	ok := mw(func(e Event) error { return nil })
	require.NoError(t, ok(Event{}))
	assert.Equal(t, 1, rec.successes)

	fail := mw(func(e Event) error { return errors.New("x") })
	_ = fail(Event{})
	assert.Equal(t, 1, rec.failures)
}

func TestTracingMiddleware_RestoresPriorValueOnExit(t *testing.T) {
	ctx := context.WithValue(context.Background(), traceContextKey{}, "outer")
	mw := TracingMiddleware(&ctx)
	handler := mw(func(e Event) error {
		v, _ := TraceIDFromContext(ctx)
		assert.Equal(t, "inner", v)
		return nil
	})

	require.NoError(t, handler(Event{TraceID: "inner"}))
	v, _ := TraceIDFromContext(ctx)
	assert.Equal(t, "outer", v)
}

func TestTimeoutMiddleware_ReturnsErrorOnTimeout(t *testing.T) {
	mw := TimeoutMiddleware(10 * time.Millisecond)
	handler := mw(func(e Event) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	err := handler(Event{Context: MessageContext{EventID: "e1"}})
	assert.Error(t, err)
}

func TestTimeoutMiddleware_PassesThroughFastHandler(t *testing.T) {
	mw := TimeoutMiddleware(100 * time.Millisecond)
	handler := mw(func(e Event) error { return nil })
	assert.NoError(t, handler(Event{}))
}
