// Package processor implements the Message Processor (spec.md section
// 4.4): converting a raw stream message into a typed Event and invoking
// the user handler with correct ack semantics through a middleware chain.
package processor

import (
	"time"

	"github.com/syncbridge/eventbridge/internal/envelope"
)

// MessageContext carries per-delivery metadata alongside the parsed
// envelope, per spec.md section 4.4 step 1.
type MessageContext struct {
	EventID    string
	Deliveries int
	Stream     string
	StreamSeq  uint64
	Consumer   string
	Subject    string
}

// Event is the immutable value the middleware chain and user handler
// operate on: the envelope's fields plus delivery metadata.
type Event struct {
	Envelope envelope.Envelope
	Context  MessageContext
	TraceID  string
}

// Handler is the user's business logic for one Event.
type Handler func(e Event) error

// Middleware wraps a Handler with cross-cutting behavior, terminating at
// next when it chooses to proceed.
type Middleware func(next Handler) Handler

// Chain composes middlewares in order: the first middleware listed is the
// outermost, matching spec.md's "ordered sequence of components that
// receive the Event and a continuation".
func Chain(handler Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// now is a small seam so middleware doesn't call time.Now directly,
// kept here rather than injected per-call to avoid threading a clock
// through every Handler signature.
var now = time.Now
