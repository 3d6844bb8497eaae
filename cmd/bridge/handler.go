package main

import (
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
	"github.com/syncbridge/eventbridge/internal/processor"
)

// ApplyHandler is the business effect this bridge instance applies for
// each inbound event. Domain models are out of scope for this process
// (spec.md section 1 treats them as an external collaborator) — a real
// deployment supplies its own implementation; this one just logs, so the
// wiring can be exercised end to end without a domain layer.
type ApplyHandler interface {
	Apply(e processor.Event) error
}

// noopApplyHandler logs and succeeds, standing in for the domain-specific
// handler a real service would plug in.
type noopApplyHandler struct {
	logger *logger.Logger
}

func (h *noopApplyHandler) Apply(e processor.Event) error {
	h.logger.WithFields(map[string]any{
		"event_id":   e.Context.EventID,
		"event_type": e.Envelope.EventType,
		"resource":   e.Envelope.ResourceType + ":" + e.Envelope.ResourceID,
	}).Debug("applying inbound event")
	return nil
}

// businessHandler adapts an ApplyHandler to processor.Handler, wrapped in
// the middleware chain spec.md section 4.4 describes.
func businessHandler(h ApplyHandler, log *logger.Logger) processor.Handler {
	base := func(e processor.Event) error { return h.Apply(e) }
	return processor.Chain(base, processor.LoggingMiddleware(log))
}
