package main

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/eventbridge/internal/processor"
)

// dlqPublisher implements processor.DlqPublisher by JSON-encoding the
// payload onto the bridge's fixed dead-letter subject, per spec.md
// section 4.4/6.
type dlqPublisher struct {
	js      nats.JetStreamContext
	subject string
}

func (d *dlqPublisher) PublishDlq(payload processor.DlqPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dlq: marshal payload: %w", err)
	}
	_, err = d.js.Publish(d.subject, data)
	return err
}
