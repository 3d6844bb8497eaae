// Package bridgeerrors defines the error taxonomy shared by every bridge
// component: configuration failures, connection/topology health, and the
// per-message decisions the processor and outbox make.
package bridgeerrors

import (
	"errors"
	"fmt"
)

// Sentinels usable with errors.Is without inspecting a typed field.
var (
	ErrConfiguration           = errors.New("configuration error")
	ErrInvalidSubject          = errors.New("invalid subject")
	ErrMissingConfiguration    = errors.New("missing configuration")
	ErrConnection              = errors.New("connection error")
	ErrConnectionNotEstablished = errors.New("connection not established")
	ErrHealthCheckFailed       = errors.New("health check failed")
	ErrTopology                = errors.New("topology error")
	ErrStreamNotFound          = errors.New("stream not found")
	ErrStreamCreationFailed    = errors.New("stream creation failed")
	ErrSubjectOverlap          = errors.New("subject overlap")
	ErrPublish                 = errors.New("publish error")
	ErrBatchPublish            = errors.New("batch publish error")
	ErrConsumer                = errors.New("consumer error")
	ErrRetryExhausted          = errors.New("retry exhausted")
	ErrDlq                     = errors.New("dlq error")
)

// ConfigurationError signals invalid or missing configuration. Never retried.
type ConfigurationError struct {
	Message string
	Context map[string]any
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func NewConfigurationError(msg string, ctx map[string]any) *ConfigurationError {
	return &ConfigurationError{Message: msg, Context: ctx}
}

// InvalidSubjectError is a ConfigurationError subkind for malformed subjects.
type InvalidSubjectError struct {
	Subject string
	Reason  string
	Context map[string]any
}

func (e *InvalidSubjectError) Error() string {
	return fmt.Sprintf("invalid subject %q: %s", e.Subject, e.Reason)
}

func (e *InvalidSubjectError) Unwrap() error { return ErrInvalidSubject }

func NewInvalidSubjectError(subject, reason string) *InvalidSubjectError {
	return &InvalidSubjectError{Subject: subject, Reason: reason}
}

// MissingConfigurationError is a ConfigurationError subkind for absent keys.
type MissingConfigurationError struct {
	Key     string
	Context map[string]any
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Key)
}

func (e *MissingConfigurationError) Unwrap() error { return ErrMissingConfiguration }

func NewMissingConfigurationError(key string) *MissingConfigurationError {
	return &MissingConfigurationError{Key: key}
}

// ConnectionError reports URL/protocol level transport failures.
type ConnectionError struct {
	Message string
	Context map[string]any
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error { return ErrConnection }

func NewConnectionError(msg string, ctx map[string]any) *ConnectionError {
	return &ConnectionError{Message: msg, Context: ctx}
}

// ConnectionNotEstablished is returned when the JetStream context is
// requested before Connect has succeeded at least once.
type ConnectionNotEstablished struct{}

func (e *ConnectionNotEstablished) Error() string {
	return "jetstream context requested before connect"
}

func (e *ConnectionNotEstablished) Unwrap() error { return ErrConnectionNotEstablished }

// HealthCheckFailedError is returned when Connected() is rate-limited or the
// underlying probe fails.
type HealthCheckFailedError struct {
	Message string
	Context map[string]any
}

func (e *HealthCheckFailedError) Error() string {
	return fmt.Sprintf("health check failed: %s", e.Message)
}

func (e *HealthCheckFailedError) Unwrap() error { return ErrHealthCheckFailed }

func NewHealthCheckFailedError(msg string) *HealthCheckFailedError {
	return &HealthCheckFailedError{Message: msg}
}

// TopologyError wraps stream/consumer declaration failures.
type TopologyError struct {
	Message string
	Context map[string]any
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("topology error: %s", e.Message)
}

func (e *TopologyError) Unwrap() error { return ErrTopology }

func NewTopologyError(msg string, ctx map[string]any) *TopologyError {
	return &TopologyError{Message: msg, Context: ctx}
}

// StreamNotFoundError is a TopologyError subkind.
type StreamNotFoundError struct {
	Stream  string
	Context map[string]any
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("stream not found: %s", e.Stream)
}

func (e *StreamNotFoundError) Unwrap() error { return ErrStreamNotFound }

// StreamCreationFailedError is a TopologyError subkind.
type StreamCreationFailedError struct {
	Stream  string
	Cause   error
	Context map[string]any
}

func (e *StreamCreationFailedError) Error() string {
	return fmt.Sprintf("failed to create stream %s: %v", e.Stream, e.Cause)
}

func (e *StreamCreationFailedError) Unwrap() error { return ErrStreamCreationFailed }

// SubjectOverlapError is a TopologyError subkind for conflicting subjects.
type SubjectOverlapError struct {
	Subject string
	With    string
	Context map[string]any
}

func (e *SubjectOverlapError) Error() string {
	return fmt.Sprintf("subject %q overlaps with %q", e.Subject, e.With)
}

func (e *SubjectOverlapError) Unwrap() error { return ErrSubjectOverlap }

// PublishError reports a failed publish attempt for a single event.
type PublishError struct {
	EventID string
	Subject string
	Cause   error
	Context map[string]any
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed for event %s on %s: %v", e.EventID, e.Subject, e.Cause)
}

func (e *PublishError) Unwrap() error { return ErrPublish }

func NewPublishError(eventID, subject string, cause error) *PublishError {
	return &PublishError{EventID: eventID, Subject: subject, Cause: cause}
}

// BatchPublishError aggregates failures from a batch of publish attempts.
type BatchPublishError struct {
	FailedEvents   []string
	SuccessfulCount int
	Context        map[string]any
}

func (e *BatchPublishError) Error() string {
	return fmt.Sprintf("batch publish: %d succeeded, %d failed", e.SuccessfulCount, len(e.FailedEvents))
}

func (e *BatchPublishError) Unwrap() error { return ErrBatchPublish }

// ConsumerError reports a handler/processing failure for a delivered message.
type ConsumerError struct {
	Message    string
	EventID    string
	Deliveries int
	Context    map[string]any
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("consumer error for event %s (deliveries=%d): %s", e.EventID, e.Deliveries, e.Message)
}

func (e *ConsumerError) Unwrap() error { return ErrConsumer }

func NewConsumerError(msg, eventID string, deliveries int) *ConsumerError {
	return &ConsumerError{Message: msg, EventID: eventID, Deliveries: deliveries}
}

// RetryExhausted is returned by a retry loop once max_attempts is reached.
type RetryExhausted struct {
	Attempts      int
	OriginalError error
	Context       map[string]any
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.OriginalError)
}

func (e *RetryExhausted) Unwrap() error { return ErrRetryExhausted }

func NewRetryExhausted(attempts int, cause error) *RetryExhausted {
	return &RetryExhausted{Attempts: attempts, OriginalError: cause}
}

// DlqError reports a failure to publish to the dead-letter subject.
type DlqError struct {
	Message string
	Cause   error
	Context map[string]any
}

func (e *DlqError) Error() string {
	return fmt.Sprintf("dlq publish failed: %s: %v", e.Message, e.Cause)
}

func (e *DlqError) Unwrap() error { return ErrDlq }

func NewDlqError(msg string, cause error) *DlqError {
	return &DlqError{Message: msg, Cause: cause}
}

// Unrecoverable classifies an error as one the processor should never retry
// (argument/type errors), routing it straight to the DLQ path instead of
// redelivery. Mirrors spec.md 4.4 step 4's "unrecoverable (argument/type
// class)" test.
func Unrecoverable(err error) bool {
	var cfgErr *ConfigurationError
	var subjErr *InvalidSubjectError
	return errors.As(err, &cfgErr) || errors.As(err, &subjErr)
}

// Transient classifies an error as belonging to the "transient" backoff
// class (timeouts, IO, connection hiccups) used by BackoffStrategy.
func Transient(err error) bool {
	var connErr *ConnectionError
	var healthErr *HealthCheckFailedError
	if errors.As(err, &connErr) || errors.As(err, &healthErr) {
		return true
	}
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrHealthCheckFailed)
}
