// Package subject implements the dot-separated subject value type spec.md
// section 3 and section 6 define: source, destination, and DLQ subject
// families, plus the validation grammar shared by every family.
package subject

import (
	"strings"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
)

// MaxLength is the longest a subject may be, spec.md section 3.
const MaxLength = 255

// Subject is an immutable, validated dot-separated NATS subject.
type Subject struct {
	value string
}

// New validates raw and returns a Subject, or an InvalidSubjectError.
func New(raw string) (Subject, error) {
	if err := Validate(raw); err != nil {
		return Subject{}, err
	}
	return Subject{value: raw}, nil
}

// MustNew panics on an invalid subject; intended for compile-time constants
// and tests, never for values derived from configuration or input.
func MustNew(raw string) Subject {
	s, err := New(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Subject) String() string { return s.value }

// Validate checks a candidate subject against spec.md section 6's grammar:
// components must not contain ".", "*", ">", whitespace, or control
// characters, and the whole subject must be 1-255 bytes.
func Validate(raw string) error {
	if raw == "" {
		return bridgeerrors.NewInvalidSubjectError(raw, "subject must not be empty")
	}
	if len(raw) > MaxLength {
		return bridgeerrors.NewInvalidSubjectError(raw, "subject exceeds 255 characters")
	}
	for _, tok := range strings.Split(raw, ".") {
		if err := validateComponent(tok); err != nil {
			return bridgeerrors.NewInvalidSubjectError(raw, err.Error())
		}
	}
	return nil
}

func validateComponent(tok string) error {
	if tok == "" {
		return errEmptyComponent
	}
	for _, r := range tok {
		switch {
		case r == '*' || r == '>':
			return errReservedChar
		case r == ' ' || r == '\t':
			return errWhitespace
		case r < 0x20 || r == 0x7f:
			return errControlChar
		}
	}
	return nil
}

type subjectErr string

func (e subjectErr) Error() string { return string(e) }

const (
	errEmptyComponent subjectErr = "subject component must not be empty"
	errReservedChar   subjectErr = "subject component must not contain '*' or '>'"
	errWhitespace     subjectErr = "subject component must not contain whitespace"
	errControlChar    subjectErr = "subject component must not contain control characters"
)

// Source builds the "{env}.{app}.sync.{peer}" subject this app publishes to.
func Source(env, app, peer string) (Subject, error) {
	return New(env + "." + app + ".sync." + peer)
}

// Destination builds the "{env}.{peer}.sync.{app}" subject this app reads
// from: the peer's Source subject viewed from here.
func Destination(env, app, peer string) (Subject, error) {
	return New(env + "." + peer + ".sync." + app)
}

// DLQ builds the fixed dead-letter subject for this app.
func DLQ(env, app string) (Subject, error) {
	return New(env + "." + app + ".sync.dlq")
}

// PushDelivery builds the default push-mode delivery subject, "{dest}.worker".
func PushDelivery(dest Subject) (Subject, error) {
	return New(dest.String() + ".worker")
}
