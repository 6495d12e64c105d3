package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrTaskNotFound     = errors.New("notification task not found")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrMalformedPayload = errors.New("malformed event payload")
)

// SignatureError is returned when an inbound payload fails signature
// verification. It is surfaced as a non-success response so the provider
// retries, unlike handler failures which are acknowledged.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("event signature verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// ValidationError is returned when an event payload is missing required
// fields. It is raised before any write and acknowledged to the sender.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event payload, fields: %v", e.Fields)
}

// ConflictError reports a uniqueness violation on a tenant key. The
// repository recovers it internally during upsert; it only escapes when
// recovery itself fails.
type ConflictError struct {
	Key   string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tenant %s %q already exists", e.Key, e.Value)
}

// TransitionError is returned when a notification task state change is
// not allowed.
type TransitionError struct {
	Event   TaskEvent
	Current TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from task status %q", e.Event, e.Current)
}
