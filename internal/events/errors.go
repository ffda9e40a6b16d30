package events

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityMismatch indicates that payload.id and entityId disagree.
	ErrIdentityMismatch = errors.New("events: identity mismatch")
	// ErrMissingIdentity indicates that neither payload.id nor entityId is present.
	ErrMissingIdentity = errors.New("events: missing identity")
	// ErrDuplicateEntity indicates a creation event for an id that already exists or was deleted.
	ErrDuplicateEntity = errors.New("events: duplicate entity")
	// ErrEntityNotFound indicates a mutation targeting an id that is absent.
	ErrEntityNotFound = errors.New("events: entity not found")
	// ErrEntityDeleted indicates a mutation targeting an id that carries a tombstone.
	// Errors carrying it also match ErrEntityNotFound.
	ErrEntityDeleted = errors.New("events: entity deleted")
	// ErrEntityInUse indicates a deletion of an entity that other records still reference.
	ErrEntityInUse = errors.New("events: entity in use")
	// ErrIndexOutOfRange indicates a sub-collection index outside [0, length).
	ErrIndexOutOfRange = errors.New("events: index out of range")
	// ErrInvalidEnumValue indicates an enumerated field outside its fixed set.
	ErrInvalidEnumValue = errors.New("events: invalid enum value")
	// ErrInvalidPayload indicates a payload missing required fields or carrying malformed values.
	ErrInvalidPayload = errors.New("events: invalid payload")
	// ErrUnhandledEventType indicates an event type without a reducer.
	ErrUnhandledEventType = errors.New("events: unhandled event type")
	// ErrDanglingDependency indicates events whose causal dependency never arrived.
	ErrDanglingDependency = errors.New("events: dangling dependency")
)

// Error kind names reported to callers.
const (
	KindIdentityMismatch   = "IdentityMismatch"
	KindMissingIdentity    = "MissingIdentity"
	KindDuplicateEntity    = "DuplicateEntity"
	KindEntityNotFound     = "EntityNotFound"
	KindEntityDeleted      = "EntityDeleted"
	KindEntityInUse        = "EntityInUse"
	KindIndexOutOfRange    = "IndexOutOfRange"
	KindInvalidEnumValue   = "InvalidEnumValue"
	KindInvalidPayload     = "InvalidPayload"
	KindUnhandledEventType = "UnhandledEventType"
	KindDanglingDependency = "DanglingDependency"
)

// ordered so that the more specific EntityDeleted wins over EntityNotFound
var errorKinds = []struct {
	sentinel error
	kind     string
}{
	{ErrIdentityMismatch, KindIdentityMismatch},
	{ErrMissingIdentity, KindMissingIdentity},
	{ErrDuplicateEntity, KindDuplicateEntity},
	{ErrEntityDeleted, KindEntityDeleted},
	{ErrEntityNotFound, KindEntityNotFound},
	{ErrEntityInUse, KindEntityInUse},
	{ErrIndexOutOfRange, KindIndexOutOfRange},
	{ErrInvalidEnumValue, KindInvalidEnumValue},
	{ErrInvalidPayload, KindInvalidPayload},
	{ErrUnhandledEventType, KindUnhandledEventType},
	{ErrDanglingDependency, KindDanglingDependency},
}

// Kind returns the error kind name for err, or an empty string when err carries no known kind.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.sentinel) {
			return candidate.kind
		}
	}
	return ""
}

// EventError ties a failure to the event that caused it.
type EventError struct {
	Index   int
	EventID string
	Type    Type
	Err     error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event %d (%s %s): %v", e.Index, e.Type, e.EventID, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// NewEventError wraps err with the identity of the failing event.
func NewEventError(index int, event Event, err error) *EventError {
	return &EventError{
		Index:   index,
		EventID: event.ID,
		Type:    event.Type,
		Err:     err,
	}
}

type kindError struct {
	sentinel error
	message  string
}

func (e *kindError) Error() string { return e.message }

func (e *kindError) Unwrap() error { return e.sentinel }

// KindError rebuilds an error of the named kind from its recorded message,
// for failures that were stored as a kind and a reason.
func KindError(kind, message string) error {
	for _, candidate := range errorKinds {
		if candidate.kind == kind {
			return &kindError{sentinel: candidate.sentinel, message: message}
		}
	}
	return errors.New(message)
}
