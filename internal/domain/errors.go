package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrEntityNotFound = errors.New("entity not found")

	// ErrStaleState means the entity changed between the snapshot read and
	// the conditional write. The caller must re-read and resubmit; nothing
	// was written for the losing request.
	ErrStaleState = errors.New("entity state changed concurrently")
)

// UnknownEntityTypeError is returned for an entity type with no machine.
type UnknownEntityTypeError struct {
	Type EntityType
}

func (e *UnknownEntityTypeError) Error() string {
	return fmt.Sprintf("unknown entity type %q", e.Type)
}

// TransitionError is returned when an event is not valid from the current
// status of the entity's machine.
type TransitionError struct {
	EntityType EntityType
	Event      Event
	Current    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q for %s", e.Event, e.Current, e.EntityType)
}

// IllegalTransitionError is returned when the requested edge does not exist
// in the entity type's machine, including no-op requests where the target
// equals the current status.
type IllegalTransitionError struct {
	EntityType EntityType
	From       Status
	To         Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("transition %q -> %q is not allowed for %s", e.From, e.To, e.EntityType)
}

// UnauthorizedError is returned when the acting party holds none of the
// roles the edge requires.
type UnauthorizedError struct {
	ActorID string
	Event   Event
	Roles   []Role
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("actor %q is not authorized to trigger %q (requires one of %v)", e.ActorID, e.Event, e.Roles)
}

// PolicyViolationError is returned when a side constraint beyond pure
// state-machine legality fails. Reason is actionable guidance for the
// operator or calling UI.
type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return "policy violation: " + e.Reason
}

// MilestoneOrderError is returned when setting a milestone would violate
// the set-at-most-once or monotonic-ordering rules.
type MilestoneOrderError struct {
	Milestone Milestone
	Reason    string
}

func (e *MilestoneOrderError) Error() string {
	return fmt.Sprintf("milestone %q: %s", e.Milestone, e.Reason)
}

// StorageError wraps a backing-store failure. It is never interpreted as a
// successful no-op: callers retry with backoff or surface it as operational.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
