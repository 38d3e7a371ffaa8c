package domain

import (
	"fmt"
	"time"
)

// MaxNoteLength bounds the free-text note carried on a transition event.
const MaxNoteLength = 1000

// TransitionEvent is one row of the audit ledger. Rows are append-only:
// once written no field may change and the row may not be deleted, a
// property the storage layer enforces with triggers rather than trusting
// callers to behave.
type TransitionEvent struct {
	ID string

	// Seq is assigned by the store on append and is strictly monotonic.
	// Wall-clock timestamps are not guaranteed distinct under
	// same-millisecond writes, so ordered reads sort by (CreatedAt, Seq).
	Seq int64

	TenantID   string
	EntityID   string
	EntityType EntityType
	FromStatus Status
	ToStatus   Status
	ActorID    string
	Note       string
	CreatedAt  time.Time
}

// Validate checks the fields the engine controls before the event reaches
// the store.
func (e TransitionEvent) Validate() error {
	if e.EntityID == "" {
		return fmt.Errorf("transition event: entity id is required")
	}
	if e.ActorID == "" {
		return fmt.Errorf("transition event: actor id is required")
	}
	if e.FromStatus == "" || e.ToStatus == "" {
		return fmt.Errorf("transition event: from and to statuses are required")
	}
	if len(e.Note) > MaxNoteLength {
		return fmt.Errorf("transition event: note exceeds %d characters", MaxNoteLength)
	}
	return nil
}

// Orphan reasons reported by integrity checks.
const (
	OrphanMissingEntity  = "missing entity"
	OrphanTenantMismatch = "tenant mismatch"
)

// OrphanEvent is a ledger row that violates referential consistency: its
// entity no longer exists, or its tenant differs from its entity's tenant.
type OrphanEvent struct {
	Event  TransitionEvent
	Reason string
}

// ChainViolation reports an entity whose ledger history does not replay as
// a contiguous chain from its machine's initial state.
type ChainViolation struct {
	EntityID string
	Detail   string
}

// IntegrityReport aggregates one tenant's ledger violations.
type IntegrityReport struct {
	Orphans      []OrphanEvent
	BrokenChains []ChainViolation
}

// VerifyChain checks that events, ordered as given, form a valid transition
// chain from the entity's initial state: event i's FromStatus must equal
// event i-1's ToStatus, and event 0 must start at initial.
func VerifyChain(initial Status, events []TransitionEvent) error {
	prev := initial
	for i, e := range events {
		if e.FromStatus != prev {
			return fmt.Errorf("broken chain at event %d (%s): from_status %q, want %q", i, e.ID, e.FromStatus, prev)
		}
		prev = e.ToStatus
	}
	return nil
}
