package domain

import (
	"context"
	"time"
)

// EntityStore defines the persistence contract for lifecycle entities.
// ApplyTransition is the only write path for an entity's status: it must
// update the status conditioned on the snapshot's version and append the
// event in the same transaction, or do neither. A lost race surfaces as
// ErrStaleState with nothing written.
type EntityStore interface {
	CreateEntity(ctx context.Context, e Entity) error
	GetEntity(ctx context.Context, id string) (Entity, error)
	ApplyTransition(ctx context.Context, snapshot Entity, event TransitionEvent) error
}

// Ledger defines ordered retrieval and integrity checks over the
// append-only event log. Appends happen exclusively through
// EntityStore.ApplyTransition.
type Ledger interface {
	History(ctx context.Context, entityID string) ([]TransitionEvent, error)
	DetectOrphans(ctx context.Context, tenantID string) ([]OrphanEvent, error)
	DetectBrokenChains(ctx context.Context, tenantID string) ([]ChainViolation, error)
}

// IntegrityChecker is the contract of the periodic consistency sweep, which
// runs outside the request path.
type IntegrityChecker interface {
	TenantIDs(ctx context.Context) ([]string, error)
	DetectOrphans(ctx context.Context, tenantID string) ([]OrphanEvent, error)
	DetectBrokenChains(ctx context.Context, tenantID string) ([]ChainViolation, error)
}

// TransitionValidator checks that an event is legal from the current status
// of the given entity type's machine and returns the destination.
type TransitionValidator interface {
	Apply(ctx context.Context, t EntityType, current Status, event Event) (Status, error)
}

// Authorizer resolves whether an actor holds any of the given roles within
// a tenant. How roles are determined is not the engine's concern.
type Authorizer interface {
	HasAnyRole(ctx context.Context, tenantID, actorID string, roles []Role) (bool, error)
}

// EventPublisher defines the contract for emitting applied transitions to
// downstream consumers. Publication is post-commit and best-effort; the
// ledger, not the queue, is the source of truth.
type EventPublisher interface {
	Publish(ctx context.Context, event TransitionEvent) error
}

// MilestoneStore persists mediated-request milestone timestamps.
// SetMilestone writes conditionally on the column being unset and returns
// ErrStaleState when another writer got there first.
type MilestoneStore interface {
	Milestones(ctx context.Context, entityID string) (Milestones, error)
	SetMilestone(ctx context.Context, entityID string, m Milestone, at time.Time) error
}

// QueueReader loads the mediated requests with open operator work for one
// tenant, unordered; ranking is the scheduler's job.
type QueueReader interface {
	OpenRequests(ctx context.Context, tenantID string) ([]RequestSnapshot, error)
}

// ComplianceReader exposes the import-case data the clearance guard needs.
type ComplianceReader interface {
	LinesMissingIdentifiers(ctx context.Context, caseID string) (int, error)
}

// CaseLineStore persists import-case line items.
type CaseLineStore interface {
	CreateCaseLine(ctx context.Context, line CaseLine) error
}

// RoleStore grants actor roles within a tenant.
type RoleStore interface {
	GrantRole(ctx context.Context, tenantID, actorID string, role Role) error
}
