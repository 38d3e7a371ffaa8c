package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claravin/vinflow/internal/domain"
)

// Executor is the single write path for entity status changes. It validates
// a requested transition against the entity's machine, the actor's roles,
// and the policy guards, then applies the status update and the ledger
// append as one atomic unit.
type Executor struct {
	store      domain.EntityStore
	validator  domain.TransitionValidator
	auth       domain.Authorizer
	guards     *Guards
	publisher  domain.EventPublisher
	milestones domain.MilestoneStore
}

// NewExecutor creates an executor with the given adapters.
func NewExecutor(
	store domain.EntityStore,
	validator domain.TransitionValidator,
	auth domain.Authorizer,
	guards *Guards,
	publisher domain.EventPublisher,
	milestones domain.MilestoneStore,
) *Executor {
	return &Executor{
		store:      store,
		validator:  validator,
		auth:       auth,
		guards:     guards,
		publisher:  publisher,
		milestones: milestones,
	}
}

// ExecuteParams describes one requested transition.
type ExecuteParams struct {
	EntityType domain.EntityType
	EntityID   string
	Target     domain.Status
	ActorID    string
	Note       string
}

// Result is returned for an accepted transition.
type Result struct {
	NewStatus domain.Status
	EventID   string
}

// Execute moves an entity to the target status.
//
// Failure taxonomy: IllegalTransitionError / TransitionError (edge not in
// the machine, includes no-op requests), UnauthorizedError (actor lacks the
// edge's roles), PolicyViolationError (side constraint failed),
// ErrStaleState (lost a concurrency race; caller re-reads and retries),
// ErrEntityNotFound, StorageError. Validation failures never write a
// ledger event; exactly one event is written per accepted request.
func (x *Executor) Execute(ctx context.Context, p ExecuteParams) (Result, error) {
	ent, err := x.store.GetEntity(ctx, p.EntityID)
	if err != nil {
		return Result{}, err
	}
	if p.EntityType != "" && ent.Type != p.EntityType {
		return Result{}, domain.ErrEntityNotFound
	}

	machine, err := domain.MachineFor(ent.Type)
	if err != nil {
		return Result{}, err
	}

	edge, ok := machine.EdgeTo(ent.Status, p.Target)
	if !ok {
		return Result{}, &domain.IllegalTransitionError{EntityType: ent.Type, From: ent.Status, To: p.Target}
	}

	// Cross-check against the FSM: the edge table and the machine must agree
	// on the destination.
	dst, err := x.validator.Apply(ctx, ent.Type, ent.Status, edge.Event)
	if err != nil {
		return Result{}, err
	}
	if dst != p.Target {
		return Result{}, &domain.IllegalTransitionError{EntityType: ent.Type, From: ent.Status, To: p.Target}
	}

	if err := x.authorize(ctx, ent, edge, p.ActorID); err != nil {
		return Result{}, err
	}

	if err := x.guards.Check(ctx, ent, p.Target); err != nil {
		return Result{}, err
	}

	event := domain.TransitionEvent{
		ID:         uuid.NewString(),
		TenantID:   ent.TenantID,
		EntityID:   ent.ID,
		EntityType: ent.Type,
		FromStatus: ent.Status,
		ToStatus:   p.Target,
		ActorID:    p.ActorID,
		Note:       p.Note,
		CreatedAt:  time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return Result{}, &domain.PolicyViolationError{Reason: err.Error()}
	}

	if err := x.store.ApplyTransition(ctx, ent, event); err != nil {
		return Result{}, err
	}

	x.afterCommit(ctx, ent, event)

	return Result{NewStatus: p.Target, EventID: event.ID}, nil
}

func (x *Executor) authorize(ctx context.Context, ent domain.Entity, edge domain.Edge, actorID string) error {
	if actorID == "" {
		return &domain.UnauthorizedError{ActorID: actorID, Event: edge.Event, Roles: edge.Roles}
	}

	// The system actor carries RoleSystem implicitly; everything else is
	// resolved through the authorization collaborator.
	if actorID == domain.SystemActorID && edge.AllowsRole(domain.RoleSystem) {
		return nil
	}

	ok, err := x.auth.HasAnyRole(ctx, ent.TenantID, actorID, edge.Roles)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.UnauthorizedError{ActorID: actorID, Event: edge.Event, Roles: edge.Roles}
	}
	return nil
}

// afterCommit runs the post-commit side effects of an applied transition.
// The transition itself has already committed; failures here are logged and
// never turn an applied transition into a reported failure.
func (x *Executor) afterCommit(ctx context.Context, ent domain.Entity, event domain.TransitionEvent) {
	if ent.Type == domain.TypeMediatedRequest &&
		(event.ToStatus == domain.StatusAccepted || event.ToStatus == domain.StatusDeclined) {
		err := x.milestones.SetMilestone(ctx, ent.ID, domain.MilestoneResponded, event.CreatedAt)
		if err != nil && !errors.Is(err, domain.ErrStaleState) {
			slog.ErrorContext(ctx, "recording responded milestone",
				"entity_id", ent.ID,
				"error", err,
			)
		}
	}

	if err := x.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "publishing transition event",
			"event_id", event.ID,
			"entity_id", ent.ID,
			"error", err,
		)
	}
}
