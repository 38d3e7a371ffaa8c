package app

import (
	"context"
	"fmt"
	"time"

	"github.com/claravin/vinflow/internal/domain"
)

// LifecycleService covers the read and setup operations around the
// transition engine: entity creation, history retrieval, the operator
// queue, and the compliance fixtures (case lines, actor roles).
type LifecycleService struct {
	entities domain.EntityStore
	ledger   domain.Ledger
	queue    domain.QueueReader
	lines    domain.CaseLineStore
	roles    domain.RoleStore
}

// NewLifecycleService creates a service with the given adapters.
func NewLifecycleService(
	entities domain.EntityStore,
	ledger domain.Ledger,
	queue domain.QueueReader,
	lines domain.CaseLineStore,
	roles domain.RoleStore,
) *LifecycleService {
	return &LifecycleService{
		entities: entities,
		ledger:   ledger,
		queue:    queue,
		lines:    lines,
		roles:    roles,
	}
}

// CreateEntity persists a new lifecycle entity in its initial state with
// zero ledger events. Import cases must name the delivery registration they
// depend on; no other type may.
func (s *LifecycleService) CreateEntity(ctx context.Context, tenantID string, t domain.EntityType, linkedRegistrationID string) (domain.Entity, error) {
	switch {
	case t == domain.TypeImportCase && linkedRegistrationID == "":
		return domain.Entity{}, &domain.PolicyViolationError{Reason: "import case requires a linked delivery registration"}
	case t != domain.TypeImportCase && linkedRegistrationID != "":
		return domain.Entity{}, &domain.PolicyViolationError{Reason: fmt.Sprintf("%s does not link to a delivery registration", t)}
	}

	if linkedRegistrationID != "" {
		reg, err := s.entities.GetEntity(ctx, linkedRegistrationID)
		if err != nil {
			return domain.Entity{}, err
		}
		if reg.TenantID != tenantID {
			return domain.Entity{}, domain.ErrEntityNotFound
		}
		if reg.Type != domain.TypeDeliveryRegistration {
			return domain.Entity{}, &domain.PolicyViolationError{
				Reason: fmt.Sprintf("linked entity %s is a %s, not a delivery registration", reg.ID, reg.Type),
			}
		}
	}

	id, err := generateID()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("generating entity id: %w", err)
	}

	ent, err := domain.NewEntity(id, tenantID, t)
	if err != nil {
		return domain.Entity{}, err
	}
	ent.LinkedRegistrationID = linkedRegistrationID

	if err := s.entities.CreateEntity(ctx, ent); err != nil {
		return domain.Entity{}, err
	}

	return ent, nil
}

// GetEntity returns an entity by its unique identifier.
func (s *LifecycleService) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	return s.entities.GetEntity(ctx, id)
}

// History returns an entity's ledger events in chain order.
func (s *LifecycleService) History(ctx context.Context, entityID string) ([]domain.TransitionEvent, error) {
	if _, err := s.entities.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, entityID)
}

// Queue returns the tenant's open mediated requests ranked for operators.
func (s *LifecycleService) Queue(ctx context.Context, tenantID string) ([]domain.RequestSnapshot, error) {
	open, err := s.queue.OpenRequests(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return Rank(open), nil
}

// CheckIntegrity reports a tenant's ledger violations: orphaned events and
// entities whose histories do not replay into a valid chain. It backs the
// scheduled sweep and the on-demand admin view.
func (s *LifecycleService) CheckIntegrity(ctx context.Context, tenantID string) (domain.IntegrityReport, error) {
	orphans, err := s.ledger.DetectOrphans(ctx, tenantID)
	if err != nil {
		return domain.IntegrityReport{}, err
	}
	broken, err := s.ledger.DetectBrokenChains(ctx, tenantID)
	if err != nil {
		return domain.IntegrityReport{}, err
	}
	return domain.IntegrityReport{Orphans: orphans, BrokenChains: broken}, nil
}

// AddCaseLine attaches a line item to an import case.
func (s *LifecycleService) AddCaseLine(ctx context.Context, line domain.CaseLine) (domain.CaseLine, error) {
	ent, err := s.entities.GetEntity(ctx, line.CaseID)
	if err != nil {
		return domain.CaseLine{}, err
	}
	if ent.Type != domain.TypeImportCase {
		return domain.CaseLine{}, &domain.PolicyViolationError{Reason: "line items attach only to import cases"}
	}

	id, err := generateID()
	if err != nil {
		return domain.CaseLine{}, fmt.Errorf("generating line id: %w", err)
	}
	line.ID = id
	line.TenantID = ent.TenantID
	line.CreatedAt = time.Now().UTC()

	if err := s.lines.CreateCaseLine(ctx, line); err != nil {
		return domain.CaseLine{}, err
	}
	return line, nil
}

// GrantRole gives an actor a role within a tenant.
func (s *LifecycleService) GrantRole(ctx context.Context, tenantID, actorID string, role domain.Role) error {
	switch role {
	case domain.RoleRestaurant, domain.RoleSupplier, domain.RoleOperator, domain.RoleSystem:
	default:
		return &domain.PolicyViolationError{Reason: fmt.Sprintf("unknown role %q", role)}
	}
	return s.roles.GrantRole(ctx, tenantID, actorID, role)
}
