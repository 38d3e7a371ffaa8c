package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/claravin/vinflow/internal/app"
	"github.com/claravin/vinflow/internal/domain"
)

// serviceStore extends mockStore with the queue, line, and role contracts.
type serviceStore struct {
	*mockStore
	lines []domain.CaseLine
	roles map[string][]domain.Role
}

func (s *serviceStore) OpenRequests(_ context.Context, tenantID string) ([]domain.RequestSnapshot, error) {
	var out []domain.RequestSnapshot
	for _, e := range s.entities {
		if e.Type != domain.TypeMediatedRequest || e.TenantID != tenantID {
			continue
		}
		ms := s.milestones[e.ID]
		if ms.OrderConfirmedAt != nil {
			continue
		}
		out = append(out, domain.RequestSnapshot{
			ID:                 e.ID,
			TenantID:           e.TenantID,
			Status:             e.Status,
			ForwardedAt:        ms.ForwardedAt,
			RespondedAt:        ms.RespondedAt,
			ConsumerNotifiedAt: ms.ConsumerNotifiedAt,
			CreatedAt:          e.CreatedAt,
		})
	}
	return out, nil
}

func (s *serviceStore) CreateCaseLine(_ context.Context, line domain.CaseLine) error {
	s.lines = append(s.lines, line)
	return nil
}

func (s *serviceStore) GrantRole(_ context.Context, tenantID, actorID string, role domain.Role) error {
	s.roles[tenantID+"/"+actorID] = append(s.roles[tenantID+"/"+actorID], role)
	return nil
}

func newService() (*app.LifecycleService, *serviceStore) {
	store := &serviceStore{mockStore: newMockStore(), roles: make(map[string][]domain.Role)}
	return app.NewLifecycleService(store, store, store, store, store), store
}

func TestCreateEntity(t *testing.T) {
	svc, store := newService()

	ent, err := svc.CreateEntity(context.Background(), "t-1", domain.TypeOrder, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ent.Status != domain.StatusConfirmed {
		t.Errorf("Status = %q, want %q", ent.Status, domain.StatusConfirmed)
	}
	if ent.ID == "" {
		t.Error("ID should not be empty")
	}
	if _, ok := store.entities[ent.ID]; !ok {
		t.Error("entity not persisted")
	}
}

func TestCreateEntity_ImportCaseRequiresLink(t *testing.T) {
	svc, _ := newService()

	_, err := svc.CreateEntity(context.Background(), "t-1", domain.TypeImportCase, "")
	var policyErr *domain.PolicyViolationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyViolationError, got %v", err)
	}
}

func TestCreateEntity_LinkOnlyForImportCases(t *testing.T) {
	svc, _ := newService()

	_, err := svc.CreateEntity(context.Background(), "t-1", domain.TypeOrder, "reg-1")
	var policyErr *domain.PolicyViolationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyViolationError, got %v", err)
	}
}

func TestCreateEntity_ImportCaseCrossTenantLink(t *testing.T) {
	svc, _ := newService()

	reg, err := svc.CreateEntity(context.Background(), "t-1", domain.TypeDeliveryRegistration, "")
	if err != nil {
		t.Fatal(err)
	}

	// A tenant cannot link an import case to another tenant's registration.
	_, err = svc.CreateEntity(context.Background(), "t-2", domain.TypeImportCase, reg.ID)
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestCreateEntity_ImportCaseLinkedToWrongType(t *testing.T) {
	svc, _ := newService()

	ord, err := svc.CreateEntity(context.Background(), "t-1", domain.TypeOrder, "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.CreateEntity(context.Background(), "t-1", domain.TypeImportCase, ord.ID)
	var policyErr *domain.PolicyViolationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyViolationError, got %v", err)
	}
}

func TestHistory_UnknownEntity(t *testing.T) {
	svc, _ := newService()

	_, err := svc.History(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestQueue_RankedAndTenantScoped(t *testing.T) {
	svc, store := newService()

	hot, _ := svc.CreateEntity(context.Background(), "t-1", domain.TypeMediatedRequest, "")
	store.entities[hot.ID] = withStatus(store.entities[hot.ID], domain.StatusAccepted)

	fresh, _ := svc.CreateEntity(context.Background(), "t-1", domain.TypeMediatedRequest, "")

	other, _ := svc.CreateEntity(context.Background(), "t-2", domain.TypeMediatedRequest, "")

	queue, err := svc.Queue(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queue) != 2 {
		t.Fatalf("got %d items, want 2", len(queue))
	}
	if queue[0].ID != hot.ID {
		t.Errorf("queue[0].ID = %q, want the awaiting-notification request", queue[0].ID)
	}
	if queue[1].ID != fresh.ID {
		t.Errorf("queue[1].ID = %q, want the unrouted request", queue[1].ID)
	}
	for _, item := range queue {
		if item.ID == other.ID {
			t.Error("queue leaked another tenant's request")
		}
	}
}

func withStatus(e domain.Entity, s domain.Status) domain.Entity {
	e.Status = s
	return e
}

func TestCheckIntegrity_ReportsBrokenChain(t *testing.T) {
	svc, store := newService()

	ord, err := svc.CreateEntity(context.Background(), "t-1", domain.TypeOrder, "")
	if err != nil {
		t.Fatal(err)
	}

	// Forge a ledger row that does not chain from the order's initial
	// state, bypassing the store's write path.
	store.events = append(store.events, domain.TransitionEvent{
		ID:         "ev-forged",
		TenantID:   "t-1",
		EntityID:   ord.ID,
		EntityType: domain.TypeOrder,
		FromStatus: domain.StatusShipped,
		ToStatus:   domain.StatusDelivered,
		ActorID:    "actor-1",
	})

	report, err := svc.CheckIntegrity(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.BrokenChains) != 1 {
		t.Fatalf("got %d broken chains, want 1", len(report.BrokenChains))
	}
	if report.BrokenChains[0].EntityID != ord.ID {
		t.Errorf("EntityID = %q, want %q", report.BrokenChains[0].EntityID, ord.ID)
	}
	if len(report.Orphans) != 0 {
		t.Errorf("got %d orphans, want 0", len(report.Orphans))
	}
}

func TestAddCaseLine(t *testing.T) {
	svc, store := newService()

	reg, _ := svc.CreateEntity(context.Background(), "t-1", domain.TypeDeliveryRegistration, "")
	c, err := svc.CreateEntity(context.Background(), "t-1", domain.TypeImportCase, reg.ID)
	if err != nil {
		t.Fatal(err)
	}

	line, err := svc.AddCaseLine(context.Background(), domain.CaseLine{
		CaseID:          c.ID,
		ProductCode:     "SB-1042",
		ABVPercent:      13.5,
		FillVolumeML:    750,
		CountryOfOrigin: "FR",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.ID == "" {
		t.Error("line ID should be assigned")
	}
	if line.TenantID != "t-1" {
		t.Errorf("TenantID = %q, want the case's tenant", line.TenantID)
	}
	if len(store.lines) != 1 {
		t.Errorf("got %d stored lines, want 1", len(store.lines))
	}
}

func TestAddCaseLine_NotAnImportCase(t *testing.T) {
	svc, _ := newService()

	ord, _ := svc.CreateEntity(context.Background(), "t-1", domain.TypeOrder, "")

	_, err := svc.AddCaseLine(context.Background(), domain.CaseLine{CaseID: ord.ID})
	var policyErr *domain.PolicyViolationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyViolationError, got %v", err)
	}
}

func TestGrantRole_UnknownRole(t *testing.T) {
	svc, _ := newService()

	err := svc.GrantRole(context.Background(), "t-1", "actor-1", "sommelier")
	var policyErr *domain.PolicyViolationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyViolationError, got %v", err)
	}
}

func TestGrantRole(t *testing.T) {
	svc, store := newService()

	if err := svc.GrantRole(context.Background(), "t-1", "actor-1", domain.RoleOperator); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.roles["t-1/actor-1"]; len(got) != 1 || got[0] != domain.RoleOperator {
		t.Errorf("roles = %v, want [operator]", got)
	}
}
