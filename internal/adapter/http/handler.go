package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/claravin/vinflow/internal/app"
	"github.com/claravin/vinflow/internal/domain"
)

// EntityResponse is the API representation of a lifecycle entity.
type EntityResponse struct {
	ID                   string `json:"id" doc:"Unique identifier"`
	TenantID             string `json:"tenant_id" doc:"Owning tenant"`
	EntityType           string `json:"entity_type" doc:"Lifecycle the entity follows"`
	Status               string `json:"status" doc:"Current lifecycle state"`
	Version              int64  `json:"version" doc:"Optimistic concurrency version"`
	LinkedRegistrationID string `json:"linked_registration_id,omitempty" doc:"Delivery registration an import case depends on"`
	CreatedAt            string `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt            string `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func toEntityResponse(e domain.Entity) EntityResponse {
	return EntityResponse{
		ID:                   e.ID,
		TenantID:             e.TenantID,
		EntityType:           string(e.Type),
		Status:               string(e.Status),
		Version:              e.Version,
		LinkedRegistrationID: e.LinkedRegistrationID,
		CreatedAt:            e.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:            e.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// EventResponse is the API representation of one ledger event.
type EventResponse struct {
	ID         string `json:"id" doc:"Event identifier"`
	Seq        int64  `json:"seq" doc:"Monotonic ledger position"`
	TenantID   string `json:"tenant_id" doc:"Owning tenant"`
	EntityID   string `json:"entity_id" doc:"Entity the event belongs to"`
	EntityType string `json:"entity_type" doc:"Entity type at transition time"`
	FromStatus string `json:"from_status" doc:"Status before the transition"`
	ToStatus   string `json:"to_status" doc:"Status after the transition"`
	ActorID    string `json:"actor_id" doc:"Actor who triggered the transition"`
	Note       string `json:"note,omitempty" doc:"Free-form annotation"`
	CreatedAt  string `json:"created_at" doc:"Transition timestamp (RFC 3339)"`
}

func toEventResponse(e domain.TransitionEvent) EventResponse {
	return EventResponse{
		ID:         e.ID,
		Seq:        e.Seq,
		TenantID:   e.TenantID,
		EntityID:   e.EntityID,
		EntityType: string(e.EntityType),
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		ActorID:    e.ActorID,
		Note:       e.Note,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339Nano),
	}
}

// MilestonesResponse is the API representation of a request's milestone set.
type MilestonesResponse struct {
	EntityID           string  `json:"entity_id" doc:"Mediated request identifier"`
	ForwardedAt        *string `json:"forwarded_at,omitempty" doc:"When the request reached its counterparty"`
	RespondedAt        *string `json:"responded_at,omitempty" doc:"When the counterparty accepted or declined"`
	ConsumerNotifiedAt *string `json:"consumer_notified_at,omitempty" doc:"When the requesting consumer was told the outcome"`
	OrderConfirmedAt   *string `json:"order_confirmed_at,omitempty" doc:"When the resulting order was confirmed"`
}

func toMilestonesResponse(m domain.Milestones) MilestonesResponse {
	return MilestonesResponse{
		EntityID:           m.EntityID,
		ForwardedAt:        formatMilestone(m.ForwardedAt),
		RespondedAt:        formatMilestone(m.RespondedAt),
		ConsumerNotifiedAt: formatMilestone(m.ConsumerNotifiedAt),
		OrderConfirmedAt:   formatMilestone(m.OrderConfirmedAt),
	}
}

func formatMilestone(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

// QueueItemResponse is one ranked entry of the operator queue.
type QueueItemResponse struct {
	ID        string `json:"id" doc:"Mediated request identifier"`
	Status    string `json:"status" doc:"Current lifecycle state"`
	Score     int    `json:"score" doc:"Priority bucket (higher is more urgent)"`
	CreatedAt string `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
}

// OrphanResponse is one ledger consistency violation.
type OrphanResponse struct {
	Event  EventResponse `json:"event" doc:"The orphaned ledger event"`
	Reason string        `json:"reason" doc:"Why the event is orphaned"`
}

// ChainViolationResponse is one entity whose history does not replay into a
// valid transition chain.
type ChainViolationResponse struct {
	EntityID string `json:"entity_id" doc:"Entity with a broken event chain"`
	Detail   string `json:"detail" doc:"Where the chain breaks"`
}

// CaseLineResponse is the API representation of an import case line item.
type CaseLineResponse struct {
	ID              string  `json:"id" doc:"Line identifier"`
	CaseID          string  `json:"case_id" doc:"Owning import case"`
	ProductCode     string  `json:"product_code,omitempty" doc:"Product code"`
	ABVPercent      float64 `json:"abv_percent,omitempty" doc:"Alcohol by volume"`
	FillVolumeML    int64   `json:"fill_volume_ml,omitempty" doc:"Fill volume in millilitres"`
	CountryOfOrigin string  `json:"country_of_origin,omitempty" doc:"ISO country code"`
}

// --- Create entity ---

type CreateEntityInput struct {
	Body struct {
		TenantID             string `json:"tenant_id" minLength:"1" maxLength:"100" doc:"Owning tenant"`
		EntityType           string `json:"entity_type" doc:"Lifecycle the entity follows" enum:"delivery_registration,order,import_case,mediated_request"`
		LinkedRegistrationID string `json:"linked_registration_id,omitempty" doc:"Required for import cases, forbidden otherwise"`
	}
}

type CreateEntityOutput struct {
	Body EntityResponse
}

// --- Get entity ---

type GetEntityInput struct {
	ID string `path:"id" doc:"Entity ID"`
}

type GetEntityOutput struct {
	Body EntityResponse
}

// --- Transition ---

type TransitionInput struct {
	ID   string `path:"id" doc:"Entity ID"`
	Body struct {
		Target  string `json:"target" minLength:"1" doc:"Requested destination status"`
		ActorID string `json:"actor_id" minLength:"1" doc:"Actor requesting the transition"`
		Note    string `json:"note,omitempty" maxLength:"1000" doc:"Free-form annotation recorded on the ledger event"`
	}
}

type TransitionOutput struct {
	Body struct {
		Status  string `json:"status" doc:"Status after the transition"`
		EventID string `json:"event_id" doc:"Ledger event recording the transition"`
	}
}

// --- History ---

type HistoryInput struct {
	ID string `path:"id" doc:"Entity ID"`
}

type HistoryOutput struct {
	Body []EventResponse
}

// --- Queue ---

type QueueInput struct {
	TenantID string `query:"tenant_id" minLength:"1" doc:"Tenant whose queue to read"`
}

type QueueOutput struct {
	Body []QueueItemResponse
}

// --- Milestones ---

type MarkMilestoneInput struct {
	ID   string `path:"id" doc:"Mediated request ID"`
	Body struct {
		Milestone string `json:"milestone" doc:"Milestone to stamp" enum:"forwarded,consumer_notified,order_confirmed"`
	}
}

type MarkMilestoneOutput struct {
	Body MilestonesResponse
}

// --- Integrity ---

type IntegrityInput struct {
	TenantID string `query:"tenant_id" minLength:"1" doc:"Tenant whose ledger to check"`
}

type IntegrityOutput struct {
	Body struct {
		Orphans      []OrphanResponse         `json:"orphans" doc:"Ledger events violating referential consistency"`
		BrokenChains []ChainViolationResponse `json:"broken_chains" doc:"Entities whose event chains do not replay"`
	}
}

// --- Case lines ---

type AddCaseLineInput struct {
	ID   string `path:"id" doc:"Import case ID"`
	Body struct {
		ProductCode     string  `json:"product_code,omitempty" doc:"Product code"`
		ABVPercent      float64 `json:"abv_percent,omitempty" doc:"Alcohol by volume"`
		FillVolumeML    int64   `json:"fill_volume_ml,omitempty" doc:"Fill volume in millilitres"`
		CountryOfOrigin string  `json:"country_of_origin,omitempty" doc:"ISO country code"`
	}
}

type AddCaseLineOutput struct {
	Body CaseLineResponse
}

// --- Roles ---

type GrantRoleInput struct {
	Body struct {
		TenantID string `json:"tenant_id" minLength:"1" doc:"Tenant scope of the grant"`
		ActorID  string `json:"actor_id" minLength:"1" doc:"Actor receiving the role"`
		Role     string `json:"role" doc:"Role to grant" enum:"restaurant,supplier,operator,system"`
	}
}

type GrantRoleOutput struct {
	Status int
}

// Register adds all lifecycle API routes to the Huma API.
func Register(api huma.API, svc *app.LifecycleService, exec *app.Executor, milestones *app.MilestoneService) {
	huma.Register(api, huma.Operation{
		OperationID: "create-entity",
		Method:      http.MethodPost,
		Path:        "/api/v1/entities",
		Summary:     "Create a lifecycle entity in its initial state",
		Tags:        []string{"Entities"},
	}, func(ctx context.Context, input *CreateEntityInput) (*CreateEntityOutput, error) {
		ent, err := svc.CreateEntity(ctx, input.Body.TenantID, domain.EntityType(input.Body.EntityType), input.Body.LinkedRegistrationID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateEntityOutput{Body: toEntityResponse(ent)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/api/v1/entities/{id}",
		Summary:     "Get an entity by ID",
		Tags:        []string{"Entities"},
	}, func(ctx context.Context, input *GetEntityInput) (*GetEntityOutput, error) {
		ent, err := svc.GetEntity(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetEntityOutput{Body: toEntityResponse(ent)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-entity",
		Method:      http.MethodPost,
		Path:        "/api/v1/entities/{id}/transitions",
		Summary:     "Request a status transition",
		Tags:        []string{"Entities"},
	}, func(ctx context.Context, input *TransitionInput) (*TransitionOutput, error) {
		result, err := exec.Execute(ctx, app.ExecuteParams{
			EntityID: input.ID,
			Target:   domain.Status(input.Body.Target),
			ActorID:  input.Body.ActorID,
			Note:     input.Body.Note,
		})
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &TransitionOutput{}
		out.Body.Status = string(result.NewStatus)
		out.Body.EventID = result.EventID
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entity-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/entities/{id}/events",
		Summary:     "Read an entity's transition history",
		Tags:        []string{"Ledger"},
	}, func(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
		events, err := svc.History(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]EventResponse, len(events))
		for i, e := range events {
			resp[i] = toEventResponse(e)
		}
		return &HistoryOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-queue",
		Method:      http.MethodGet,
		Path:        "/api/v1/queue",
		Summary:     "Read the ranked operator queue for a tenant",
		Tags:        []string{"Queue"},
	}, func(ctx context.Context, input *QueueInput) (*QueueOutput, error) {
		items, err := svc.Queue(ctx, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]QueueItemResponse, len(items))
		for i, item := range items {
			resp[i] = QueueItemResponse{
				ID:        item.ID,
				Status:    string(item.Status),
				Score:     app.Score(item),
				CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
			}
		}
		return &QueueOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-milestone",
		Method:      http.MethodPost,
		Path:        "/api/v1/requests/{id}/milestones",
		Summary:     "Stamp a milestone on a mediated request",
		Tags:        []string{"Queue"},
	}, func(ctx context.Context, input *MarkMilestoneInput) (*MarkMilestoneOutput, error) {
		ms, err := milestones.Mark(ctx, input.ID, domain.Milestone(input.Body.Milestone))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &MarkMilestoneOutput{Body: toMilestonesResponse(ms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-integrity",
		Method:      http.MethodGet,
		Path:        "/api/v1/integrity",
		Summary:     "Check a tenant's ledger for orphaned events and broken chains",
		Tags:        []string{"Ledger"},
	}, func(ctx context.Context, input *IntegrityInput) (*IntegrityOutput, error) {
		report, err := svc.CheckIntegrity(ctx, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &IntegrityOutput{}
		out.Body.Orphans = make([]OrphanResponse, len(report.Orphans))
		for i, o := range report.Orphans {
			out.Body.Orphans[i] = OrphanResponse{Event: toEventResponse(o.Event), Reason: o.Reason}
		}
		out.Body.BrokenChains = make([]ChainViolationResponse, len(report.BrokenChains))
		for i, v := range report.BrokenChains {
			out.Body.BrokenChains[i] = ChainViolationResponse{EntityID: v.EntityID, Detail: v.Detail}
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-case-line",
		Method:      http.MethodPost,
		Path:        "/api/v1/cases/{id}/lines",
		Summary:     "Attach a line item to an import case",
		Tags:        []string{"Compliance"},
	}, func(ctx context.Context, input *AddCaseLineInput) (*AddCaseLineOutput, error) {
		line, err := svc.AddCaseLine(ctx, domain.CaseLine{
			CaseID:          input.ID,
			ProductCode:     input.Body.ProductCode,
			ABVPercent:      input.Body.ABVPercent,
			FillVolumeML:    input.Body.FillVolumeML,
			CountryOfOrigin: input.Body.CountryOfOrigin,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &AddCaseLineOutput{Body: CaseLineResponse{
			ID:              line.ID,
			CaseID:          line.CaseID,
			ProductCode:     line.ProductCode,
			ABVPercent:      line.ABVPercent,
			FillVolumeML:    line.FillVolumeML,
			CountryOfOrigin: line.CountryOfOrigin,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "grant-role",
		Method:        http.MethodPost,
		Path:          "/api/v1/roles",
		Summary:       "Grant an actor a role within a tenant",
		Tags:          []string{"Compliance"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *GrantRoleInput) (*GrantRoleOutput, error) {
		err := svc.GrantRole(ctx, input.Body.TenantID, input.Body.ActorID, domain.Role(input.Body.Role))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GrantRoleOutput{Status: http.StatusNoContent}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrEntityNotFound) {
		return huma.Error404NotFound("entity not found")
	}
	if errors.Is(err, domain.ErrStaleState) {
		return huma.Error409Conflict("entity changed concurrently, re-read and retry")
	}

	var unauthorizedErr *domain.UnauthorizedError
	if errors.As(err, &unauthorizedErr) {
		return huma.Error403Forbidden(unauthorizedErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}
	var illegalErr *domain.IllegalTransitionError
	if errors.As(err, &illegalErr) {
		return huma.Error422UnprocessableEntity(illegalErr.Error())
	}
	var policyErr *domain.PolicyViolationError
	if errors.As(err, &policyErr) {
		return huma.Error422UnprocessableEntity(policyErr.Error())
	}
	var milestoneErr *domain.MilestoneOrderError
	if errors.As(err, &milestoneErr) {
		return huma.Error422UnprocessableEntity(milestoneErr.Error())
	}
	var unknownErr *domain.UnknownEntityTypeError
	if errors.As(err, &unknownErr) {
		return huma.Error422UnprocessableEntity(unknownErr.Error())
	}

	var storageErr *domain.StorageError
	if errors.As(err, &storageErr) {
		return huma.Error503ServiceUnavailable("storage unavailable")
	}

	return huma.Error500InternalServerError("internal server error")
}
