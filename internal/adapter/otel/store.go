package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/claravin/vinflow/internal/domain"
)

const tracerName = "github.com/claravin/vinflow/internal/adapter/otel"

// TracingStore wraps an entity store and its ledger with OpenTelemetry
// tracing. Each method creates a span with semantic attributes and records
// errors.
type TracingStore struct {
	entities domain.EntityStore
	ledger   domain.Ledger
	tracer   trace.Tracer
}

// Compile-time checks: TracingStore implements the decorated ports.
var (
	_ domain.EntityStore = (*TracingStore)(nil)
	_ domain.Ledger      = (*TracingStore)(nil)
)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(entities domain.EntityStore, ledger domain.Ledger) *TracingStore {
	return &TracingStore{
		entities: entities,
		ledger:   ledger,
		tracer:   otel.Tracer(tracerName),
	}
}

func (s *TracingStore) CreateEntity(ctx context.Context, e domain.Entity) error {
	ctx, span := s.tracer.Start(ctx, "EntityStore.CreateEntity",
		trace.WithAttributes(
			attribute.String("entity.id", e.ID),
			attribute.String("entity.type", string(e.Type)),
			attribute.String("tenant.id", e.TenantID),
		),
	)
	defer span.End()

	err := s.entities.CreateEntity(ctx, e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	ctx, span := s.tracer.Start(ctx, "EntityStore.GetEntity",
		trace.WithAttributes(attribute.String("entity.id", id)),
	)
	defer span.End()

	ent, err := s.entities.GetEntity(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ent, err
}

func (s *TracingStore) ApplyTransition(ctx context.Context, snapshot domain.Entity, event domain.TransitionEvent) error {
	ctx, span := s.tracer.Start(ctx, "EntityStore.ApplyTransition",
		trace.WithAttributes(
			attribute.String("entity.id", snapshot.ID),
			attribute.String("entity.type", string(snapshot.Type)),
			attribute.String("transition.from", string(event.FromStatus)),
			attribute.String("transition.to", string(event.ToStatus)),
			attribute.Int64("entity.version", snapshot.Version),
		),
	)
	defer span.End()

	err := s.entities.ApplyTransition(ctx, snapshot, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) History(ctx context.Context, entityID string) ([]domain.TransitionEvent, error) {
	ctx, span := s.tracer.Start(ctx, "Ledger.History",
		trace.WithAttributes(attribute.String("entity.id", entityID)),
	)
	defer span.End()

	events, err := s.ledger.History(ctx, entityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(events)))
	}
	return events, err
}

func (s *TracingStore) DetectOrphans(ctx context.Context, tenantID string) ([]domain.OrphanEvent, error) {
	ctx, span := s.tracer.Start(ctx, "Ledger.DetectOrphans",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	orphans, err := s.ledger.DetectOrphans(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(orphans)))
	}
	return orphans, err
}

func (s *TracingStore) DetectBrokenChains(ctx context.Context, tenantID string) ([]domain.ChainViolation, error) {
	ctx, span := s.tracer.Start(ctx, "Ledger.DetectBrokenChains",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	violations, err := s.ledger.DetectBrokenChains(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(violations)))
	}
	return violations, err
}
