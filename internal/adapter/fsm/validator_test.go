package fsm_test

import (
	"context"
	"errors"
	"testing"

	adapter "github.com/claravin/vinflow/internal/adapter/fsm"
	"github.com/claravin/vinflow/internal/domain"
)

func TestValidator_AllEdges(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for et, machine := range domain.Machines {
		for _, edge := range machine.Edges {
			dst, err := v.Apply(ctx, et, edge.From, edge.Event)
			if err != nil {
				t.Errorf("%s: Apply(%q, %q) unexpected error: %v", et, edge.From, edge.Event, err)
				continue
			}
			if dst != edge.To {
				t.Errorf("%s: Apply(%q, %q) = %q, want %q", et, edge.From, edge.Event, dst, edge.To)
			}
		}
	}
}

func TestValidator_InvalidTransition(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// Can't approve a registration that was never submitted.
	_, err := v.Apply(ctx, domain.TypeDeliveryRegistration, domain.StatusNotRegistered, domain.EventApprove)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Event != domain.EventApprove {
		t.Errorf("event = %q, want %q", trErr.Event, domain.EventApprove)
	}
	if trErr.Current != domain.StatusNotRegistered {
		t.Errorf("current = %q, want %q", trErr.Current, domain.StatusNotRegistered)
	}
}

func TestValidator_UnknownEntityType(t *testing.T) {
	v := adapter.New()

	_, err := v.Apply(context.Background(), "warehouse", domain.StatusPending, domain.EventMarkSeen)
	var unknownErr *domain.UnknownEntityTypeError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownEntityTypeError, got %v", err)
	}
}

func TestValidator_EventScopedToMachine(t *testing.T) {
	v := adapter.New()

	// An order event means nothing to a mediated request.
	_, err := v.Apply(context.Background(), domain.TypeMediatedRequest, domain.StatusPending, domain.EventShip)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestValidator_FullOrderLifecycle(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	steps := []struct {
		from  domain.Status
		event domain.Event
		want  domain.Status
	}{
		{domain.StatusConfirmed, domain.EventStartFulfillment, domain.StatusInFulfillment},
		{domain.StatusInFulfillment, domain.EventShip, domain.StatusShipped},
		{domain.StatusShipped, domain.EventDeliver, domain.StatusDelivered},
	}

	for _, step := range steps {
		got, err := v.Apply(ctx, domain.TypeOrder, step.from, step.event)
		if err != nil {
			t.Fatalf("Apply(%q, %q) error: %v", step.from, step.event, err)
		}
		if got != step.want {
			t.Errorf("Apply(%q, %q) = %q, want %q", step.from, step.event, got, step.want)
		}
	}
}

func TestValidator_CancelFromMultipleStates(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// Cancel is valid from every non-terminal order state.
	for _, from := range []domain.Status{domain.StatusConfirmed, domain.StatusInFulfillment, domain.StatusShipped} {
		got, err := v.Apply(ctx, domain.TypeOrder, from, domain.EventCancel)
		if err != nil {
			t.Fatalf("Apply(%q, cancel) error: %v", from, err)
		}
		if got != domain.StatusCancelled {
			t.Errorf("Apply(%q, cancel) = %q, want %q", from, got, domain.StatusCancelled)
		}
	}
}
