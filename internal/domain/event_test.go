package domain_test

import (
	"strings"
	"testing"

	"github.com/claravin/vinflow/internal/domain"
)

func validEvent() domain.TransitionEvent {
	return domain.TransitionEvent{
		ID:         "ev-1",
		TenantID:   "t-1",
		EntityID:   "e-1",
		EntityType: domain.TypeOrder,
		FromStatus: domain.StatusConfirmed,
		ToStatus:   domain.StatusInFulfillment,
		ActorID:    "supplier-1",
	}
}

func TestEventValidate(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEventValidate_Rejections(t *testing.T) {
	cases := map[string]func(*domain.TransitionEvent){
		"missing entity id": func(e *domain.TransitionEvent) { e.EntityID = "" },
		"missing actor":     func(e *domain.TransitionEvent) { e.ActorID = "" },
		"missing from":      func(e *domain.TransitionEvent) { e.FromStatus = "" },
		"missing to":        func(e *domain.TransitionEvent) { e.ToStatus = "" },
		"oversized note":    func(e *domain.TransitionEvent) { e.Note = strings.Repeat("x", domain.MaxNoteLength+1) },
	}

	for name, mutate := range cases {
		e := validEvent()
		mutate(&e)
		if err := e.Validate(); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestEventValidate_NoteAtLimit(t *testing.T) {
	e := validEvent()
	e.Note = strings.Repeat("x", domain.MaxNoteLength)
	if err := e.Validate(); err != nil {
		t.Errorf("note at limit should be valid, got %v", err)
	}
}

func TestVerifyChain(t *testing.T) {
	events := []domain.TransitionEvent{
		{ID: "1", FromStatus: domain.StatusNotRegistered, ToStatus: domain.StatusSubmitted},
		{ID: "2", FromStatus: domain.StatusSubmitted, ToStatus: domain.StatusRejected},
		{ID: "3", FromStatus: domain.StatusRejected, ToStatus: domain.StatusNotRegistered},
		{ID: "4", FromStatus: domain.StatusNotRegistered, ToStatus: domain.StatusSubmitted},
		{ID: "5", FromStatus: domain.StatusSubmitted, ToStatus: domain.StatusApproved},
	}

	if err := domain.VerifyChain(domain.StatusNotRegistered, events); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVerifyChain_WrongInitialState(t *testing.T) {
	events := []domain.TransitionEvent{
		{ID: "1", FromStatus: domain.StatusSubmitted, ToStatus: domain.StatusApproved},
	}

	if err := domain.VerifyChain(domain.StatusNotRegistered, events); err == nil {
		t.Error("expected error for chain not starting at initial state")
	}
}

func TestVerifyChain_BrokenLink(t *testing.T) {
	events := []domain.TransitionEvent{
		{ID: "1", FromStatus: domain.StatusNotRegistered, ToStatus: domain.StatusSubmitted},
		{ID: "2", FromStatus: domain.StatusRejected, ToStatus: domain.StatusNotRegistered},
	}

	err := domain.VerifyChain(domain.StatusNotRegistered, events)
	if err == nil {
		t.Fatal("expected error for broken chain")
	}
	if !strings.Contains(err.Error(), "broken chain at event 1") {
		t.Errorf("error should name the broken position, got %q", err)
	}
}

func TestVerifyChain_Empty(t *testing.T) {
	if err := domain.VerifyChain(domain.StatusPending, nil); err != nil {
		t.Errorf("empty chain should be valid, got %v", err)
	}
}
