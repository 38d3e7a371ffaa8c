package app

import (
	"context"
	"time"

	"github.com/claravin/vinflow/internal/domain"
)

// MilestoneService advances the milestone timestamps of mediated requests.
// Milestones are not ledger transitions; they are monotonic markers layered
// on the coarse status, validated explicitly rather than trusting
// caller-supplied ordering.
type MilestoneService struct {
	entities domain.EntityStore
	store    domain.MilestoneStore
	guards   *Guards
}

// NewMilestoneService creates a milestone service with the given adapters.
func NewMilestoneService(entities domain.EntityStore, store domain.MilestoneStore, guards *Guards) *MilestoneService {
	return &MilestoneService{entities: entities, store: store, guards: guards}
}

// Mark sets one milestone on a mediated request and returns the updated
// milestone set.
//
// forwarded: any time before the request is declined. consumer_notified:
// only after the counterparty has responded. order_confirmed: only after
// notification and only for commercially accepted requests. responded is
// recorded by the accept/decline transition itself and cannot be set here.
func (s *MilestoneService) Mark(ctx context.Context, entityID string, m domain.Milestone) (domain.Milestones, error) {
	ent, err := s.entities.GetEntity(ctx, entityID)
	if err != nil {
		return domain.Milestones{}, err
	}
	if ent.Type != domain.TypeMediatedRequest {
		return domain.Milestones{}, &domain.PolicyViolationError{Reason: "milestones apply only to mediated requests"}
	}

	current, err := s.store.Milestones(ctx, entityID)
	if err != nil {
		return domain.Milestones{}, err
	}

	if err := s.guardMilestone(ent, current, m); err != nil {
		return domain.Milestones{}, err
	}

	at := time.Now().UTC()
	if err := current.CanSet(m, at); err != nil {
		return domain.Milestones{}, err
	}

	if err := s.store.SetMilestone(ctx, entityID, m, at); err != nil {
		return domain.Milestones{}, err
	}

	return s.store.Milestones(ctx, entityID)
}

func (s *MilestoneService) guardMilestone(ent domain.Entity, current domain.Milestones, m domain.Milestone) error {
	switch m {
	case domain.MilestoneForwarded:
		if ent.Status == domain.StatusDeclined {
			return &domain.PolicyViolationError{Reason: "declined requests cannot be forwarded"}
		}
	case domain.MilestoneResponded:
		return &domain.PolicyViolationError{Reason: "responded is recorded by the accept/decline transition"}
	case domain.MilestoneConsumerNotified:
		if current.RespondedAt == nil {
			return &domain.PolicyViolationError{Reason: "request has no recorded response to notify the consumer about"}
		}
	case domain.MilestoneOrderConfirmed:
		if current.ConsumerNotifiedAt == nil {
			return &domain.PolicyViolationError{Reason: "consumer has not been notified yet"}
		}
		return s.guards.CommercialActionAllowed(ent.Status)
	}
	return nil
}
