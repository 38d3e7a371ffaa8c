package app

import (
	"context"
	"fmt"

	"github.com/claravin/vinflow/internal/domain"
)

// Guards holds the side-constraint checks that gate transitions beyond pure
// state-machine legality.
type Guards struct {
	entities   domain.EntityStore
	compliance domain.ComplianceReader
}

// NewGuards creates the policy guard set.
func NewGuards(entities domain.EntityStore, compliance domain.ComplianceReader) *Guards {
	return &Guards{entities: entities, compliance: compliance}
}

// Check runs every guard that applies to the requested transition. A nil
// return means no policy objects; a PolicyViolationError carries an
// actionable reason.
func (g *Guards) Check(ctx context.Context, ent domain.Entity, target domain.Status) error {
	if ent.Type == domain.TypeImportCase && target == domain.StatusCleared {
		return g.importCaseClearance(ctx, ent)
	}
	return nil
}

// importCaseClearance gates import_case -> cleared: the linked delivery
// location registration must be approved, and every line item must carry
// its required compliance identifiers.
func (g *Guards) importCaseClearance(ctx context.Context, ent domain.Entity) error {
	if ent.LinkedRegistrationID == "" {
		return &domain.PolicyViolationError{Reason: "import case has no linked delivery registration"}
	}

	reg, err := g.entities.GetEntity(ctx, ent.LinkedRegistrationID)
	if err != nil {
		return err
	}
	if reg.Type != domain.TypeDeliveryRegistration {
		return &domain.PolicyViolationError{
			Reason: fmt.Sprintf("linked entity %s is a %s, not a delivery registration", reg.ID, reg.Type),
		}
	}
	if reg.Status != domain.StatusApproved {
		return &domain.PolicyViolationError{
			Reason: fmt.Sprintf("linked delivery registration is %s, must be approved", reg.Status),
		}
	}

	missing, err := g.compliance.LinesMissingIdentifiers(ctx, ent.ID)
	if err != nil {
		return err
	}
	if missing > 0 {
		return &domain.PolicyViolationError{
			Reason: fmt.Sprintf("missing product identifiers on %d lines", missing),
		}
	}

	return nil
}

// CommercialActionAllowed gates downstream commercial actions derived from
// a mediated request (order confirmation, service packs, MOQ fill-up
// suggestions). They are permitted only once the request is commercially
// accepted, never while pending or declined.
func (g *Guards) CommercialActionAllowed(status domain.Status) error {
	if status != domain.StatusAccepted {
		return &domain.PolicyViolationError{
			Reason: fmt.Sprintf("request is %s, downstream commercial actions require an accepted request", status),
		}
	}
	return nil
}
