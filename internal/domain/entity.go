package domain

import "time"

// EntityType identifies which compliance lifecycle an entity follows.
type EntityType string

const (
	TypeDeliveryRegistration EntityType = "delivery_registration"
	TypeOrder                EntityType = "order"
	TypeImportCase           EntityType = "import_case"
	TypeMediatedRequest      EntityType = "mediated_request"
)

// Status represents the lifecycle state of an entity. The sets are disjoint
// per entity type except for "rejected", which both the delivery registration
// and the import case machines use.
type Status string

const (
	// Delivery location registration.
	StatusNotRegistered Status = "not_registered"
	StatusSubmitted     Status = "submitted"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"

	// Order fulfillment.
	StatusConfirmed     Status = "confirmed"
	StatusInFulfillment Status = "in_fulfillment"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusCancelled     Status = "cancelled"

	// Import case.
	StatusDraft          Status = "draft"
	StatusDocumentsReady Status = "documents_ready"
	StatusFiled          Status = "filed"
	StatusCleared        Status = "cleared"

	// Mediated purchase request.
	StatusPending  Status = "pending"
	StatusSeen     Status = "seen"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Role is an actor capability checked against a transition edge.
type Role string

const (
	RoleRestaurant Role = "restaurant"
	RoleSupplier   Role = "supplier"
	RoleOperator   Role = "operator"
	RoleSystem     Role = "system"
)

// SystemActorID is the well-known actor used by automated transitions.
// It is implicitly granted RoleSystem in every tenant.
const SystemActorID = "system"

// Entity is the lifecycle view of a marketplace record. Payload fields
// (addresses, line items, response terms) live outside the engine; it only
// reads and writes the status column, guarded by the version counter.
type Entity struct {
	ID       string
	TenantID string
	Type     EntityType
	Status   Status
	Version  int64

	// LinkedRegistrationID points an import case at the delivery location
	// registration it depends on. Empty for every other entity type.
	LinkedRegistrationID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntity creates an entity in its type's initial state with version 1 and
// zero ledger events.
func NewEntity(id, tenantID string, t EntityType) (Entity, error) {
	machine, err := MachineFor(t)
	if err != nil {
		return Entity{}, err
	}

	now := time.Now().UTC()
	return Entity{
		ID:        id,
		TenantID:  tenantID,
		Type:      t,
		Status:    machine.Initial,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CaseLine is one line item of an import case. The clearance guard requires
// every line to carry a product code, alcohol by volume, fill volume, and
// country of origin before the case may be cleared.
type CaseLine struct {
	ID              string
	CaseID          string
	TenantID        string
	ProductCode     string
	ABVPercent      float64
	FillVolumeML    int64
	CountryOfOrigin string
	CreatedAt       time.Time
}

// MissingIdentifiers reports whether the line lacks any required compliance
// identifier.
func (l CaseLine) MissingIdentifiers() bool {
	return l.ProductCode == "" || l.ABVPercent <= 0 || l.FillVolumeML <= 0 || l.CountryOfOrigin == ""
}
