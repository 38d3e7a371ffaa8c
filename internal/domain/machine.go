package domain

// Event names the action that triggers a state transition. Event names are
// scoped to their entity type's machine.
type Event string

const (
	// Delivery location registration.
	EventSubmit   Event = "submit"
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventResubmit Event = "resubmit" // rejected → not_registered, always audited

	// Order fulfillment.
	EventStartFulfillment Event = "start_fulfillment"
	EventShip             Event = "ship"
	EventDeliver          Event = "deliver"
	EventCancel           Event = "cancel"

	// Import case.
	EventGenerateDocuments Event = "generate_documents"
	EventFileCase          Event = "file_case"
	EventClearCase         Event = "clear_case"
	EventRejectCase        Event = "reject_case"
	EventReopenCase        Event = "reopen_case"

	// Mediated purchase request.
	EventMarkSeen Event = "mark_seen"
	EventAccept   Event = "accept"
	EventDecline  Event = "decline"
)

// Edge is one legal transition: an event moves an entity from From to To,
// and only actors holding one of Roles may trigger it.
type Edge struct {
	Event Event
	From  Status
	To    Status
	Roles []Role
}

// AllowsRole reports whether the edge may be triggered by the given role.
func (e Edge) AllowsRole(r Role) bool {
	for _, allowed := range e.Roles {
		if allowed == r {
			return true
		}
	}
	return false
}

// Machine is the full state machine of one entity type. Edges are domain
// data, not code: adding a lifecycle entity means adding a table here.
type Machine struct {
	Type     EntityType
	Initial  Status
	Terminal []Status
	Edges    []Edge
}

// EdgeTo returns the edge moving from one status to another, if the machine
// defines it. A request for from == to never matches: no-op transitions are
// rejected, every accepted request must produce a real state change.
func (m Machine) EdgeTo(from, to Status) (Edge, bool) {
	for _, e := range m.Edges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// IsTerminal reports whether no edges leave the given status.
func (m Machine) IsTerminal(s Status) bool {
	for _, t := range m.Terminal {
		if t == s {
			return true
		}
	}
	return false
}

// Machines defines all four compliance lifecycles.
var Machines = map[EntityType]Machine{
	TypeDeliveryRegistration: {
		Type:     TypeDeliveryRegistration,
		Initial:  StatusNotRegistered,
		Terminal: []Status{StatusApproved},
		Edges: []Edge{
			{Event: EventSubmit, From: StatusNotRegistered, To: StatusSubmitted, Roles: []Role{RoleRestaurant}},
			{Event: EventApprove, From: StatusSubmitted, To: StatusApproved, Roles: []Role{RoleOperator}},
			{Event: EventReject, From: StatusSubmitted, To: StatusRejected, Roles: []Role{RoleOperator}},
			{Event: EventResubmit, From: StatusRejected, To: StatusNotRegistered, Roles: []Role{RoleRestaurant, RoleOperator}},
		},
	},
	TypeOrder: {
		Type:     TypeOrder,
		Initial:  StatusConfirmed,
		Terminal: []Status{StatusDelivered, StatusCancelled},
		Edges: []Edge{
			{Event: EventStartFulfillment, From: StatusConfirmed, To: StatusInFulfillment, Roles: []Role{RoleSupplier}},
			{Event: EventShip, From: StatusInFulfillment, To: StatusShipped, Roles: []Role{RoleSupplier}},
			{Event: EventDeliver, From: StatusShipped, To: StatusDelivered, Roles: []Role{RoleRestaurant, RoleSystem}},
			{Event: EventCancel, From: StatusConfirmed, To: StatusCancelled, Roles: []Role{RoleRestaurant, RoleSupplier, RoleOperator}},
			{Event: EventCancel, From: StatusInFulfillment, To: StatusCancelled, Roles: []Role{RoleSupplier, RoleOperator}},
			{Event: EventCancel, From: StatusShipped, To: StatusCancelled, Roles: []Role{RoleOperator}},
		},
	},
	TypeImportCase: {
		Type:     TypeImportCase,
		Initial:  StatusDraft,
		Terminal: []Status{StatusCleared},
		Edges: []Edge{
			{Event: EventGenerateDocuments, From: StatusDraft, To: StatusDocumentsReady, Roles: []Role{RoleOperator, RoleSystem}},
			{Event: EventFileCase, From: StatusDocumentsReady, To: StatusFiled, Roles: []Role{RoleOperator}},
			{Event: EventClearCase, From: StatusFiled, To: StatusCleared, Roles: []Role{RoleOperator}},
			{Event: EventRejectCase, From: StatusFiled, To: StatusRejected, Roles: []Role{RoleOperator}},
			{Event: EventReopenCase, From: StatusRejected, To: StatusDraft, Roles: []Role{RoleOperator}},
		},
	},
	TypeMediatedRequest: {
		Type:    TypeMediatedRequest,
		Initial: StatusPending,
		// Accepted and declined end the status machine; later progress is
		// tracked as milestone timestamps, not transitions.
		Terminal: []Status{StatusAccepted, StatusDeclined},
		Edges: []Edge{
			{Event: EventMarkSeen, From: StatusPending, To: StatusSeen, Roles: []Role{RoleSupplier, RoleSystem}},
			{Event: EventAccept, From: StatusSeen, To: StatusAccepted, Roles: []Role{RoleSupplier}},
			{Event: EventDecline, From: StatusSeen, To: StatusDeclined, Roles: []Role{RoleSupplier}},
		},
	},
}

// MachineFor returns the state machine of the given entity type.
func MachineFor(t EntityType) (Machine, error) {
	m, ok := Machines[t]
	if !ok {
		return Machine{}, &UnknownEntityTypeError{Type: t}
	}
	return m, nil
}
