package domain

import "time"

// Milestone names a timestamped progress marker on a mediated request.
// Milestones layer on top of the coarse status rather than forcing every
// nuance into the status enum.
type Milestone string

const (
	MilestoneForwarded        Milestone = "forwarded"
	MilestoneResponded        Milestone = "responded"
	MilestoneConsumerNotified Milestone = "consumer_notified"
	MilestoneOrderConfirmed   Milestone = "order_confirmed"
)

// Milestones holds the nullable milestone timestamps of one mediated
// request. Each may be set at most once, and a later milestone may never be
// stamped earlier than one already set.
type Milestones struct {
	EntityID           string
	ForwardedAt        *time.Time
	RespondedAt        *time.Time
	ConsumerNotifiedAt *time.Time
	OrderConfirmedAt   *time.Time
}

// At returns the timestamp of the given milestone, or nil if unset.
func (m Milestones) At(ms Milestone) *time.Time {
	switch ms {
	case MilestoneForwarded:
		return m.ForwardedAt
	case MilestoneResponded:
		return m.RespondedAt
	case MilestoneConsumerNotified:
		return m.ConsumerNotifiedAt
	case MilestoneOrderConfirmed:
		return m.OrderConfirmedAt
	}
	return nil
}

// CanSet validates setting the given milestone at the given time against the
// monotonicity rules. The caller-supplied ordering is not trusted: the check
// is explicit.
func (m Milestones) CanSet(ms Milestone, at time.Time) error {
	switch ms {
	case MilestoneForwarded, MilestoneResponded, MilestoneConsumerNotified, MilestoneOrderConfirmed:
	default:
		return &MilestoneOrderError{Milestone: ms, Reason: "unknown milestone"}
	}

	if m.At(ms) != nil {
		return &MilestoneOrderError{Milestone: ms, Reason: "already set"}
	}

	for _, set := range []*time.Time{m.ForwardedAt, m.RespondedAt, m.ConsumerNotifiedAt, m.OrderConfirmedAt} {
		if set != nil && at.Before(*set) {
			return &MilestoneOrderError{Milestone: ms, Reason: "timestamp precedes an earlier milestone"}
		}
	}
	return nil
}

// RequestSnapshot is the read model the priority scheduler scores. It is
// re-derivable purely from entity and milestone columns with no hidden state.
type RequestSnapshot struct {
	ID                 string
	TenantID           string
	Status             Status
	ForwardedAt        *time.Time
	RespondedAt        *time.Time
	ConsumerNotifiedAt *time.Time
	CreatedAt          time.Time
}

// Responded reports whether the counterparty has answered the request.
func (r RequestSnapshot) Responded() bool {
	return r.Status == StatusAccepted || r.Status == StatusDeclined
}
