package app

import (
	"slices"
	"strings"

	"github.com/claravin/vinflow/internal/domain"
)

// Priority buckets for the operator queue, highest first.
//
// A responded request whose consumer has not been notified is the most
// time-sensitive: the counterparty is waiting on an internal actor. Fresh
// unrouted work comes next, then requests awaiting an external reply.
// Anything already notified carries no operator work.
const (
	scoreAwaitingNotification = 4
	scoreUnrouted             = 3
	scoreAwaitingCounterparty = 2
	scoreFallback             = 1
	scoreDone                 = 0
)

// Score computes the priority bucket of one request. It is a pure function
// of the snapshot's fields.
func Score(r domain.RequestSnapshot) int {
	switch {
	case r.ConsumerNotifiedAt != nil:
		return scoreDone
	case r.Responded():
		return scoreAwaitingNotification
	case r.Status == domain.StatusPending && r.ForwardedAt == nil:
		return scoreUnrouted
	case (r.Status == domain.StatusPending || r.Status == domain.StatusSeen) && r.ForwardedAt != nil:
		return scoreAwaitingCounterparty
	default:
		return scoreFallback
	}
}

// Rank orders requests for the operator queue: score descending, then
// created_at descending. Newest-first within a bucket intentionally
// surfaces fresh escalations above stale low-priority items, which are less
// likely to still be actionable. ID is the final tie-break so the ordering
// is total and deterministic.
func Rank(requests []domain.RequestSnapshot) []domain.RequestSnapshot {
	ranked := slices.Clone(requests)
	slices.SortFunc(ranked, func(a, b domain.RequestSnapshot) int {
		if d := Score(b) - Score(a); d != 0 {
			return d
		}
		if d := b.CreatedAt.Compare(a.CreatedAt); d != 0 {
			return d
		}
		return strings.Compare(b.ID, a.ID)
	})
	return ranked
}
