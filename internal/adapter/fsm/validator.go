package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/claravin/vinflow/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// eventsByType converts each domain.Machine into looplab/fsm EventDesc
// format. Edges with the same event+destination collapse into a single
// EventDesc with multiple source states (e.g., an order's EventCancel from
// "confirmed", "in_fulfillment", and "shipped" all go to "cancelled").
var eventsByType = buildEvents()

func buildEvents() map[domain.EntityType][]loopfsm.EventDesc {
	out := make(map[domain.EntityType][]loopfsm.EventDesc, len(domain.Machines))

	for t, machine := range domain.Machines {
		type key struct {
			event string
			dst   string
		}
		grouped := make(map[key][]string)
		order := make([]key, 0)

		for _, e := range machine.Edges {
			k := key{event: string(e.Event), dst: string(e.To)}
			if _, exists := grouped[k]; !exists {
				order = append(order, k)
			}
			grouped[k] = append(grouped[k], string(e.From))
		}

		descs := make([]loopfsm.EventDesc, 0, len(order))
		for _, k := range order {
			descs = append(descs, loopfsm.EventDesc{
				Name: k.event,
				Src:  grouped[k],
				Dst:  k.dst,
			})
		}
		out[t] = descs
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// It creates a short-lived FSM instance per Apply call, initialized with
// the entity's current state. This is necessary because looplab/fsm is
// stateful (it tracks the current state internally).
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks if the given event is valid from the current status of the
// entity type's machine and returns the destination status. Returns a
// domain.TransitionError if the transition is not allowed.
func (v *Validator) Apply(ctx context.Context, t domain.EntityType, current domain.Status, event domain.Event) (domain.Status, error) {
	descs, ok := eventsByType[t]
	if !ok {
		return "", &domain.UnknownEntityTypeError{Type: t}
	}

	machine := loopfsm.NewFSM(string(current), descs, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				EntityType: t,
				Event:      event,
				Current:    current,
			}
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}
