package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neolearn/subsync/internal/domain"
)

// Compile-time check: Validator implements domain.TaskTransitionValidator.
var _ domain.TaskTransitionValidator = (*Validator)(nil)

// events converts domain.TaskTransitions into looplab/fsm EventDesc
// format, consolidating transitions with the same event+destination into
// a single EventDesc with multiple source states.
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.TaskTransitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator enforces the notification task state machine using
// looplab/fsm. It creates a short-lived FSM instance per Apply call,
// initialized with the task's current status, because looplab/fsm is
// stateful and tracks the current state internally.
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks if the given event is valid from the current task status
// and returns the destination status. Returns a domain.TransitionError
// if the transition is not allowed, which is how sent/failed stay
// terminal.
func (v *Validator) Apply(ctx context.Context, current domain.TaskStatus, event domain.TaskEvent) (domain.TaskStatus, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Event:   event,
				Current: current,
			}
		}
		return "", err
	}

	return domain.TaskStatus(machine.Current()), nil
}
