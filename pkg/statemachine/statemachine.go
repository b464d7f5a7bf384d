package statemachine

import (
	"cmp"
	"context"
	"slices"
)

// State is any string-backed state enumeration.
type State interface {
	~string
}

// Event is any string-backed event enumeration.
type Event interface {
	~string
}

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S State, E Event] func(ctx context.Context, from S, event E, data any) bool

// Transition defines a state change triggered by an event, with optional guards.
type Transition[S State, E Event] struct {
	From   S
	To     S
	Event  E
	Guards []Guard[S, E] // All must pass for transition to proceed
}

// Machine is an immutable transition table. It holds no current state: callers
// keep the state on their own entities and ask the machine where an event leads.
// A Machine is safe for concurrent use once built.
type Machine[S State, E Event] struct {
	initial     S
	transitions map[S]map[E][]Transition[S, E]
}

// Initial returns the state new instances start in.
func (m *Machine[S, E]) Initial() S {
	return m.initial
}

// Next resolves the target state for event fired from the given state.
// The first transition whose guards all pass wins.
func (m *Machine[S, E]) Next(ctx context.Context, from S, event E, data any) (S, error) {
	if event == "" {
		return from, ErrInvalidEvent
	}

	candidates := m.transitions[from][event]
	if len(candidates) == 0 {
		return from, &TransitionError{From: string(from), Event: string(event)}
	}

	for _, t := range candidates {
		if guardsPass(ctx, t, from, event, data) {
			return t.To, nil
		}
	}

	return from, &TransitionError{From: string(from), Event: string(event), Rejected: true}
}

// Can reports whether event may be fired from the given state.
func (m *Machine[S, E]) Can(ctx context.Context, from S, event E, data any) bool {
	_, err := m.Next(ctx, from, event, data)
	return err == nil
}

// Events lists the events defined for a state, ignoring guards, in lexical order.
func (m *Machine[S, E]) Events(from S) []E {
	events := make([]E, 0, len(m.transitions[from]))
	for e := range m.transitions[from] {
		events = append(events, e)
	}
	slices.SortFunc(events, func(a, b E) int { return cmp.Compare(a, b) })
	return events
}

func (m *Machine[S, E]) add(t Transition[S, E]) error {
	if t.From == "" || t.To == "" || t.Event == "" {
		return ErrInvalidTransition
	}

	if _, ok := m.transitions[t.From]; !ok {
		m.transitions[t.From] = make(map[E][]Transition[S, E])
	}

	// Multiple transitions allowed for same from/event to support guard-based branching
	m.transitions[t.From][t.Event] = append(m.transitions[t.From][t.Event], t)
	return nil
}

func guardsPass[S State, E Event](ctx context.Context, t Transition[S, E], from S, event E, data any) bool {
	for _, guard := range t.Guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
