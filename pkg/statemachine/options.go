package statemachine

import (
	"fmt"
)

// Option configures a state machine during construction.
type Option[S State, E Event] func(*Machine[S, E]) error

// TransitionOption configures a single transition.
type TransitionOption[S State, E Event] func(*Transition[S, E])

// New creates a transition table with the given initial state and options.
func New[S State, E Event](initial S, opts ...Option[S, E]) (*Machine[S, E], error) {
	if initial == "" {
		return nil, fmt.Errorf("initial state cannot be empty")
	}

	m := &Machine[S, E]{
		initial:     initial,
		transitions: make(map[S]map[E][]Transition[S, E]),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// MustNew is like New but panics if any option fails to apply.
// Transition tables are package-level values, so misconfiguration should stop the program at init.
func MustNew[S State, E Event](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// WithTransition adds a single transition.
func WithTransition[S State, E Event](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		t := Transition[S, E]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		return m.add(t)
	}
}

// WithTransitionsFrom adds the same event transition from each of the given states.
func WithTransitionsFrom[S State, E Event](from []S, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		for _, f := range from {
			if err := WithTransition(f, to, event, opts...)(m); err != nil {
				return fmt.Errorf("failed to add transition %s->%s on %s: %w", f, to, event, err)
			}
		}
		return nil
	}
}

// WithTransitions adds multiple transitions at once.
func WithTransitions[S State, E Event](transitions []Transition[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		for i, t := range transitions {
			if err := m.add(t); err != nil {
				return fmt.Errorf("failed to add transition[%d] %q->%q on %q: %w",
					i, t.From, t.To, t.Event, err)
			}
		}
		return nil
	}
}

// WithGuard adds a guard to a transition. Nil guards are ignored.
func WithGuard[S State, E Event](guard Guard[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if guard != nil {
			t.Guards = append(t.Guards, guard)
		}
	}
}
