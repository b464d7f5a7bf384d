package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine: transition needs from, to and event")
	ErrInvalidEvent      = errors.New("statemachine: empty event")

	// ErrNoTransition matches a TransitionError for an event the table does
	// not define for the state.
	ErrNoTransition = errors.New("statemachine: no transition")
	// ErrGuardRejected matches a TransitionError whose candidate transitions
	// were all refused by guards.
	ErrGuardRejected = errors.New("statemachine: rejected by guard")
)

// TransitionError is returned by Machine.Next when an event cannot fire.
// Test it with errors.Is against ErrNoTransition or ErrGuardRejected.
type TransitionError struct {
	From     string
	Event    string
	Rejected bool
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %q from %q", e.cause(), e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == e.cause()
}

func (e *TransitionError) cause() error {
	if e.Rejected {
		return ErrGuardRejected
	}
	return ErrNoTransition
}
