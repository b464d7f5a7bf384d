// Package statemachine provides immutable, generic transition tables for
// modelling entity lifecycles.
//
// Unlike a classic FSM object, a Machine never stores a "current" state. The
// state lives on the entity being modelled (an account, an invoice, a
// subscription) and the machine only answers "where does this event lead from
// here?". That keeps the table shareable as a package-level value and lets the
// caller decide when, if ever, to apply the resolved state, for example only
// after a remote call confirmed the transition.
//
// # Usage
//
//	type DocState string
//	type DocEvent string
//
//	const (
//	    Draft    DocState = "draft"
//	    InReview DocState = "in_review"
//	    Submit   DocEvent = "submit"
//	)
//
//	var docs = statemachine.MustNew(Draft,
//	    statemachine.WithTransition(Draft, InReview, Submit),
//	)
//
//	next, err := docs.Next(ctx, doc.State, Submit, doc)
//
// # Guards
//
// Guards veto a transition based on runtime data. When several transitions
// share a from/event pair, the first one whose guards pass wins:
//
//	ownerOnly := func(ctx context.Context, from DocState, evt DocEvent, data any) bool {
//	    d, ok := data.(*Doc)
//	    return ok && d.Owner == currentUser(ctx)
//	}
//
//	statemachine.WithTransition(Draft, InReview, Submit,
//	    statemachine.WithGuard[DocState, DocEvent](ownerOnly))
//
// # Error Handling
//
// Next returns a *TransitionError when an event cannot fire:
//
//	switch {
//	case errors.Is(err, statemachine.ErrNoTransition):  // event not defined for state
//	case errors.Is(err, statemachine.ErrGuardRejected): // guards said no
//	}
package statemachine
