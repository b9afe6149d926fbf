// Package lifecycle runs record state transitions through looplab/fsm.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// ErrInvalidTransition is returned when an event is not allowed from the
// record's current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// WrapEvent adapts an error-returning callback to fsm.Callback.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Machine builds a fresh fsm for one record. Records are loaded from storage
// per request so a machine never outlives a single transition.
type Machine func(initial string) *fsm.FSM

// Fire applies event to a record currently in state and returns the new state.
func (m Machine) Fire(ctx context.Context, state, event string, args ...any) (string, error) {
	f := m(state)
	if err := f.Event(ctx, event, args...); err != nil {
		var invalid fsm.InvalidEventError
		var unknown fsm.UnknownEventError
		var none fsm.NoTransitionError
		if errors.As(err, &invalid) || errors.As(err, &unknown) || errors.As(err, &none) {
			return state, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, state)
		}
		return state, err
	}
	return f.Current(), nil
}

// Allowed reports whether event can fire from state.
func (m Machine) Allowed(state, event string) bool {
	return m(state).Can(event)
}
