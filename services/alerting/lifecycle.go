package alerting

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"agroguard/pkg/lifecycle"
	"agroguard/pkg/store"
)

const (
	EventAcknowledge = "acknowledge"
	EventResolve     = "resolve"
)

// machine is the alert lifecycle: active -> acknowledged -> resolved, with
// resolve also allowed straight from active. The first event argument is the
// *store.Alert being moved, the second the transition time and the optional
// third a resolution note.
var machine lifecycle.Machine = func(initial string) *fsm.FSM {
	return fsm.NewFSM(initial,
		fsm.Events{
			{Name: EventAcknowledge, Src: []string{string(store.AlertActive)}, Dst: string(store.AlertAcknowledged)},
			{Name: EventResolve, Src: []string{string(store.AlertActive), string(store.AlertAcknowledged)}, Dst: string(store.AlertResolved)},
		},
		fsm.Callbacks{
			"enter_" + string(store.AlertAcknowledged): lifecycle.WrapEvent(enterAcknowledged),
			"enter_" + string(store.AlertResolved):     lifecycle.WrapEvent(enterResolved),
		},
	)
}

func eventArgs(e *fsm.Event) (*store.Alert, time.Time) {
	return e.Args[0].(*store.Alert), e.Args[1].(time.Time)
}

func enterAcknowledged(_ context.Context, e *fsm.Event) error {
	a, at := eventArgs(e)
	a.Status = store.AlertAcknowledged
	a.AcknowledgedAt = &at
	return nil
}

func enterResolved(_ context.Context, e *fsm.Event) error {
	a, at := eventArgs(e)
	a.Status = store.AlertResolved
	a.ResolvedAt = &at
	if len(e.Args) > 2 {
		if note, ok := e.Args[2].(string); ok && note != "" {
			a.ResolutionNote = note
		}
	}
	return nil
}
