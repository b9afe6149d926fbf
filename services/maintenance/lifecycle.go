package maintenance

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"agroguard/pkg/lifecycle"
	"agroguard/pkg/store"
)

const (
	EventStart    = "start"
	EventComplete = "complete"
	EventCancel   = "cancel"
)

// machine moves a record through scheduled -> in_progress -> completed, with
// cancel allowed from either open state. Event args: *store.Maintenance, then
// the transition time.
var machine lifecycle.Machine = func(initial string) *fsm.FSM {
	open := []string{string(store.MaintenanceScheduled), string(store.MaintenanceInProgress)}
	return fsm.NewFSM(initial,
		fsm.Events{
			{Name: EventStart, Src: []string{string(store.MaintenanceScheduled)}, Dst: string(store.MaintenanceInProgress)},
			{Name: EventComplete, Src: open, Dst: string(store.MaintenanceCompleted)},
			{Name: EventCancel, Src: open, Dst: string(store.MaintenanceCancelled)},
		},
		fsm.Callbacks{
			"enter_state": lifecycle.WrapEvent(enterState),
		},
	)
}

func enterState(_ context.Context, e *fsm.Event) error {
	m := e.Args[0].(*store.Maintenance)
	at := e.Args[1].(time.Time)
	m.Status = store.MaintenanceStatus(e.Dst)
	if m.Status == store.MaintenanceCompleted && m.CompletedDate == nil {
		m.CompletedDate = &at
	}
	return nil
}
