package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agroguard/pkg/bus"
	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

const watcherDurable = "alerting-risk"

// Scheduler books preventive maintenance for a machine. The bool reports
// whether a record was created.
type Scheduler interface {
	AutoSchedule(ctx context.Context, e store.Equipment) (store.Maintenance, bool, error)
}

// Watcher consumes risk-change events and raises alerts on escalation. High
// risk also books preventive maintenance through the scheduler.
type Watcher struct {
	alerts    *Service
	scheduler Scheduler
	sub       bus.Subscriber
	logger    zerolog.Logger

	subMu  sync.Mutex
	closer io.Closer
}

func NewWatcher(alerts *Service, scheduler Scheduler, sub bus.Subscriber, logger zerolog.Logger) (*Watcher, error) {
	if alerts == nil {
		return nil, errors.New("alert service is required")
	}
	if scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	return &Watcher{alerts: alerts, scheduler: scheduler, sub: sub, logger: logger}, nil
}

// Start subscribes and processes events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	closer, err := w.sub.Subscribe(ctx, bus.SubjectRiskChanged, watcherDurable, w.Handle)
	if err != nil {
		return err
	}
	w.subMu.Lock()
	w.closer = closer
	w.subMu.Unlock()
	return nil
}

// Close stops the subscription if it was created.
func (w *Watcher) Close() error {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

// Handle processes one encoded bus.RiskChanged event.
func (w *Watcher) Handle(ctx context.Context, data []byte) error {
	var evt bus.RiskChanged
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.EquipmentID == uuid.Nil {
		return errors.New("equipment_id missing from event")
	}
	if !evt.Escalated() || evt.Current == risk.TierLow {
		return nil
	}

	e, err := w.alerts.store.GetEquipment(ctx, evt.EquipmentID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Warn().Str("equipment_id", evt.EquipmentID.String()).Msg("risk event for unknown equipment")
		return nil
	}
	if err != nil {
		return err
	}

	if _, _, err := w.alerts.RaiseForEquipment(ctx, e); err != nil {
		return err
	}
	if e.RiskLevel != risk.TierHigh {
		return nil
	}
	m, created, err := w.scheduler.AutoSchedule(ctx, e)
	if err != nil {
		return err
	}
	if created {
		w.logger.Info().
			Str("equipment_id", e.ID.String()).
			Str("maintenance_id", m.ID.String()).
			Msg("preventive maintenance scheduled")
	}
	return nil
}
