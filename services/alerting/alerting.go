// Package alerting owns the alert lifecycle and raises alerts for machines
// whose risk tier is elevated.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agroguard/pkg/bus"
	"agroguard/pkg/metrics"
	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

const (
	alertMessageFormat = "Risco elevado detectado para %s. Manutenção recomendada."
	recommendedAction  = "Verificar sensores e realizar manutenção preventiva."
)

// Store is the slice of the repository alerting needs.
type Store interface {
	store.AlertStore
	GetEquipment(ctx context.Context, id uuid.UUID) (store.Equipment, error)
	ListEquipment(ctx context.Context, owner uuid.UUID, f store.EquipmentFilter) ([]store.Equipment, error)
}

// Service raises and transitions alerts.
type Service struct {
	store    Store
	bus      bus.Publisher
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// New builds a Service. pub and notifier are required; use bus.Discard when
// no broker is configured.
func New(st Store, pub bus.Publisher, notifier Notifier, logger zerolog.Logger) (*Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	return &Service{
		store:    st,
		bus:      pub,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Get returns an alert owned by owner.
func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (store.Alert, error) {
	a, err := s.store.GetAlert(ctx, id)
	return store.Authorize(a, err, owner)
}

func (s *Service) List(ctx context.Context, owner uuid.UUID, f store.AlertFilter) ([]store.Alert, error) {
	return s.store.ListAlerts(ctx, owner, f)
}

// Acknowledge moves an active alert to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, owner, id uuid.UUID) (store.Alert, error) {
	return s.transition(ctx, owner, id, EventAcknowledge, "")
}

// Resolve closes an active or acknowledged alert.
func (s *Service) Resolve(ctx context.Context, owner, id uuid.UUID, note string) (store.Alert, error) {
	return s.transition(ctx, owner, id, EventResolve, note)
}

func (s *Service) transition(ctx context.Context, owner, id uuid.UUID, event, note string) (store.Alert, error) {
	a, err := s.Get(ctx, owner, id)
	if err != nil {
		return store.Alert{}, err
	}
	if err := s.fire(ctx, &a, event, note); err != nil {
		return store.Alert{}, err
	}
	return a, nil
}

func (s *Service) fire(ctx context.Context, a *store.Alert, event, note string) error {
	if _, err := machine.Fire(ctx, string(a.Status), event, a, s.now(), note); err != nil {
		metrics.AlertTransitions.WithLabelValues(event, "rejected").Inc()
		return err
	}
	metrics.AlertTransitions.WithLabelValues(event, "ok").Inc()
	return s.store.UpdateAlert(ctx, a)
}

// ResolveForEquipment resolves every open alert of a machine with note and
// returns how many were closed.
func (s *Service) ResolveForEquipment(ctx context.Context, owner, equipmentID uuid.UUID, note string) (int, error) {
	alerts, err := s.store.ListAlerts(ctx, owner, store.AlertFilter{EquipmentID: equipmentID})
	if err != nil {
		return 0, err
	}
	resolved := 0
	for i := range alerts {
		a := alerts[i]
		if a.Status == store.AlertResolved {
			continue
		}
		if err := s.fire(ctx, &a, EventResolve, note); err != nil {
			return resolved, fmt.Errorf("resolve alert %s: %w", a.ID, err)
		}
		resolved++
	}
	return resolved, nil
}

// RaiseForEquipment creates an alert when the machine's tier is medium or high
// and it has no active alert yet. The bool reports whether one was created.
func (s *Service) RaiseForEquipment(ctx context.Context, e store.Equipment) (store.Alert, bool, error) {
	if e.RiskLevel != risk.TierHigh && e.RiskLevel != risk.TierMedium {
		return store.Alert{}, false, nil
	}
	open, err := s.store.ListAlerts(ctx, e.OwnerID, store.AlertFilter{EquipmentID: e.ID, Status: store.AlertActive, Limit: 1})
	if err != nil {
		return store.Alert{}, false, err
	}
	if len(open) > 0 {
		return store.Alert{}, false, nil
	}

	a := store.Alert{
		OwnerID:           e.OwnerID,
		EquipmentID:       e.ID,
		EquipmentName:     e.Name,
		Message:           fmt.Sprintf(alertMessageFormat, e.Name),
		Severity:          e.RiskLevel,
		Status:            store.AlertActive,
		RecommendedAction: recommendedAction,
	}
	if err := s.store.CreateAlert(ctx, &a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Raised concurrently by another caller.
			return store.Alert{}, false, nil
		}
		return store.Alert{}, false, err
	}
	metrics.AlertsRaised.WithLabelValues(string(a.Severity)).Inc()

	evt := bus.AlertRaised{AlertID: a.ID, OwnerID: a.OwnerID, EquipmentID: a.EquipmentID, Severity: a.Severity, At: a.CreatedAt}
	if err := s.bus.Publish(ctx, bus.SubjectAlertRaised, evt); err != nil {
		s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("publish alert raised")
	}
	if err := s.notifier.Notify(ctx, a); err != nil {
		s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("notify alert")
	}
	return a, true, nil
}

// GenerateForOwner raises alerts for every elevated-risk machine of owner and
// returns the ones created.
func (s *Service) GenerateForOwner(ctx context.Context, owner uuid.UUID) ([]store.Alert, error) {
	created := []store.Alert{}
	for _, tier := range []risk.Tier{risk.TierHigh, risk.TierMedium} {
		machines, err := s.store.ListEquipment(ctx, owner, store.EquipmentFilter{Risk: tier})
		if err != nil {
			return nil, err
		}
		for _, e := range machines {
			a, ok, err := s.RaiseForEquipment(ctx, e)
			if err != nil {
				return nil, fmt.Errorf("raise for %s: %w", e.ID, err)
			}
			if ok {
				created = append(created, a)
			}
		}
	}
	return created, nil
}
