// Package ingest appends operational data to equipment and keeps the derived
// risk fields, the audit trail and the risk event stream in step with it.
package ingest

import (
	"context"
	"encoding/json"
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

const actionReading = "reading_appended"

// Store is the slice of the repository the recorder writes through.
type Store interface {
	GetEquipment(ctx context.Context, id uuid.UUID) (store.Equipment, error)
	ModifyEquipment(ctx context.Context, id uuid.UUID, fn func(e *store.Equipment) (*store.Reading, error)) (store.Equipment, store.Equipment, error)
	RecordAudit(ctx context.Context, a *store.Audit) error
}

// Recorder is the single write path for readings and equipment changes.
type Recorder struct {
	store  Store
	pub    bus.Publisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewRecorder(st Store, pub bus.Publisher, logger zerolog.Logger) (*Recorder, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if pub == nil {
		pub = bus.Discard{}
	}
	return &Recorder{store: st, pub: pub, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// SetClock replaces the time source.
func (rc *Recorder) SetClock(now func() time.Time) { rc.now = now }

// Append applies r to the machine it names, stores it and reclassifies the
// machine in one store step. The machine must belong to owner.
func (rc *Recorder) Append(ctx context.Context, owner uuid.UUID, r store.Reading, actor string) (store.Reading, store.Equipment, error) {
	r.OwnerID = owner
	if r.Source == "" {
		r.Source = store.SourceManual
	}
	before, e, err := rc.store.ModifyEquipment(ctx, r.EquipmentID, func(e *store.Equipment) (*store.Reading, error) {
		if _, err := store.Authorize(*e, nil, owner); err != nil {
			return nil, err
		}
		if _, err := e.ApplyReading(r); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return store.Reading{}, store.Equipment{}, err
	}
	metrics.IngestedRows.WithLabelValues(string(r.Source)).Inc()

	if err := rc.Changed(ctx, actor, actionReading, &before, e); err != nil {
		return r, e, err
	}
	return r, e, nil
}

// Changed records an audit diff for an equipment write and publishes a
// RiskChanged event when the tier moved. before is nil for new machines.
func (rc *Recorder) Changed(ctx context.Context, actor, action string, before *store.Equipment, after store.Equipment) error {
	var previous map[string]any
	var previousTier risk.Tier
	if before != nil {
		snap, err := snapshot(*before)
		if err != nil {
			return err
		}
		previous = snap
		previousTier = before.RiskLevel
	}
	current, err := snapshot(after)
	if err != nil {
		return err
	}

	diff := computeDiff(previous, current)
	delete(diff, "updated_at")
	if len(diff) > 0 {
		entry := store.Audit{
			Actor:  actor,
			Action: action,
			Object: after.ID.String(),
			Details: map[string]any{
				"equipment_id": after.ID.String(),
				"changes":      diff,
			},
			At: rc.now(),
		}
		if err := rc.store.RecordAudit(ctx, &entry); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}
	}

	metrics.Classifications.WithLabelValues(string(after.RiskLevel)).Inc()
	if previousTier == after.RiskLevel {
		return nil
	}
	evt := bus.RiskChanged{
		EquipmentID: after.ID,
		OwnerID:     after.OwnerID,
		Previous:    previousTier,
		Current:     after.RiskLevel,
		HoursUsed:   after.HoursUsed,
		MTBF:        after.MTBF,
		At:          rc.now(),
	}
	if err := rc.pub.Publish(ctx, bus.SubjectRiskChanged, evt); err != nil {
		rc.logger.Warn().Err(err).
			Str("equipment_id", after.ID.String()).
			Str("tier", string(after.RiskLevel)).
			Msg("publish risk change")
	}
	return nil
}

func snapshot(e store.Equipment) (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode equipment: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode equipment: %w", err)
	}
	return out, nil
}
