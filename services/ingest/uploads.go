package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agroguard/pkg/bus"
	"agroguard/pkg/metrics"
	"agroguard/pkg/s3"
	"agroguard/pkg/store"
	"agroguard/pkg/upload"
)

const (
	uploadsDurable = "agroguard-ingest"
	actorUpload    = "upload"
)

// UploadStore is what upload processing reads and writes besides readings.
type UploadStore interface {
	Store
	GetUpload(ctx context.Context, id uuid.UUID) (store.Upload, error)
	UpdateUpload(ctx context.Context, u *store.Upload) error
	CreateMaintenance(ctx context.Context, m *store.Maintenance) error
}

// Ingestor turns uploaded spreadsheets into readings, maintenance records and
// failure dates.
type Ingestor struct {
	store    UploadStore
	objects  s3.ObjectStore
	bucket   string
	recorder *Recorder
	sub      bus.Subscriber
	logger   zerolog.Logger

	subMu  sync.Mutex
	closer io.Closer
}

// NewIngestor wires upload processing. sub may be nil when Process is driven
// directly.
func NewIngestor(st UploadStore, objects s3.ObjectStore, bucket string, recorder *Recorder, sub bus.Subscriber, logger zerolog.Logger) (*Ingestor, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if objects == nil {
		return nil, errors.New("object store is required")
	}
	if recorder == nil {
		return nil, errors.New("recorder is required")
	}
	return &Ingestor{store: st, objects: objects, bucket: bucket, recorder: recorder, sub: sub, logger: logger}, nil
}

// Start subscribes to upload notifications.
func (in *Ingestor) Start(ctx context.Context) error {
	if in.sub == nil {
		return errors.New("subscriber is required")
	}
	closer, err := in.sub.Subscribe(ctx, bus.SubjectUploadReceived, uploadsDurable, in.handle)
	if err != nil {
		return err
	}
	in.subMu.Lock()
	in.closer = closer
	in.subMu.Unlock()
	return nil
}

// Close stops the subscription if it was created.
func (in *Ingestor) Close() error {
	in.subMu.Lock()
	defer in.subMu.Unlock()
	if in.closer == nil {
		return nil
	}
	err := in.closer.Close()
	in.closer = nil
	return err
}

func (in *Ingestor) handle(ctx context.Context, data []byte) error {
	var evt bus.UploadReceived
	if err := json.Unmarshal(data, &evt); err != nil {
		in.logger.Error().Err(err).Msg("decode upload event")
		return nil
	}
	if evt.UploadID == uuid.Nil {
		in.logger.Error().Msg("upload event without upload_id")
		return nil
	}
	_, err := in.Process(ctx, evt.UploadID)
	return err
}

// Process ingests one pending upload. Problems with the file itself end up on
// the upload record; the returned error is reserved for storage failures, so a
// message can be redelivered.
func (in *Ingestor) Process(ctx context.Context, id uuid.UUID) (store.Upload, error) {
	u, err := in.store.GetUpload(ctx, id)
	if err != nil {
		return store.Upload{}, err
	}
	if u.Status != store.UploadPending {
		return u, nil
	}

	start := time.Now()
	defer func() {
		metrics.IngestDuration.WithLabelValues(u.Format).Observe(time.Since(start).Seconds())
	}()

	log := in.logger.With().Str("upload_id", u.ID.String()).Str("owner_id", u.OwnerID.String()).Logger()

	rows, err := in.load(ctx, u)
	if err != nil {
		if errors.Is(err, s3.ErrNoSuchKey) {
			return u, in.fail(ctx, &u, errors.New("uploaded object not found"), log)
		}
		var fileErr *fileError
		if errors.As(err, &fileErr) {
			return u, in.fail(ctx, &u, fileErr.err, log)
		}
		return u, err
	}

	processed := 0
	for _, r := range rows {
		if err := in.apply(ctx, u, r); err != nil {
			if !isDataError(err) {
				return u, err
			}
			var rowErr *RowError
			if !errors.As(err, &rowErr) {
				err = &RowError{Line: r.line, Err: err}
			}
			u.RowsProcessed = processed
			return u, in.fail(ctx, &u, err, log)
		}
		processed++
	}

	u.Status = store.UploadProcessed
	u.RowsProcessed = processed
	u.Error = ""
	if err := in.store.UpdateUpload(ctx, &u); err != nil {
		return u, err
	}
	log.Info().Int("rows", processed).Str("data_type", string(u.DataType)).Msg("upload processed")
	return u, nil
}

type fileError struct{ err error }

func (e *fileError) Error() string { return e.err.Error() }

func (in *Ingestor) load(ctx context.Context, u store.Upload) ([]row, error) {
	if upload.Format(u.Format) == upload.FormatXLS {
		return nil, &fileError{ErrXLSUnsupported}
	}
	data, err := in.objects.GetObject(ctx, in.bucket, u.ObjectKey, upload.MaxSize)
	if errors.Is(err, s3.ErrTooLarge) {
		return nil, &fileError{upload.ErrTooLarge}
	}
	if err != nil {
		return nil, err
	}
	rows, err := parse(upload.Format(u.Format), data)
	if err != nil {
		return nil, &fileError{err}
	}
	return rows, nil
}

func (in *Ingestor) fail(ctx context.Context, u *store.Upload, cause error, log zerolog.Logger) error {
	u.Status = store.UploadError
	u.Error = cause.Error()
	log.Warn().Err(cause).Int("rows", u.RowsProcessed).Msg("upload rejected")
	return in.store.UpdateUpload(ctx, u)
}

// isDataError reports errors caused by row content rather than storage.
func isDataError(err error) bool {
	var rowErr *RowError
	return errors.As(err, &rowErr) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrForbidden) ||
		errors.Is(err, store.ErrNegativeHours)
}

func (in *Ingestor) target(u store.Upload, r row) (uuid.UUID, error) {
	if u.EquipmentID != nil {
		return *u.EquipmentID, nil
	}
	raw := r.get("equipment_id")
	if raw == "" {
		return uuid.Nil, &RowError{Line: r.line, Err: errors.New("equipment_id is required")}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &RowError{Line: r.line, Err: fmt.Errorf("invalid equipment_id %q", raw)}
	}
	return id, nil
}

func (in *Ingestor) apply(ctx context.Context, u store.Upload, r row) error {
	equipmentID, err := in.target(u, r)
	if err != nil {
		return err
	}
	switch u.DataType {
	case store.DataMaintenance:
		return in.applyMaintenance(ctx, u, equipmentID, r)
	case store.DataFailure:
		return in.applyFailure(ctx, u, equipmentID, r)
	default:
		reading, err := readingFrom(r)
		if err != nil {
			return &RowError{Line: r.line, Err: err}
		}
		reading.EquipmentID = equipmentID
		reading.Source = store.SourceUpload
		_, _, err = in.recorder.Append(ctx, u.OwnerID, reading, actorUpload)
		return err
	}
}

func readingFrom(r row) (store.Reading, error) {
	var out store.Reading
	if s := r.get("date"); s != "" {
		d, err := parseDate(s)
		if err != nil {
			return out, err
		}
		out.Date = d
	}
	hours := r.get("hours_used")
	if hours == "" {
		return out, errors.New("hours_used is required")
	}
	v, err := parseNumber(hours)
	if err != nil {
		return out, fmt.Errorf("hours_used: %w", err)
	}
	if v < 0 {
		return out, errors.New("hours_used must not be negative")
	}
	out.HoursUsed = v

	if out.Temperature, err = optionalNumber(r, "temperature"); err != nil {
		return out, err
	}
	if out.Vibration, err = optionalNumber(r, "vibration"); err != nil {
		return out, err
	}
	if out.Consumption, err = optionalNumber(r, "consumption"); err != nil {
		return out, err
	}
	if out.NoiseLevel, err = optionalNumber(r, "noise_level"); err != nil {
		return out, err
	}
	if s := r.get("cycles"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return out, fmt.Errorf("cycles: invalid integer %q", s)
		}
		out.Cycles = &n
	}
	return out, nil
}

func (in *Ingestor) equipment(ctx context.Context, owner, id uuid.UUID) (store.Equipment, error) {
	e, err := in.store.GetEquipment(ctx, id)
	return store.Authorize(e, err, owner)
}

// applyMaintenance records a completed intervention from a row of
// date, maintenance_type, description, cost, downtime_hours, technician and
// components_replaced (semicolon separated).
func (in *Ingestor) applyMaintenance(ctx context.Context, u store.Upload, equipmentID uuid.UUID, r row) error {
	e, err := in.equipment(ctx, u.OwnerID, equipmentID)
	if err != nil {
		return err
	}
	date, err := requiredDate(r)
	if err != nil {
		return err
	}
	kind := store.MaintenanceType(strings.ToLower(r.get("maintenance_type")))
	switch kind {
	case "":
		kind = store.MaintenancePreventive
	case store.MaintenancePreventive, store.MaintenanceCorrective, store.MaintenancePredictive:
	default:
		return &RowError{Line: r.line, Err: fmt.Errorf("invalid maintenance_type %q", kind)}
	}
	cost, err := optionalNumber(r, "cost")
	if err != nil {
		return &RowError{Line: r.line, Err: err}
	}
	downtime, err := optionalNumber(r, "downtime_hours")
	if err != nil {
		return &RowError{Line: r.line, Err: err}
	}

	m := store.Maintenance{
		OwnerID:            u.OwnerID,
		EquipmentID:        e.ID,
		EquipmentName:      e.Name,
		Type:               kind,
		Status:             store.MaintenanceCompleted,
		Description:        r.get("description"),
		ScheduledDate:      date,
		CompletedDate:      &date,
		Technician:         r.get("technician"),
		ComponentsReplaced: splitList(r.get("components_replaced")),
	}
	if cost != nil {
		m.Cost = *cost
	}
	if downtime != nil {
		m.DowntimeHours = *downtime
	}
	if err := in.store.CreateMaintenance(ctx, &m); err != nil {
		return fmt.Errorf("create maintenance: %w", err)
	}

	before, after, err := in.store.ModifyEquipment(ctx, e.ID, func(e *store.Equipment) (*store.Reading, error) {
		if e.LastMaintenanceAt != nil && !date.After(*e.LastMaintenanceAt) {
			return nil, store.ErrUnchanged
		}
		e.LastMaintenanceAt = &date
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("update equipment: %w", err)
	}
	return in.recorder.Changed(ctx, actorUpload, "maintenance_imported", &before, after)
}

// applyFailure moves lastFailureAt forward to the row's date.
func (in *Ingestor) applyFailure(ctx context.Context, u store.Upload, equipmentID uuid.UUID, r row) error {
	e, err := in.equipment(ctx, u.OwnerID, equipmentID)
	if err != nil {
		return err
	}
	date, err := requiredDate(r)
	if err != nil {
		return err
	}
	before, after, err := in.store.ModifyEquipment(ctx, e.ID, func(e *store.Equipment) (*store.Reading, error) {
		if e.LastFailureAt != nil && !date.After(*e.LastFailureAt) {
			return nil, store.ErrUnchanged
		}
		e.LastFailureAt = &date
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("update equipment: %w", err)
	}
	return in.recorder.Changed(ctx, actorUpload, "failure_imported", &before, after)
}

func requiredDate(r row) (time.Time, error) {
	s := r.get("date")
	if s == "" {
		return time.Time{}, &RowError{Line: r.line, Err: errors.New("date is required")}
	}
	d, err := parseDate(s)
	if err != nil {
		return time.Time{}, &RowError{Line: r.line, Err: err}
	}
	return d, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
