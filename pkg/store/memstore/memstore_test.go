package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

func TestListEquipmentIsOwnerScopedNewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return clock }))

	owner, other := uuid.New(), uuid.New()
	names := []string{"primeiro", "segundo", "terceiro"}
	for _, name := range names {
		e := store.Equipment{OwnerID: owner, Name: name, MTBF: 100}
		if err := s.CreateEquipment(ctx, &e); err != nil {
			t.Fatalf("CreateEquipment() error = %v", err)
		}
	}
	foreign := store.Equipment{OwnerID: other, Name: "alheio", MTBF: 100}
	if err := s.CreateEquipment(ctx, &foreign); err != nil {
		t.Fatalf("CreateEquipment() error = %v", err)
	}

	got, err := s.ListEquipment(ctx, owner, store.EquipmentFilter{})
	if err != nil {
		t.Fatalf("ListEquipment() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"terceiro", "segundo", "primeiro"} {
		if got[i].Name != want {
			t.Fatalf("item %d = %s, want %s", i, got[i].Name, want)
		}
	}

	empty, err := s.ListEquipment(ctx, uuid.New(), store.EquipmentFilter{})
	if err != nil {
		t.Fatalf("ListEquipment() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestListAlertsLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()
	for i := 0; i < 7; i++ {
		a := store.Alert{OwnerID: owner, EquipmentID: uuid.New(), Status: store.AlertActive, Severity: risk.TierHigh}
		if err := s.CreateAlert(ctx, &a); err != nil {
			t.Fatalf("CreateAlert() error = %v", err)
		}
	}
	got, err := s.ListAlerts(ctx, owner, store.AlertFilter{Limit: 5})
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
}

func TestCreateAlertRejectsSecondActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner, equipment := uuid.New(), uuid.New()

	first := store.Alert{OwnerID: owner, EquipmentID: equipment, Status: store.AlertActive, Severity: risk.TierHigh}
	if err := s.CreateAlert(ctx, &first); err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}
	second := store.Alert{OwnerID: owner, EquipmentID: equipment, Status: store.AlertActive, Severity: risk.TierHigh}
	if err := s.CreateAlert(ctx, &second); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	resolved := store.Alert{OwnerID: owner, EquipmentID: equipment, Status: store.AlertResolved, Severity: risk.TierHigh}
	if err := s.CreateAlert(ctx, &resolved); err != nil {
		t.Fatalf("resolved alert: %v", err)
	}

	first.Status = store.AlertAcknowledged
	if err := s.UpdateAlert(ctx, &first); err != nil {
		t.Fatalf("UpdateAlert() error = %v", err)
	}
	second.ID = uuid.Nil
	if err := s.CreateAlert(ctx, &second); err != nil {
		t.Fatalf("after acknowledging the first: %v", err)
	}
}

func TestGetMissingAndAuthorize(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetEquipment(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetEquipment() error = %v, want ErrNotFound", err)
	}

	owner := uuid.New()
	e := store.Equipment{OwnerID: owner, Name: "trator", MTBF: 10}
	if err := s.CreateEquipment(ctx, &e); err != nil {
		t.Fatalf("CreateEquipment() error = %v", err)
	}
	got, err := s.GetEquipment(ctx, e.ID)
	if _, err := store.Authorize(got, err, uuid.New()); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("Authorize(foreign) error = %v, want ErrForbidden", err)
	}
	got, err = s.GetEquipment(ctx, e.ID)
	if rec, err := store.Authorize(got, err, owner); err != nil || rec.ID != e.ID {
		t.Fatalf("Authorize(owner) = %v, %v", rec.ID, err)
	}
}

func TestReadingsNewestFirstByDate(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := store.Equipment{OwnerID: uuid.New(), MTBF: 10}
	if err := s.CreateEquipment(ctx, &e); err != nil {
		t.Fatalf("CreateEquipment() error = %v", err)
	}
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []int{2, 0, 1} {
		r := store.Reading{EquipmentID: e.ID, Date: base.AddDate(0, 0, offset), HoursUsed: 1}
		if err := s.AddReading(ctx, &r); err != nil {
			t.Fatalf("AddReading() error = %v", err)
		}
	}
	got, err := s.ListReadings(ctx, e.ID, 2)
	if err != nil {
		t.Fatalf("ListReadings() error = %v", err)
	}
	if len(got) != 2 || !got[0].Date.Equal(base.AddDate(0, 0, 2)) || !got[1].Date.Equal(base.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected order: %+v", got)
	}
	if err := s.AddReading(ctx, &store.Reading{EquipmentID: uuid.New()}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("AddReading(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateUser(ctx, &store.User{Email: "Ana@Fazenda.br"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := s.CreateUser(ctx, &store.User{Email: "ana@fazenda.br "}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("CreateUser(duplicate) error = %v, want ErrConflict", err)
	}
}

func TestModifyEquipment(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := store.Equipment{OwnerID: uuid.New(), Name: "Trator", HoursUsed: 10, MTBF: 100}
	if err := s.CreateEquipment(ctx, &e); err != nil {
		t.Fatalf("CreateEquipment() error = %v", err)
	}

	r := &store.Reading{HoursUsed: 5}
	before, after, err := s.ModifyEquipment(ctx, e.ID, func(cur *store.Equipment) (*store.Reading, error) {
		cur.HoursUsed += r.HoursUsed
		return r, nil
	})
	if err != nil {
		t.Fatalf("ModifyEquipment() error = %v", err)
	}
	if before.HoursUsed != 10 || after.HoursUsed != 15 {
		t.Fatalf("got before %v after %v, want 10 and 15", before.HoursUsed, after.HoursUsed)
	}
	if r.ID == uuid.Nil || r.EquipmentID != e.ID {
		t.Fatalf("reading not stored with the machine: %+v", r)
	}

	boom := errors.New("boom")
	if _, _, err := s.ModifyEquipment(ctx, e.ID, func(cur *store.Equipment) (*store.Reading, error) {
		cur.HoursUsed = 999
		return &store.Reading{HoursUsed: 1}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("ModifyEquipment() error = %v, want boom", err)
	}
	_, unchanged, err := s.ModifyEquipment(ctx, e.ID, func(cur *store.Equipment) (*store.Reading, error) {
		cur.Name = "ignored"
		return nil, store.ErrUnchanged
	})
	if err != nil || unchanged.Name != "Trator" {
		t.Fatalf("ModifyEquipment(unchanged) = %q, %v", unchanged.Name, err)
	}

	got, _ := s.GetEquipment(ctx, e.ID)
	if got.HoursUsed != 15 || got.Name != "Trator" {
		t.Fatalf("got %+v, want hours 15 and the original name", got)
	}
	readings, _ := s.ListReadings(ctx, e.ID, 0)
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}

	if _, _, err := s.ModifyEquipment(ctx, uuid.New(), func(*store.Equipment) (*store.Reading, error) { return nil, nil }); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("ModifyEquipment(unknown) error = %v, want ErrNotFound", err)
	}
}
