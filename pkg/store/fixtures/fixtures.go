// Package fixtures seeds sample data for demo and test configurations.
//
// Nothing in the request path falls back to these records: a Provider runs once
// at startup, and only when demo mode is enabled.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"agroguard/pkg/risk"
	"agroguard/pkg/store"
)

// Provider writes a fixture set into a store.
type Provider interface {
	Seed(ctx context.Context, st store.Store) (store.User, error)
}

// Demo is the sample fleet shown by the demo deployment.
type Demo struct {
	Email    string
	Password string
	Now      func() time.Time
}

const (
	DefaultDemoEmail    = "demo@agroguard.com.br"
	DefaultDemoPassword = "agroguard-demo"
)

var _ Provider = Demo{}

// Seed creates the demo user with four machines, a maintenance history and the
// alerts their risk tier calls for.
func (d Demo) Seed(ctx context.Context, st store.Store) (store.User, error) {
	if st == nil {
		return store.User{}, errors.New("store is required")
	}
	if d.Email == "" {
		d.Email = DefaultDemoEmail
	}
	if d.Password == "" {
		d.Password = DefaultDemoPassword
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	now := d.Now()

	hash, err := bcrypt.GenerateFromPassword([]byte(d.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash demo password: %w", err)
	}
	user := store.User{
		Email:              d.Email,
		Name:               "Operador Demo",
		PasswordHash:       string(hash),
		Company:            "Fazenda Demonstração",
		EmailNotifications: true,
	}
	if err := st.CreateUser(ctx, &user); err != nil {
		return store.User{}, fmt.Errorf("create demo user: %w", err)
	}

	machines := fleet()
	for i, e := range machines {
		e.OwnerID = user.ID
		// Spread creation times so the newest-first listing is stable.
		e.CreatedAt = now.Add(-time.Duration(len(machines)-i) * time.Hour)
		if _, err := e.Reclassify(); err != nil {
			return store.User{}, fmt.Errorf("classify %s: %w", e.Name, err)
		}
		if err := st.CreateEquipment(ctx, &e); err != nil {
			return store.User{}, fmt.Errorf("create %s: %w", e.Name, err)
		}

		if e.LastMaintenanceAt != nil {
			done := *e.LastMaintenanceAt
			m := store.Maintenance{
				OwnerID:       user.ID,
				EquipmentID:   e.ID,
				EquipmentName: e.Name,
				Type:          store.MaintenancePreventive,
				Status:        store.MaintenanceCompleted,
				Description:   "Lubrificação dos rolamentos e verificação do sistema de refrigeração",
				ScheduledDate: done,
				CompletedDate: &done,
				Technician:    "André Silva",
				Cost:          1200,
				DowntimeHours: 4,
			}
			if err := st.CreateMaintenance(ctx, &m); err != nil {
				return store.User{}, fmt.Errorf("create maintenance for %s: %w", e.Name, err)
			}
		}

		if e.RiskLevel == risk.TierHigh {
			a := store.Alert{
				OwnerID:           user.ID,
				EquipmentID:       e.ID,
				EquipmentName:     e.Name,
				Message:           fmt.Sprintf("Risco elevado detectado para %s. Manutenção recomendada.", e.Name),
				Severity:          e.RiskLevel,
				Status:            store.AlertActive,
				RecommendedAction: "Verificar sensores e realizar manutenção preventiva.",
			}
			if err := st.CreateAlert(ctx, &a); err != nil {
				return store.User{}, fmt.Errorf("create alert for %s: %w", e.Name, err)
			}
		}
	}

	return user, nil
}

func fleet() []store.Equipment {
	day := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	temp, vib := 78.0, 5.8

	return []store.Equipment{
		{
			ID:                 uuid.New(),
			Name:               "Pulverizador Jacto Uniport 3030",
			Manufacturer:       "Jacto",
			Model:              "JA-UP3030-215CV",
			Type:               "Pulverizador",
			HoursUsed:          7800,
			MTBF:               10000,
			CriticalComponents: []string{"Bomba de pressão", "Barras de pulverização"},
			LastFailureAt:      day(2024, time.April, 5),
			Status:             store.EquipmentActive,
		},
		{
			ID:                 uuid.New(),
			Name:               "Colheitadeira New Holland TC5070",
			Manufacturer:       "New Holland",
			Model:              "NH-TC5070-175CV",
			Type:               "Colheitadeira",
			HoursUsed:          5200,
			MTBF:               15000,
			CriticalComponents: []string{"Plataforma de corte", "Cilindro trilhador"},
			LastFailureAt:      day(2023, time.November, 20),
			Status:             store.EquipmentActive,
		},
		{
			ID:                 uuid.New(),
			Name:               "Trator Agrícola",
			Manufacturer:       "John Deere",
			Model:              "JD-6110B-110CV",
			Type:               "Trator",
			HoursUsed:          8500,
			MTBF:               12000,
			CriticalComponents: []string{"Transmissão", "Sistema hidráulico"},
			LastFailureAt:      day(2024, time.March, 15),
			Status:             store.EquipmentActive,
		},
		{
			ID:                 uuid.New(),
			Name:               "Motor WEG W22",
			Manufacturer:       "WEG",
			Model:              "WEG-W22-200CV",
			Type:               "Motor Elétrico Industrial",
			Location:           "Linha de produção A - Setor 3",
			Responsible:        "Carlos Mendes",
			InstalledAt:        day(2022, time.March, 15),
			HoursUsed:          16300,
			MTBF:               18000,
			CurrentTemperature: &temp,
			CurrentVibration:   &vib,
			CriticalComponents: []string{"Rolamento dianteiro", "Rolamento traseiro", "Estator", "Rotor", "Sistema de refrigeração"},
			LastFailureAt:      day(2024, time.May, 10),
			LastMaintenanceAt:  day(2024, time.February, 20),
			Status:             store.EquipmentActive,
		},
	}
}
