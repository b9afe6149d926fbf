package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type User struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email              string    `gorm:"type:text;uniqueIndex;not null"`
	Name               string    `gorm:"type:text;not null"`
	PasswordHash       string    `gorm:"type:text;not null"`
	Company            string    `gorm:"type:text"`
	Phone              string    `gorm:"type:text"`
	EmailNotifications bool      `gorm:"not null;default:true"`
	SMSNotifications   bool      `gorm:"not null;default:false"`
	CreatedAt          time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt          time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Session struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	AccessHash       string     `gorm:"type:text;uniqueIndex;not null"`
	RefreshHash      string     `gorm:"type:text;uniqueIndex;not null"`
	AccessExpiresAt  time.Time  `gorm:"type:timestamptz;not null"`
	RefreshExpiresAt time.Time  `gorm:"type:timestamptz;not null"`
	RevokedAt        *time.Time `gorm:"type:timestamptz"`
	CreatedAt        time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	User             User       `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Equipment struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	OwnerID              uuid.UUID      `gorm:"type:uuid;not null;index:idx_equipment_owner_created,priority:1"`
	Name                 string         `gorm:"type:text;not null"`
	Manufacturer         string         `gorm:"type:text"`
	Model                string         `gorm:"type:text"`
	Type                 string         `gorm:"type:text"`
	Location             string         `gorm:"type:text"`
	Responsible          string         `gorm:"type:text"`
	InstalledAt          *time.Time     `gorm:"type:date"`
	HoursUsed            float64        `gorm:"type:double precision;not null;default:0"`
	MTBF                 float64        `gorm:"column:mtbf;type:double precision;not null"`
	CurrentTemperature   *float64       `gorm:"type:double precision"`
	CurrentVibration     *float64       `gorm:"type:double precision"`
	CriticalComponents   datatypes.JSON `gorm:"type:jsonb"`
	LastFailureAt        *time.Time     `gorm:"type:timestamptz"`
	LastMaintenanceAt    *time.Time     `gorm:"type:timestamptz"`
	NextMaintenanceAt    *time.Time     `gorm:"type:timestamptz"`
	Status               string         `gorm:"type:text;not null;default:active"`
	RiskLevel            string         `gorm:"type:text;not null;index"`
	RiskScore            string         `gorm:"type:text;not null"`
	FailureForecast      string         `gorm:"type:text;not null"`
	FailureProbability5d string         `gorm:"column:failure_probability_5d;type:text;not null"`
	CreatedAt            time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime;index:idx_equipment_owner_created,priority:2"`
	UpdatedAt            time.Time      `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	Owner                User           `gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Equipment) TableName() string { return "equipment" }

type Reading struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	EquipmentID uuid.UUID `gorm:"type:uuid;not null;index:idx_readings_equipment_date,priority:1"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null"`
	Date        time.Time `gorm:"type:timestamptz;not null;index:idx_readings_equipment_date,priority:2"`
	HoursUsed   float64   `gorm:"type:double precision;not null"`
	Temperature *float64  `gorm:"type:double precision"`
	Vibration   *float64  `gorm:"type:double precision"`
	Consumption *float64  `gorm:"type:double precision"`
	NoiseLevel  *float64  `gorm:"type:double precision"`
	Cycles      *int      `gorm:"type:integer"`
	Source      string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Equipment   Equipment `gorm:"foreignKey:EquipmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Alert struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OwnerID           uuid.UUID  `gorm:"type:uuid;not null;index:idx_alerts_owner_created,priority:1"`
	EquipmentID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	EquipmentName     string     `gorm:"type:text"`
	Message           string     `gorm:"type:text;not null"`
	Severity          string     `gorm:"type:text;not null"`
	Status            string     `gorm:"type:text;not null;index"`
	RecommendedAction string     `gorm:"type:text"`
	ResolutionNote    string     `gorm:"type:text"`
	AcknowledgedAt    *time.Time `gorm:"type:timestamptz"`
	ResolvedAt        *time.Time `gorm:"type:timestamptz"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime;index:idx_alerts_owner_created,priority:2"`
	UpdatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	Equipment         Equipment  `gorm:"foreignKey:EquipmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Maintenance struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey"`
	OwnerID            uuid.UUID      `gorm:"type:uuid;not null;index"`
	EquipmentID        uuid.UUID      `gorm:"type:uuid;not null;index"`
	EquipmentName      string         `gorm:"type:text"`
	Type               string         `gorm:"column:maintenance_type;type:text;not null"`
	Status             string         `gorm:"type:text;not null;index"`
	Description        string         `gorm:"type:text"`
	ScheduledDate      time.Time      `gorm:"type:timestamptz;not null"`
	CompletedDate      *time.Time     `gorm:"type:timestamptz"`
	Technician         string         `gorm:"type:text"`
	Cost               float64        `gorm:"type:double precision;not null;default:0"`
	DowntimeHours      float64        `gorm:"type:double precision;not null;default:0"`
	ComponentsReplaced datatypes.JSON `gorm:"type:jsonb"`
	Notes              string         `gorm:"type:text"`
	CreatedAt          time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	Equipment          Equipment      `gorm:"foreignKey:EquipmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Maintenance) TableName() string { return "maintenance" }

type Report struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	OwnerID       uuid.UUID         `gorm:"type:uuid;not null;index"`
	EquipmentID   uuid.UUID         `gorm:"type:uuid;not null;index"`
	EquipmentName string            `gorm:"type:text"`
	Type          string            `gorm:"column:report_type;type:text;not null"`
	Title         string            `gorm:"type:text;not null"`
	Status        string            `gorm:"type:text;not null"`
	Content       datatypes.JSONMap `gorm:"type:jsonb"`
	ExportKey     string            `gorm:"type:text"`
	CreatedAt     time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	Equipment     Equipment         `gorm:"foreignKey:EquipmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Upload struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OwnerID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	EquipmentID   *uuid.UUID `gorm:"type:uuid"`
	DataType      string     `gorm:"type:text;not null"`
	FileName      string     `gorm:"type:text;not null"`
	ContentType   string     `gorm:"type:text"`
	Format        string     `gorm:"type:text;not null"`
	Size          int64      `gorm:"type:bigint;not null"`
	ObjectKey     string     `gorm:"type:text;not null"`
	Status        string     `gorm:"type:text;not null"`
	RowsProcessed int        `gorm:"type:integer;not null;default:0"`
	Error         string     `gorm:"type:text"`
	CreatedAt     time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Audit struct {
	ID      int64             `gorm:"type:bigserial;primaryKey"`
	Actor   string            `gorm:"type:text;not null"`
	Action  string            `gorm:"type:text;not null"`
	Obj     string            `gorm:"type:text"`
	Details datatypes.JSONMap `gorm:"type:jsonb"`
	At      time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (Audit) TableName() string { return "audit" }

func openTx(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&User{},
		&Session{},
		&Equipment{},
		&Reading{},
		&Alert{},
		&Maintenance{},
		&Report{},
		&Upload{},
		&Audit{},
	); err != nil {
		return err
	}

	// At most one active alert per machine.
	return gormDB.WithContext(ctx).Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_active_equipment ON alerts (equipment_id) WHERE status = 'active'`,
	).Error
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&Audit{},
		&Upload{},
		&Report{},
		&Maintenance{},
		&Alert{},
		&Reading{},
		&Equipment{},
		&Session{},
		&User{},
	)
}
