package repository

import (
	"context"
	"database/sql"
	"time"

	"fireplus/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// DeviceRepo stores configured panels.
type DeviceRepo interface {
	Create(ctx context.Context, d models.Device) error
	Update(ctx context.Context, d models.Device) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Device, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error)
	List(ctx context.Context) ([]models.Device, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.DeviceEvent) error
	List(ctx context.Context, f EventFilter) ([]models.DeviceEvent, error)
}

// EventFilter narrows List; zero fields are ignored.
type EventFilter struct {
	From     time.Time
	To       time.Time
	Type     string
	DeviceID string
}

type Repository struct {
	DeviceRepo DeviceRepo
	EventRepo  EventRepo
	Auth       Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		DeviceRepo: NewDeviceSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Auth:       NewUserSQLite(db),
	}
}
