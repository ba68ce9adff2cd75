package service

import (
	"context"
	"time"

	"fireplus/internal/models"
	"fireplus/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Devices exposes the setup flow and the lifecycle of configured panels.
type Devices interface {
	AddDevice(ctx context.Context, p DeviceParams) (models.DeviceStatus, error)
	UpdateDevice(ctx context.Context, id string, u DeviceUpdate) (models.DeviceStatus, error)
	RemoveDevice(ctx context.Context, id string) error
	ReloadDevice(ctx context.Context, id string) (models.DeviceStatus, error)
	ListDevices(ctx context.Context) ([]models.DeviceStatus, error)
	GetDevice(ctx context.Context, id string) (models.DeviceStatus, error)
}

// Monitoring exposes read-only sensors rendered from the poll cache.
type Monitoring interface {
	Sensors(ctx context.Context, deviceID string) ([]models.Sensor, error)
	Sensor(ctx context.Context, deviceID, key string) (models.Sensor, error)
	Subscribe(deviceID string, fn func([]models.Sensor)) func()
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.DeviceEvent, error)
}

// Service aggregates all sub-services.
type Service struct {
	Devices
	Monitoring
	EventLog
	Authorization
}

// AuthConfig carries the token settings.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// NewService wires the repository layer and the device registry into the
// sub-services. The registry is built by the caller so it can be started
// and closed with the process.
func NewService(repos *repository.Repository, devices *DeviceService, auth AuthConfig) *Service {
	return &Service{
		Devices:       devices,
		Monitoring:    NewMonitoringService(devices),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, auth.SigningKey, auth.TokenTTL),
	}
}
