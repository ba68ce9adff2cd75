package service

import (
	"context"
	"errors"
	"strings"

	"fireplus"
	"fireplus/internal/models"
)

var ErrSensorNotFound = errors.New("sensor not found")

// SnapshotSource exposes device caches to readers.
type SnapshotSource interface {
	Snapshot(id string) (DeviceSnapshot, bool)
	OnUpdate(fn func(DeviceSnapshot)) func()
}

// MonitoringService renders cached records as sensors. It never fetches.
type MonitoringService struct {
	devices SnapshotSource
}

func NewMonitoringService(devices SnapshotSource) *MonitoringService {
	return &MonitoringService{devices: devices}
}

// Sensors returns every sensor of a device in wire order.
func (s *MonitoringService) Sensors(_ context.Context, deviceID string) ([]models.Sensor, error) {
	ds, ok := s.devices.Snapshot(deviceID)
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return RenderSensors(ds), nil
}

// Sensor returns one sensor of a device by key.
func (s *MonitoringService) Sensor(_ context.Context, deviceID, key string) (models.Sensor, error) {
	desc, ok := models.SensorByKey(strings.ToLower(strings.TrimSpace(key)))
	if !ok {
		return models.Sensor{}, ErrSensorNotFound
	}
	ds, ok := s.devices.Snapshot(deviceID)
	if !ok {
		return models.Sensor{}, ErrDeviceNotFound
	}
	return renderSensor(ds, desc), nil
}

// Subscribe calls fn with fresh sensors after every refresh of the device.
func (s *MonitoringService) Subscribe(deviceID string, fn func([]models.Sensor)) func() {
	return s.devices.OnUpdate(func(ds DeviceSnapshot) {
		if ds.Device.ID != deviceID {
			return
		}
		fn(RenderSensors(ds))
	})
}

// RenderSensors applies the sensor table to a snapshot.
func RenderSensors(ds DeviceSnapshot) []models.Sensor {
	out := make([]models.Sensor, 0, len(models.Sensors))
	for _, desc := range models.Sensors {
		out = append(out, renderSensor(ds, desc))
	}
	return out
}

func renderSensor(ds DeviceSnapshot, desc models.SensorDescription) models.Sensor {
	sn := models.Sensor{
		Key:         desc.Key(),
		UniqueID:    ds.Device.UniqueID + "_" + desc.Key(),
		Name:        desc.Name,
		Unit:        desc.Unit,
		Icon:        desc.Icon,
		Available:   ds.Snapshot.Available(),
		UpdatedAt:   ds.Snapshot.LastUpdated,
		Attribution: fireplus.Attribution,
	}
	if ds.Snapshot.HasRecord {
		sn.Value = ds.Snapshot.Record.Get(desc.Field)
	}
	return sn
}
