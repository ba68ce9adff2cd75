package mqtt

import (
	"fireplus"
	"fireplus/internal/models"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// sensorConfig is the Home Assistant discovery payload of one sensor.
type sensorConfig struct {
	Name              string       `json:"name"`
	UniqueID          string       `json:"unique_id"`
	ObjectID          string       `json:"object_id,omitempty"`
	StateTopic        string       `json:"state_topic"`
	AvailabilityTopic string       `json:"availability_topic"`
	UnitOfMeasurement string       `json:"unit_of_measurement,omitempty"`
	StateClass        string       `json:"state_class,omitempty"`
	Icon              string       `json:"icon,omitempty"`
	Device            deviceConfig `json:"device"`
	Origin            originConfig `json:"origin"`
}

type deviceConfig struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	ConfigURL    string   `json:"configuration_url,omitempty"`
}

type originConfig struct {
	Name            string `json:"name"`
	SoftwareVersion string `json:"sw_version"`
}

func (p *Publisher) sensorConfig(dev models.Device, desc models.SensorDescription) sensorConfig {
	cfg := sensorConfig{
		Name:              desc.Name,
		UniqueID:          dev.UniqueID + "_" + desc.Key(),
		ObjectID:          fireplus.Domain + "_" + dev.UniqueID + "_" + desc.Key(),
		StateTopic:        p.stateTopic(dev, desc.Key()),
		AvailabilityTopic: p.availabilityTopic(dev),
		UnitOfMeasurement: desc.Unit,
		Icon:              desc.Icon,
		Device: deviceConfig{
			Identifiers:  []string{fireplus.Domain + "_" + dev.UniqueID},
			Name:         dev.Title,
			Manufacturer: fireplus.Manufacturer,
			Model:        fireplus.Model,
			ConfigURL:    "http://" + dev.Host,
		},
		Origin: originConfig{Name: fireplus.Domain, SoftwareVersion: fireplus.Version},
	}
	if desc.Numeric {
		cfg.StateClass = "measurement"
	}
	return cfg
}

func (p *Publisher) configTopic(dev models.Device, key string) string {
	return p.discoveryPrefix + "/sensor/" + dev.UniqueID + "/" + key + "/config"
}

func (p *Publisher) stateTopic(dev models.Device, key string) string {
	return p.topicPrefix + "/" + dev.UniqueID + "/" + key
}

func (p *Publisher) availabilityTopic(dev models.Device) string {
	return p.topicPrefix + "/" + dev.UniqueID + "/availability"
}
