package models

import "time"

// SensorDescription binds a status field to its presentation.
type SensorDescription struct {
	Field Field
	Name  string
	Unit  string
	Icon  string
	// Numeric marks fields whose raw value is a number (exported as a gauge).
	Numeric bool
}

// Key is the sensor key, shared with the field key.
func (d SensorDescription) Key() string { return d.Field.Key() }

// Sensors lists every exposed sensor, one per field, in wire order.
// Names follow the labels printed on the Fire+ panel.
var Sensors = []SensorDescription{
	{Field: FieldOperation, Name: "Betrieb", Icon: "mdi:power"},
	{Field: FieldOperatingMode, Name: "Betriebsart", Icon: "mdi:tune-variant"},
	{Field: FieldPower, Name: "Leistung", Unit: "%", Icon: "mdi:flash", Numeric: true},
	{Field: FieldBrightness, Name: "Helligkeit", Unit: "%", Icon: "mdi:brightness-6", Numeric: true},
	{Field: FieldTemperature, Name: "Brennraumtemperatur", Unit: "°C", Icon: "mdi:fire", Numeric: true},
	{Field: FieldAirSlide, Name: "Luftschieber", Unit: "%", Icon: "mdi:air-filter", Numeric: true},
	{Field: FieldFineDraft, Name: "Feinzug", Unit: "Pa", Icon: "mdi:home-roof", Numeric: true},
	{Field: FieldStatus, Name: "Betriebsstatus", Icon: "mdi:fireplace"},
	{Field: FieldErrors, Name: "Fehler", Icon: "mdi:alert-circle-outline"},
	{Field: FieldLED, Name: "LED", Icon: "mdi:led-on"},
	{Field: FieldBurnPhase, Name: "Abbrandphase", Icon: "mdi:campfire"},
	{Field: FieldVolume, Name: "Lautstärke", Unit: "%", Icon: "mdi:volume-high", Numeric: true},
}

// SensorByKey looks up a description by its key.
func SensorByKey(key string) (SensorDescription, bool) {
	f, ok := ParseField(key)
	if !ok {
		return SensorDescription{}, false
	}
	for _, d := range Sensors {
		if d.Field == f {
			return d, true
		}
	}
	return SensorDescription{}, false
}

// Sensor is a read-only view of one field of a device's latest record.
type Sensor struct {
	Key         string    `json:"key"`
	UniqueID    string    `json:"unique_id"`
	Name        string    `json:"name"`
	Unit        string    `json:"unit,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Value       string    `json:"value"`
	Available   bool      `json:"available"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	Attribution string    `json:"attribution,omitempty"`
}
