package models

import (
	"encoding/json"
	"fmt"
)

// Field identifies one value line of the panel status dump.
// The panel sends no labels, so the declaration order below is the wire order.
type Field int

const (
	FieldOperation Field = iota
	FieldOperatingMode
	FieldPower
	FieldBrightness
	FieldTemperature
	FieldAirSlide
	FieldFineDraft
	FieldStatus
	FieldErrors
	FieldLED
	FieldBurnPhase
	FieldVolume

	fieldCount
)

// FieldCount is the number of data lines a well-formed status dump carries.
const FieldCount = int(fieldCount)

var fieldKeys = [FieldCount]string{
	FieldOperation:     "operation",
	FieldOperatingMode: "operating_mode",
	FieldPower:         "power",
	FieldBrightness:    "brightness",
	FieldTemperature:   "temperature",
	FieldAirSlide:      "air_slide",
	FieldFineDraft:     "fine_draft",
	FieldStatus:        "status",
	FieldErrors:        "errors",
	FieldLED:           "led",
	FieldBurnPhase:     "burn_phase",
	FieldVolume:        "volume",
}

// Key returns the stable snake_case identifier of the field.
func (f Field) Key() string {
	if !f.Valid() {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldKeys[f]
}

func (f Field) String() string { return f.Key() }

// Valid reports whether f is one of the known fields.
func (f Field) Valid() bool {
	return f >= 0 && f < fieldCount
}

// Fields returns all fields in wire order.
func Fields() []Field {
	out := make([]Field, FieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// ParseField resolves a key produced by Field.Key.
func ParseField(key string) (Field, bool) {
	for i, k := range fieldKeys {
		if k == key {
			return Field(i), true
		}
	}
	return 0, false
}

// StatusRecord holds one decoded status dump, indexed by Field.
// It is an array so that copies never share storage: a record handed to a
// reader cannot be changed by a later poll.
type StatusRecord [FieldCount]string

// Get returns the value of field f, or "" for an unknown field.
func (r StatusRecord) Get(f Field) string {
	if !f.Valid() {
		return ""
	}
	return r[f]
}

// With returns a copy of r with field f set to v.
func (r StatusRecord) With(f Field, v string) StatusRecord {
	if f.Valid() {
		r[f] = v
	}
	return r
}

// Map returns the record keyed by field key.
func (r StatusRecord) Map() map[string]string {
	m := make(map[string]string, FieldCount)
	for i, v := range r {
		m[fieldKeys[i]] = v
	}
	return m
}

func (r StatusRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}
