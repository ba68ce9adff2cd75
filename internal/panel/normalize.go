package panel

import (
	"strings"

	"fireplus/internal/models"
)

// Burn phase labels.
const (
	BurnPhaseEmberHold = "Gluthaltung"
	BurnPhaseBurnDown  = "Abbrand"
)

// Operating mode codes as sent by the panel.
var operatingModes = map[string]string{
	"2": "Eco",
	"3": "Normal",
	"4": "Power",
}

// Status LED descriptions, keyed lower-case and trimmed.
var statusLabels = map[string]string{
	"aus":            "Aus",
	"gruen":          "Regelbetrieb",
	"gruen blinkend": "Anheizen",
	"gelb":           "Nachlegen",
	"gelb blinkend":  "Tür offen",
	"rot":            "Störung",
	"rot blinkend":   "Überhitzung",
	"weiss":          "Bereit",
}

// Normalize replaces the coded status, operating mode and burn phase values
// with readable labels. Every other field is returned unchanged.
// It expects a freshly decoded record: labels are not codes and are not
// mapped back onto themselves.
func Normalize(rec models.StatusRecord) models.StatusRecord {
	return rec.
		With(models.FieldStatus, StatusLabel(rec.Get(models.FieldStatus))).
		With(models.FieldOperatingMode, OperatingModeLabel(rec.Get(models.FieldOperatingMode))).
		With(models.FieldBurnPhase, BurnPhaseLabel(rec.Get(models.FieldBurnPhase)))
}

// BurnPhaseLabel maps the burn phase flag: "0" is ember holding, anything
// else is an active burn-down.
func BurnPhaseLabel(v string) string {
	if v == "0" {
		return BurnPhaseEmberHold
	}
	return BurnPhaseBurnDown
}

// OperatingModeLabel maps known mode codes; unknown codes pass through.
func OperatingModeLabel(v string) string {
	if label, ok := operatingModes[v]; ok {
		return label
	}
	return v
}

// StatusLabel maps the status LED description case- and whitespace-insensitively.
// Unknown values are returned trimmed and lower-cased, the form stored by
// existing installations.
func StatusLabel(v string) string {
	key := strings.ToLower(strings.TrimSpace(v))
	if label, ok := statusLabels[key]; ok {
		return label
	}
	return key
}
