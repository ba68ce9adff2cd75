package models

import "time"

// Event types recorded for a device.
const (
	EventSetup          = "SETUP"
	EventSetupFailed    = "SETUP_FAILED"
	EventUpdateFailed   = "UPDATE_FAILED"
	EventReauthRequired = "REAUTH_REQUIRED"
	EventRecovered      = "RECOVERED"
	EventReloaded       = "RELOADED"
	EventRemoved        = "REMOVED"
)

// DeviceEvent is a single log entry.
type DeviceEvent struct {
	EventID     string    `json:"event_id"`
	DeviceID    string    `json:"device_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}

// EventTypes lists every recorded event type.
var EventTypes = []string{
	EventSetup,
	EventSetupFailed,
	EventUpdateFailed,
	EventReauthRequired,
	EventRecovered,
	EventReloaded,
	EventRemoved,
}

// IsEventType reports whether s is one of EventTypes.
func IsEventType(s string) bool {
	for _, t := range EventTypes {
		if t == s {
			return true
		}
	}
	return false
}
