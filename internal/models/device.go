package models

import "time"

// Device is a configured Fire+ panel (one config entry).
type Device struct {
	ID          string    `json:"id"`
	UniqueID    string    `json:"unique_id"` // slug of the host; rejects duplicates
	Title       string    `json:"title"`
	Host        string    `json:"host"`
	IntervalSec int       `json:"interval_sec"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Interval returns the poll interval as a duration.
func (d Device) Interval() time.Duration {
	return time.Duration(d.IntervalSec) * time.Second
}

// Runtime states of a configured device.
const (
	DeviceLoaded         = "loaded"
	DeviceSetupRetry     = "setup_retry"
	DeviceReauthRequired = "reauth_required"
	DeviceNotLoaded      = "not_loaded"
)

// DeviceStatus combines a config entry with its runtime state.
type DeviceStatus struct {
	Device
	State               string    `json:"state"` // loaded | setup_retry | reauth_required | not_loaded
	Available           bool      `json:"available"`
	LastUpdated         time.Time `json:"last_updated,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}
