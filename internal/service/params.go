package service

import "time"

// DeviceParams is the input of the setup flow.
type DeviceParams struct {
	Host        string // IP address or host name, optionally with port
	IntervalSec int    // 0 means the configured default
}

// DeviceUpdate changes the options of a configured device.
type DeviceUpdate struct {
	IntervalSec int
}

// LogFilter supports history filtering by time range, type and device.
type LogFilter struct {
	From     time.Time // inclusive; zero means no lower bound
	To       time.Time // inclusive; zero means no upper bound
	Type     string    // "", "SETUP", "SETUP_FAILED", "UPDATE_FAILED", "REAUTH_REQUIRED", "RECOVERED", "RELOADED", "REMOVED"
	DeviceID string
}
