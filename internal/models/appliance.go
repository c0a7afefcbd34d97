package models

import "time"

// Appliance states. "data" is only ever used on telemetry events.
const (
	StatusOn   = "on"
	StatusOff  = "off"
	StatusData = "data"
)

const DefaultDeviceType = "generic"

// Appliance is a controllable device that belongs to exactly one home.
type Appliance struct {
	ID           int64          `json:"id"`
	HomeID       int64          `json:"home_id"`
	Name         string         `json:"name"`
	DeviceType   string         `json:"device_type"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Status       string         `json:"status"`                   // on | off
	PowerUsage   float64        `json:"power_usage"`              // watts, last known
	LastTurnedOn *time.Time     `json:"last_turned_on,omitempty"` // set while on
	TotalUsageMs int64          `json:"total_usage_ms"`           // closed sessions only
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsOn reports whether the appliance is currently switched on.
func (a Appliance) IsOn() bool { return a.Status == StatusOn }

// OpenSessionMs is the elapsed time of the current on-session at now.
// It is zero when the appliance is off or the session start is unknown.
func (a Appliance) OpenSessionMs(now time.Time) int64 {
	if !a.IsOn() || a.LastTurnedOn == nil {
		return 0
	}
	d := now.Sub(*a.LastTurnedOn)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}
