package models

import "time"

// Event sources.
const (
	SourceUser      = "user"
	SourceScheduler = "scheduler"
	SourceDevice    = "device"
)

// ApplianceEvent is one append-only history row.
type ApplianceEvent struct {
	ID          int64     `json:"id"`
	ApplianceID int64     `json:"appliance_id"`
	UserID      *int64    `json:"user_id,omitempty"` // nil for scheduler and device
	Status      string    `json:"status"`            // on | off | data
	PowerUsage  float64   `json:"power_usage"`
	Source      string    `json:"source"`
	ScheduleID  *int64    `json:"schedule_id,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// DailyUsage is one row of the per-day analytics aggregate.
type DailyUsage struct {
	Day        string  `json:"day"` // YYYY-MM-DD (UTC)
	TotalPower float64 `json:"total_power"`
	OnEvents   int     `json:"on_events"`
	OffEvents  int     `json:"off_events"`
}

// ApplianceStats summarizes usage of a single appliance.
type ApplianceStats struct {
	ApplianceID   int64  `json:"appliance_id"`
	Status        string `json:"status"`
	TotalUsageMs  int64  `json:"total_usage_ms"`
	OpenSessionMs int64  `json:"open_session_ms"`
	OnEvents      int    `json:"on_events"`
	OffEvents     int    `json:"off_events"`
	Days          int    `json:"days"`
}
