package service

import "time"

type ToggleInput struct {
	ApplianceID int64
	Status      string   // "on" | "off" | "" (flip)
	PowerUsage  *float64 // watts; nil keeps the last known value
}

type RegisterApplianceInput struct {
	HomeID     int64
	Name       string
	DeviceType string
	Metadata   map[string]any
	PowerUsage *float64
}

type UpdateApplianceInput struct {
	Name       *string
	DeviceType *string
	Metadata   map[string]any
}

type CreateScheduleInput struct {
	ApplianceID    int64
	Action         string
	CronExpression string
	Timezone       string // IANA name; empty means UTC
	IsActive       *bool  // nil means active
}

// UpdateScheduleInput holds optional edits; nil fields are left unchanged.
type UpdateScheduleInput struct {
	Action         *string
	CronExpression *string
	Timezone       *string
	IsActive       *bool
}

type AddMemberInput struct {
	UserID   int64
	Username string // used when UserID is zero
	Role     string
}

// LogFilter supports history filtering by appliance, time range and status.
type LogFilter struct {
	ApplianceID int64     // zero means every visible appliance
	From        time.Time // inclusive; zero means no lower bound
	To          time.Time // inclusive; zero means no upper bound
	Status      string    // "", "on", "off", "data"
	Limit       int
}

// TickReport summarizes one scheduler tick.
type TickReport struct {
	Minute time.Time `json:"minute"`
	Due    int       `json:"due"`
	Fired  int       `json:"fired"`
	Failed int       `json:"failed"`
}

// ProvisionedKey is returned once; only its hash is stored.
type ProvisionedKey struct {
	ApplianceID int64  `json:"appliance_id"`
	Key         string `json:"device_key"`
}
