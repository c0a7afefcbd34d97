package models

import "time"

const DefaultTimezone = "UTC"

// Schedule drives an appliance to Action whenever CronExpression matches
// the wall clock in Timezone.
type Schedule struct {
	ID             int64      `json:"id"`
	ApplianceID    int64      `json:"appliance_id"`
	UserID         int64      `json:"user_id"`
	Action         string     `json:"action"` // on | off
	CronExpression string     `json:"cron_expression"`
	Timezone       string     `json:"timezone"`
	IsActive       bool       `json:"is_active"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"` // minute of the last fire
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RanAt reports whether the schedule already fired in the given minute.
func (s Schedule) RanAt(minute time.Time) bool {
	return s.LastRunAt != nil && s.LastRunAt.Equal(minute)
}
