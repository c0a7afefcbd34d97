package models

import "time"

// Stream message kinds.
const (
	KindState     = "state"
	KindTelemetry = "telemetry"
)

// StreamMessage is what live subscribers receive after a committed change.
type StreamMessage struct {
	Kind       string         `json:"kind"`
	HomeID     int64          `json:"home_id"`
	Appliance  *Appliance     `json:"appliance,omitempty"`
	Event      ApplianceEvent `json:"event"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// ApplianceID is the appliance the message is about.
func (m StreamMessage) ApplianceID() int64 {
	if m.Appliance != nil {
		return m.Appliance.ID
	}
	return m.Event.ApplianceID
}
