package service

import (
	"math"
	"strings"
	"time"

	"smarthome/internal/models"
)

// transitionRequest is one requested state change.
type transitionRequest struct {
	Target     string   // on | off; empty flips the current state
	Power      *float64 // nil keeps the last known wattage
	Source     string
	UserID     *int64
	ScheduleID *int64
	Now        time.Time
}

// applyTransition is the appliance state machine. It never fails: a row that
// claims to be on without a usable session start is repaired and reported
// through anomaly so the caller can log it.
//
//	off -> on   session opens at now
//	on  -> off  elapsed session folded into the total, session cleared
//	on  -> on   session start kept (no reset)
//	off -> off  nothing to account
func applyTransition(cur models.Appliance, req transitionRequest) (next models.Appliance, ev models.ApplianceEvent, anomaly string) {
	now := req.Now.UTC()
	wasOn := cur.IsOn()

	target := req.Target
	if target == "" {
		target = models.StatusOn
		if wasOn {
			target = models.StatusOff
		}
	}

	next = cur
	next.UpdatedAt = now
	if req.Power != nil {
		next.PowerUsage = math.Max(0, *req.Power)
	}

	switch {
	case !wasOn && target == models.StatusOn:
		next.Status = models.StatusOn
		next.LastTurnedOn = &now

	case wasOn && target == models.StatusOff:
		var elapsed int64
		switch {
		case cur.LastTurnedOn == nil:
			anomaly = "on without last_turned_on"
		case cur.LastTurnedOn.After(now):
			anomaly = "last_turned_on in the future"
		default:
			elapsed = now.Sub(*cur.LastTurnedOn).Milliseconds()
		}
		next.Status = models.StatusOff
		next.TotalUsageMs = cur.TotalUsageMs + elapsed
		next.LastTurnedOn = nil

	case wasOn:
		if cur.LastTurnedOn == nil {
			anomaly = "on without last_turned_on"
			next.LastTurnedOn = &now
		}

	default:
		next.Status = models.StatusOff
		next.LastTurnedOn = nil
	}

	ev = models.ApplianceEvent{
		ApplianceID: cur.ID,
		UserID:      req.UserID,
		Status:      next.Status,
		PowerUsage:  next.PowerUsage,
		Source:      req.Source,
		ScheduleID:  req.ScheduleID,
		RecordedAt:  now,
	}
	return next, ev, anomaly
}

// normalizeStatus accepts "on"/"off" in any case; empty means "flip".
func normalizeStatus(s string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "":
		return "", nil
	case models.StatusOn, models.StatusOff:
		return v, nil
	default:
		return "", validationf("status must be %q or %q, got %q", models.StatusOn, models.StatusOff, s)
	}
}

// normalizeAction is normalizeStatus without the flip option.
func normalizeAction(s string) (string, error) {
	v, err := normalizeStatus(s)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", validationf("action is required")
	}
	return v, nil
}

func validatePower(p *float64) error {
	if p == nil {
		return nil
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
		return validationf("power_usage must be a finite number >= 0")
	}
	return nil
}
