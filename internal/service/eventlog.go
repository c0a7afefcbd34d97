package service

import (
	"context"
	"strings"
	"time"

	"smarthome/internal/models"
	"smarthome/internal/repository"
)

const (
	defaultLogLimit    = 500
	maxLogLimit        = 1000
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

type EventLogService struct {
	events repository.EventRepo
	homes  repository.HomeRepo
}

func NewEventLogService(events repository.EventRepo, homes repository.HomeRepo) *EventLogService {
	return &EventLogService{events: events, homes: homes}
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (LogFilter, error) {
	f.From = normalizeToUTC(f.From)
	f.To = normalizeToUTC(f.To)
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return LogFilter{}, validationf("invalid time range: from must be <= to")
	}
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	switch f.Status {
	case "", models.StatusOn, models.StatusOff, models.StatusData:
	default:
		return LogFilter{}, validationf("unknown status %q", f.Status)
	}
	f.Limit = clampLimit(f.Limit, defaultLogLimit, maxLogLimit)
	return f, nil
}

// scope narrows the actor's visible appliances to one when requested.
func (s *EventLogService) scope(ctx context.Context, actorID, applianceID int64) ([]int64, error) {
	visible, err := s.homes.VisibleApplianceIDs(ctx, actorID)
	if err != nil {
		return nil, storeErr("visible appliances", err)
	}
	if applianceID == 0 {
		return visible, nil
	}
	for _, id := range visible {
		if id == applianceID {
			return []int64{id}, nil
		}
	}
	return nil, notFoundf("appliance")
}

// List returns history of the appliances the actor can see, oldest first.
func (s *EventLogService) List(ctx context.Context, actorID int64, f LogFilter) ([]models.ApplianceEvent, error) {
	f, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	ids, err := s.scope(ctx, actorID, f.ApplianceID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.List(ctx, repository.EventQuery{
		ApplianceIDs: ids,
		From:         f.From,
		To:           f.To,
		Status:       f.Status,
		Limit:        f.Limit,
	})
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return events, nil
}

// Recent is the notifications feed: newest events first.
func (s *EventLogService) Recent(ctx context.Context, actorID int64, limit int) ([]models.ApplianceEvent, error) {
	ids, err := s.scope(ctx, actorID, 0)
	if err != nil {
		return nil, err
	}
	events, err := s.events.List(ctx, repository.EventQuery{
		ApplianceIDs: ids,
		Limit:        clampLimit(limit, defaultRecentLimit, maxRecentLimit),
		Newest:       true,
	})
	if err != nil {
		return nil, storeErr("recent events", err)
	}
	return events, nil
}
