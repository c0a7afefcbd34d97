package service

import (
	"context"
	"fmt"
	"time"

	"smarthome/internal/clock"
	"smarthome/internal/models"
	"smarthome/internal/repository"

	"github.com/patrickmn/go-cache"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

// AnalyticsService computes usage aggregates from the event log. Nothing is
// stored; results are cached briefly per actor.
type AnalyticsService struct {
	events repository.EventRepo
	homes  repository.HomeRepo
	access *accessResolver
	clock  clock.Clock
	cache  *cache.Cache // nil disables caching
	ttl    time.Duration
}

func NewAnalyticsService(repos *repository.Repository, clk clock.Clock, ttl time.Duration) *AnalyticsService {
	s := &AnalyticsService{
		events: repos.Events,
		homes:  repos.Homes,
		access: newAccessResolver(repos),
		clock:  clk,
		ttl:    ttl,
	}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

func normalizeDays(days int) (int, error) {
	if days == 0 {
		return defaultAnalyticsDays, nil
	}
	if days < 0 || days > maxAnalyticsDays {
		return 0, validationf("days must be between 1 and %d", maxAnalyticsDays)
	}
	return days, nil
}

// Daily returns per-day totals over the appliances the actor can see.
func (s *AnalyticsService) Daily(ctx context.Context, actorID int64, days int) ([]models.DailyUsage, error) {
	days, err := normalizeDays(days)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("daily:%d:%d", actorID, days)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.([]models.DailyUsage), nil
		}
	}

	ids, err := s.homes.VisibleApplianceIDs(ctx, actorID)
	if err != nil {
		return nil, storeErr("visible appliances", err)
	}
	out, err := s.events.DailyUsage(ctx, ids, since(s.clock.Now(), days))
	if err != nil {
		return nil, storeErr("daily usage", err)
	}
	if s.cache != nil {
		s.cache.Set(key, out, s.ttl)
	}
	return out, nil
}

// ApplianceStats reports accumulated usage, the open session and transition counts.
func (s *AnalyticsService) ApplianceStats(ctx context.Context, actorID, applianceID int64, days int) (models.ApplianceStats, error) {
	days, err := normalizeDays(days)
	if err != nil {
		return models.ApplianceStats{}, err
	}
	a, _, err := s.access.require(ctx, actorID, applianceID, CapView)
	if err != nil {
		return models.ApplianceStats{}, err
	}
	now := s.clock.Now()
	on, off, err := s.events.CountTransitions(ctx, applianceID, since(now, days))
	if err != nil {
		return models.ApplianceStats{}, storeErr("appliance stats", err)
	}
	return models.ApplianceStats{
		ApplianceID:   a.ID,
		Status:        a.Status,
		TotalUsageMs:  a.TotalUsageMs,
		OpenSessionMs: a.OpenSessionMs(now),
		OnEvents:      on,
		OffEvents:     off,
		Days:          days,
	}, nil
}
