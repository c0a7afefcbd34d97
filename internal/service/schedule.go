package service

import (
	"context"
	"strings"
	"time"

	"smarthome/internal/clock"
	"smarthome/internal/cron"
	"smarthome/internal/logger"
	"smarthome/internal/models"
	"smarthome/internal/repository"
)

type ScheduleService struct {
	schedules repository.ScheduleRepo
	homes     repository.HomeRepo
	access    *accessResolver
	clock     clock.Clock
	log       *logger.Logger
}

func NewScheduleService(repos *repository.Repository, clk clock.Clock, log *logger.Logger) *ScheduleService {
	return &ScheduleService{
		schedules: repos.Schedules,
		homes:     repos.Homes,
		access:    newAccessResolver(repos),
		clock:     clk,
		log:       log,
	}
}

// compiled is a schedule whose expression and timezone have been checked.
type compiled struct {
	expr cron.Expression
	loc  *time.Location
}

func compile(expr, tz string) (compiled, error) {
	e, err := cron.Parse(expr)
	if err != nil {
		return compiled{}, validationf("%v", err)
	}
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = models.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return compiled{}, validationf("unknown timezone %q", tz)
	}
	return compiled{expr: e, loc: loc}, nil
}

// nextRun is the next fire strictly after now, or nil when the schedule is
// inactive or can never fire.
func (c compiled) nextRun(now time.Time, active bool) *time.Time {
	if !active {
		return nil
	}
	next, ok := c.expr.Next(now.In(c.loc))
	if !ok {
		return nil
	}
	next = next.UTC()
	return &next
}

// Create validates everything before touching the store, so a malformed
// expression is never persisted.
func (s *ScheduleService) Create(ctx context.Context, actorID int64, in CreateScheduleInput) (models.Schedule, error) {
	action, err := normalizeAction(in.Action)
	if err != nil {
		return models.Schedule{}, err
	}
	c, err := compile(in.CronExpression, in.Timezone)
	if err != nil {
		return models.Schedule{}, err
	}
	if _, _, err := s.access.require(ctx, actorID, in.ApplianceID, CapSchedule); err != nil {
		return models.Schedule{}, err
	}

	active := in.IsActive == nil || *in.IsActive
	now := s.clock.Now()
	sch := models.Schedule{
		ApplianceID:    in.ApplianceID,
		UserID:         actorID,
		Action:         action,
		CronExpression: c.expr.String(),
		Timezone:       c.loc.String(),
		IsActive:       active,
		NextRunAt:      c.nextRun(now, active),
		CreatedAt:      now,
	}
	created, err := s.schedules.Create(ctx, sch)
	if err != nil {
		return models.Schedule{}, storeErr("create schedule", err)
	}
	if s.log != nil {
		s.log.Infow("schedule_created", "schedule_id", created.ID, "appliance_id", created.ApplianceID,
			"cron", created.CronExpression, "timezone", created.Timezone)
	}
	return created, nil
}

// editable loads a schedule the actor may change: its creator while they
// still hold the schedule capability, or an owner/admin of the home.
func (s *ScheduleService) editable(ctx context.Context, actorID, scheduleID int64) (models.Schedule, error) {
	sch, err := s.schedules.Get(ctx, scheduleID)
	if err != nil {
		return models.Schedule{}, storeErr("schedule", err)
	}
	_, acc, err := s.access.require(ctx, actorID, sch.ApplianceID, CapView)
	if err != nil {
		return models.Schedule{}, err
	}
	if acc.Member().IsManager() {
		return sch, nil
	}
	if sch.UserID != actorID {
		return models.Schedule{}, deniedf("schedule %d belongs to another user", scheduleID)
	}
	if !acc.Allows(CapSchedule) {
		return models.Schedule{}, deniedf("missing %s capability on appliance %d", CapSchedule, sch.ApplianceID)
	}
	return sch, nil
}

func (s *ScheduleService) Update(ctx context.Context, actorID, scheduleID int64, in UpdateScheduleInput) (models.Schedule, error) {
	sch, err := s.editable(ctx, actorID, scheduleID)
	if err != nil {
		return models.Schedule{}, err
	}
	if in.Action != nil {
		if sch.Action, err = normalizeAction(*in.Action); err != nil {
			return models.Schedule{}, err
		}
	}
	if in.CronExpression != nil {
		sch.CronExpression = *in.CronExpression
	}
	if in.Timezone != nil {
		sch.Timezone = *in.Timezone
	}
	if in.IsActive != nil {
		sch.IsActive = *in.IsActive
	}
	c, err := compile(sch.CronExpression, sch.Timezone)
	if err != nil {
		return models.Schedule{}, err
	}
	now := s.clock.Now()
	sch.CronExpression = c.expr.String()
	sch.Timezone = c.loc.String()
	sch.NextRunAt = c.nextRun(now, sch.IsActive)
	sch.UpdatedAt = now

	if err := s.schedules.Update(ctx, sch); err != nil {
		return models.Schedule{}, storeErr("update schedule", err)
	}
	return sch, nil
}

func (s *ScheduleService) Delete(ctx context.Context, actorID, scheduleID int64) error {
	if _, err := s.editable(ctx, actorID, scheduleID); err != nil {
		return err
	}
	if err := s.schedules.Delete(ctx, scheduleID); err != nil {
		return storeErr("delete schedule", err)
	}
	return nil
}

func (s *ScheduleService) ListForAppliance(ctx context.Context, actorID, applianceID int64) ([]models.Schedule, error) {
	if _, _, err := s.access.require(ctx, actorID, applianceID, CapView); err != nil {
		return nil, err
	}
	out, err := s.schedules.ListByAppliance(ctx, applianceID)
	if err != nil {
		return nil, storeErr("list schedules", err)
	}
	return out, nil
}

// ListActive returns active schedules on appliances the actor can see.
func (s *ScheduleService) ListActive(ctx context.Context, actorID int64) ([]models.Schedule, error) {
	all, err := s.schedules.ListActive(ctx)
	if err != nil {
		return nil, storeErr("list schedules", err)
	}
	visible, err := s.homes.VisibleApplianceIDs(ctx, actorID)
	if err != nil {
		return nil, storeErr("list schedules", err)
	}
	allowed := make(map[int64]struct{}, len(visible))
	for _, id := range visible {
		allowed[id] = struct{}{}
	}
	out := make([]models.Schedule, 0, len(all))
	for _, sch := range all {
		if _, ok := allowed[sch.ApplianceID]; ok {
			out = append(out, sch)
		}
	}
	return out, nil
}

// ListDue returns the active schedules whose expression matches the minute
// containing now, in each schedule's own timezone. Schedules that already
// fired in that minute are excluded, and so are schedules that fired at the
// same local wall-clock minute, which on a DST fall-back day occurs twice.
// Rows that no longer compile are logged and skipped, never treated as due.
func (s *ScheduleService) ListDue(ctx context.Context, now time.Time) ([]models.Schedule, error) {
	all, err := s.schedules.ListActive(ctx)
	if err != nil {
		return nil, storeErr("list active schedules", err)
	}
	minute := now.UTC().Truncate(time.Minute)

	due := make([]models.Schedule, 0, len(all))
	for _, sch := range all {
		if sch.RanAt(minute) {
			continue
		}
		c, err := compile(sch.CronExpression, sch.Timezone)
		if err != nil {
			if s.log != nil {
				s.log.Errorw("schedule_invalid", "schedule_id", sch.ID, "err", err)
			}
			continue
		}
		local := minute.In(c.loc)
		if sch.LastRunAt != nil && sameWallMinute(sch.LastRunAt.In(c.loc), local) {
			continue
		}
		if c.expr.Matches(local) {
			due = append(due, sch)
		}
	}
	return due, nil
}

func sameWallMinute(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}

// NextRun recomputes when a stored schedule will fire after t.
func (s *ScheduleService) NextRun(sch models.Schedule, t time.Time) *time.Time {
	c, err := compile(sch.CronExpression, sch.Timezone)
	if err != nil {
		return nil
	}
	return c.nextRun(t, sch.IsActive)
}
