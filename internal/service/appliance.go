package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"smarthome/internal/clock"
	"smarthome/internal/logger"
	"smarthome/internal/models"
	"smarthome/internal/repository"
	"smarthome/internal/stream"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

type ApplianceService struct {
	appliances repository.ApplianceRepo
	events     repository.EventRepo
	homes      repository.HomeRepo
	access     *accessResolver
	notifier   stream.Notifier
	clock      clock.Clock
	locks      *keyedMutex
	log        *logger.Logger
}

func NewApplianceService(repos *repository.Repository, notifier stream.Notifier, clk clock.Clock, log *logger.Logger) *ApplianceService {
	return &ApplianceService{
		appliances: repos.Appliances,
		events:     repos.Events,
		homes:      repos.Homes,
		access:     newAccessResolver(repos),
		notifier:   notifier,
		clock:      clk,
		locks:      newKeyedMutex(),
		log:        log,
	}
}

// Toggle changes an appliance's state on behalf of a user. An omitted status
// flips the current one; an omitted power value keeps the last known one.
func (s *ApplianceService) Toggle(ctx context.Context, actorID int64, in ToggleInput) (models.Appliance, error) {
	target, err := normalizeStatus(in.Status)
	if err != nil {
		return models.Appliance{}, err
	}
	if err := validatePower(in.PowerUsage); err != nil {
		return models.Appliance{}, err
	}
	if _, _, err := s.access.require(ctx, actorID, in.ApplianceID, CapControl); err != nil {
		return models.Appliance{}, err
	}
	actor := actorID
	return s.transition(ctx, in.ApplianceID, transitionRequest{
		Target: target,
		Power:  in.PowerUsage,
		Source: models.SourceUser,
		UserID: &actor,
	})
}

// ApplyScheduled drives the schedule's appliance to its action as the system
// actor. The schedule's creator must still hold the schedule capability; a
// creator who left the home or lost the grant gets ErrPermissionDenied.
func (s *ApplianceService) ApplyScheduled(ctx context.Context, sch models.Schedule) (models.Appliance, error) {
	action, err := normalizeAction(sch.Action)
	if err != nil {
		return models.Appliance{}, err
	}
	if _, _, err := s.access.require(ctx, sch.UserID, sch.ApplianceID, CapSchedule); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermissionDenied) {
			return models.Appliance{}, deniedf("schedule %d: creator %d can no longer schedule appliance %d",
				sch.ID, sch.UserID, sch.ApplianceID)
		}
		return models.Appliance{}, err
	}
	id := sch.ID
	return s.transition(ctx, sch.ApplianceID, transitionRequest{
		Target:     action,
		Source:     models.SourceScheduler,
		ScheduleID: &id,
	})
}

// transition serializes changes per appliance; the row update and the event
// append commit together, and subscribers hear about it only after commit.
func (s *ApplianceService) transition(ctx context.Context, applianceID int64, req transitionRequest) (models.Appliance, error) {
	unlock := s.locks.Lock(applianceID)
	defer unlock()

	req.Now = s.clock.Now()
	var anomaly string
	next, ev, err := s.appliances.Transition(ctx, applianceID, func(cur models.Appliance) (models.Appliance, models.ApplianceEvent, error) {
		n, e, a := applyTransition(cur, req)
		anomaly = a
		return n, e, nil
	})
	if err != nil {
		return models.Appliance{}, storeErr("appliance", err)
	}
	if anomaly != "" && s.log != nil {
		s.log.Warnw("appliance_session_repaired", "appliance_id", applianceID, "reason", anomaly)
	}

	s.notifier.Publish(models.StreamMessage{
		Kind:       models.KindState,
		HomeID:     next.HomeID,
		Appliance:  &next,
		Event:      ev,
		OccurredAt: ev.RecordedAt,
	})
	if s.log != nil {
		s.log.Infow("appliance_transition",
			"appliance_id", applianceID, "status", next.Status, "source", ev.Source, "event_id", ev.ID)
	}
	return next, nil
}

// Register adds an appliance to a home. Only owners and admins may do this.
func (s *ApplianceService) Register(ctx context.Context, actorID int64, in RegisterApplianceInput) (models.Appliance, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Appliance{}, validationf("name is required")
	}
	if err := validatePower(in.PowerUsage); err != nil {
		return models.Appliance{}, err
	}
	if _, err := s.access.requireManager(ctx, actorID, in.HomeID); err != nil {
		return models.Appliance{}, err
	}

	a := models.Appliance{
		HomeID:     in.HomeID,
		Name:       name,
		DeviceType: strings.TrimSpace(in.DeviceType),
		Metadata:   in.Metadata,
		Status:     models.StatusOff,
		CreatedAt:  s.clock.Now(),
	}
	if a.DeviceType == "" {
		a.DeviceType = models.DefaultDeviceType
	}
	if in.PowerUsage != nil {
		a.PowerUsage = *in.PowerUsage
	}
	created, err := s.appliances.Create(ctx, a)
	if err != nil {
		return models.Appliance{}, storeErr("register appliance", err)
	}
	return created, nil
}

func (s *ApplianceService) Get(ctx context.Context, actorID, applianceID int64) (models.Appliance, error) {
	a, _, err := s.access.require(ctx, actorID, applianceID, CapView)
	return a, err
}

// Access reports what the actor may do with an appliance.
func (s *ApplianceService) Access(ctx context.Context, actorID, applianceID int64) (AccessSummary, error) {
	_, acc, err := s.access.require(ctx, actorID, applianceID, CapView)
	if err != nil {
		return AccessSummary{}, err
	}
	return summarize(applianceID, acc), nil
}

// List returns the appliances of a home that the actor can see.
func (s *ApplianceService) List(ctx context.Context, actorID, homeID int64) ([]models.Appliance, error) {
	m, err := s.access.membership(ctx, actorID, homeID)
	if err != nil {
		return nil, err
	}
	all, err := s.appliances.ListByHome(ctx, homeID)
	if err != nil {
		return nil, storeErr("list appliances", err)
	}
	if m.IsManager() {
		return all, nil
	}
	visible, err := s.homes.VisibleApplianceIDs(ctx, actorID)
	if err != nil {
		return nil, storeErr("list appliances", err)
	}
	allowed := make(map[int64]struct{}, len(visible))
	for _, id := range visible {
		allowed[id] = struct{}{}
	}
	out := make([]models.Appliance, 0, len(all))
	for _, a := range all {
		if _, ok := allowed[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Visible lists the ids of every appliance the actor may view, across homes.
func (s *ApplianceService) Visible(ctx context.Context, actorID int64) ([]int64, error) {
	ids, err := s.homes.VisibleApplianceIDs(ctx, actorID)
	if err != nil {
		return nil, storeErr("visible appliances", err)
	}
	return ids, nil
}

// Update edits name, device type and metadata. State is never touched here.
func (s *ApplianceService) Update(ctx context.Context, actorID, applianceID int64, in UpdateApplianceInput) (models.Appliance, error) {
	a, _, err := s.access.require(ctx, actorID, applianceID, CapManage)
	if err != nil {
		return models.Appliance{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return models.Appliance{}, validationf("name must not be empty")
		}
		a.Name = name
	}
	if in.DeviceType != nil {
		a.DeviceType = strings.TrimSpace(*in.DeviceType)
		if a.DeviceType == "" {
			a.DeviceType = models.DefaultDeviceType
		}
	}
	if in.Metadata != nil {
		a.Metadata = in.Metadata
	}
	if err := s.appliances.UpdateInfo(ctx, a); err != nil {
		return models.Appliance{}, storeErr("update appliance", err)
	}
	a.UpdatedAt = s.clock.Now()
	return a, nil
}

// Delete soft-deletes an appliance. When the home has a security PIN it must
// be supplied. The appliance's schedules are deactivated; history is kept.
func (s *ApplianceService) Delete(ctx context.Context, actorID, applianceID int64, pin string) error {
	a, _, err := s.access.require(ctx, actorID, applianceID, CapManage)
	if err != nil {
		return err
	}
	home, err := s.homes.GetHome(ctx, a.HomeID)
	if err != nil {
		return storeErr("home", err)
	}
	if home.HasPin() {
		if pin == "" {
			return deniedf("security pin required")
		}
		if bcrypt.CompareHashAndPassword([]byte(home.SecurityPinHash), []byte(pin)) != nil {
			return deniedf("invalid security pin")
		}
	}

	unlock := s.locks.Lock(applianceID)
	defer unlock()
	if err := s.appliances.SoftDelete(ctx, applianceID, s.clock.Now()); err != nil {
		return storeErr("delete appliance", err)
	}
	if s.log != nil {
		s.log.Infow("appliance_deleted", "appliance_id", applianceID, "actor_id", actorID)
	}
	return nil
}

// Activity returns the newest events of one appliance.
func (s *ApplianceService) Activity(ctx context.Context, actorID, applianceID int64, limit int) ([]models.ApplianceEvent, error) {
	if _, _, err := s.access.require(ctx, actorID, applianceID, CapView); err != nil {
		return nil, err
	}
	events, err := s.events.List(ctx, repository.EventQuery{
		ApplianceIDs: []int64{applianceID},
		Limit:        clampLimit(limit, defaultActivityLimit, maxActivityLimit),
		Newest:       true,
	})
	if err != nil {
		return nil, storeErr("appliance activity", err)
	}
	return events, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// since returns the UTC midnight that starts a window of `days` days ending today.
func since(now time.Time, days int) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
}
