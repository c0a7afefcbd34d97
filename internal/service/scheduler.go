package service

import (
	"context"
	"sync"
	"time"

	"smarthome/internal/clock"
	"smarthome/internal/logger"
	"smarthome/internal/models"
	"smarthome/internal/repository"
)

const defaultDispatchTimeout = 10 * time.Second

// dueLister finds schedules to fire and computes their next run.
type dueLister interface {
	ListDue(ctx context.Context, now time.Time) ([]models.Schedule, error)
	NextRun(sch models.Schedule, t time.Time) *time.Time
}

// scheduledApplier performs the transition a schedule asks for.
type scheduledApplier interface {
	ApplyScheduled(ctx context.Context, sch models.Schedule) (models.Appliance, error)
}

// SchedulerService fires due schedules once per minute.
// Stop via context cancellation in main() for graceful shutdown.
type SchedulerService struct {
	due       dueLister
	schedules repository.ScheduleRepo
	applier   scheduledApplier
	clock     clock.Clock
	log       *logger.Logger
	timeout   time.Duration

	// mu serializes ticks so an overlapping tick sees the previous one's last_run_at.
	mu sync.Mutex
}

func NewSchedulerService(due dueLister, schedules repository.ScheduleRepo, applier scheduledApplier,
	clk clock.Clock, log *logger.Logger, dispatchTimeout time.Duration) *SchedulerService {
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}
	return &SchedulerService{
		due:       due,
		schedules: schedules,
		applier:   applier,
		clock:     clk,
		log:       log,
		timeout:   dispatchTimeout,
	}
}

// Run waits for the next minute boundary, then ticks at the given interval
// until ctx is canceled. Fires missed while the process was down are skipped.
func (s *SchedulerService) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 || tick > time.Minute {
		tick = time.Minute
	}
	now := s.clock.Now()
	align := time.NewTimer(now.Truncate(time.Minute).Add(time.Minute).Sub(now))
	defer align.Stop()

	select {
	case <-ctx.Done():
		return
	case <-align.C:
	}
	s.Tick(ctx, s.clock.Now())

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx, s.clock.Now())
		}
	}
}

// Tick fires every schedule due in the minute containing now. A failure on
// one schedule is logged and does not stop the others. Cancellation is
// honoured between schedules; a schedule already dispatching is finished and
// recorded first.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	minute := now.UTC().Truncate(time.Minute)
	report := TickReport{Minute: minute}

	due, err := s.due.ListDue(ctx, minute)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("scheduler_list_due_failed", "err", err, "minute", minute)
		}
		return report
	}
	report.Due = len(due)

	// In-flight work outlives cancellation of the loop.
	work := context.WithoutCancel(ctx)
	for _, sch := range due {
		if ctx.Err() != nil {
			break
		}
		if err := s.fire(work, sch); err != nil {
			report.Failed++
			if s.log != nil {
				s.log.Errorw("schedule_dispatch_failed", "err", err,
					"schedule_id", sch.ID, "appliance_id", sch.ApplianceID, "action", sch.Action)
			}
		} else {
			report.Fired++
		}

		// Recorded even after a failed dispatch: the minute is spent either way.
		if err := s.markRun(work, sch, minute); err != nil && s.log != nil {
			s.log.Errorw("schedule_mark_run_failed", "err", err, "schedule_id", sch.ID)
		}
	}

	if s.log != nil && report.Due > 0 {
		s.log.Infow("scheduler_tick", "minute", minute, "due", report.Due,
			"fired", report.Fired, "failed", report.Failed)
	}
	return report
}

func (s *SchedulerService) fire(ctx context.Context, sch models.Schedule) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.applier.ApplyScheduled(ctx, sch)
	return err
}

func (s *SchedulerService) markRun(ctx context.Context, sch models.Schedule, minute time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.schedules.MarkRun(ctx, sch.ID, minute, s.due.NextRun(sch, minute))
}
