package service

import (
	"context"
	"time"

	"smarthome/internal/clock"
	"smarthome/internal/logger"
	"smarthome/internal/models"
	"smarthome/internal/repository"
	"smarthome/internal/stream"
)

type Authorization interface {
	SignUp(username, password string) (int64, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int64, error)
}

// Appliances exposes registration and state changes.
type Appliances interface {
	Toggle(ctx context.Context, actorID int64, in ToggleInput) (models.Appliance, error)
	Register(ctx context.Context, actorID int64, in RegisterApplianceInput) (models.Appliance, error)
	Get(ctx context.Context, actorID, applianceID int64) (models.Appliance, error)
	Access(ctx context.Context, actorID, applianceID int64) (AccessSummary, error)
	List(ctx context.Context, actorID, homeID int64) ([]models.Appliance, error)
	Update(ctx context.Context, actorID, applianceID int64, in UpdateApplianceInput) (models.Appliance, error)
	Delete(ctx context.Context, actorID, applianceID int64, pin string) error
	Activity(ctx context.Context, actorID, applianceID int64, limit int) ([]models.ApplianceEvent, error)
	Visible(ctx context.Context, actorID int64) ([]int64, error)
}

type Schedules interface {
	Create(ctx context.Context, actorID int64, in CreateScheduleInput) (models.Schedule, error)
	Update(ctx context.Context, actorID, scheduleID int64, in UpdateScheduleInput) (models.Schedule, error)
	Delete(ctx context.Context, actorID, scheduleID int64) error
	ListForAppliance(ctx context.Context, actorID, applianceID int64) ([]models.Schedule, error)
	ListActive(ctx context.Context, actorID int64) ([]models.Schedule, error)
}

// Scheduler runs the background loop that fires due schedules.
// Stop via context cancellation in main() for graceful shutdown.
type Scheduler interface {
	Run(ctx context.Context, tick time.Duration)
	Tick(ctx context.Context, now time.Time) TickReport
}

// EventLog exposes the append-only history with filtering access.
type EventLog interface {
	List(ctx context.Context, actorID int64, f LogFilter) ([]models.ApplianceEvent, error)
	Recent(ctx context.Context, actorID int64, limit int) ([]models.ApplianceEvent, error)
}

type Analytics interface {
	Daily(ctx context.Context, actorID int64, days int) ([]models.DailyUsage, error)
	ApplianceStats(ctx context.Context, actorID, applianceID int64, days int) (models.ApplianceStats, error)
}

type Telemetry interface {
	ProvisionKey(ctx context.Context, actorID, applianceID int64) (ProvisionedKey, error)
	Authenticate(ctx context.Context, key string) (int64, error)
	Ingest(ctx context.Context, applianceID int64, powerUsage float64) (models.ApplianceEvent, error)
}

type Homes interface {
	CreateHome(ctx context.Context, actorID int64, name string) (models.Home, error)
	ListHomes(ctx context.Context, actorID int64) ([]models.Home, error)
	ListMembers(ctx context.Context, actorID, homeID int64) ([]models.HomeMember, error)
	AddMember(ctx context.Context, actorID, homeID int64, in AddMemberInput) (models.HomeMember, error)
	UpdateMemberRole(ctx context.Context, actorID, memberID int64, role string) (models.HomeMember, error)
	RemoveMember(ctx context.Context, actorID, memberID int64) error
	GrantPermission(ctx context.Context, actorID, memberID, applianceID int64, caps models.Capabilities) (models.Permission, error)
	RevokePermission(ctx context.Context, actorID, memberID, applianceID int64) error
	ListPermissions(ctx context.Context, actorID, memberID int64) ([]models.Permission, error)
	SetSecurityPin(ctx context.Context, actorID, homeID int64, pin string) error
}

// Deps carries the non-repository collaborators of the services.
type Deps struct {
	Clock             clock.Clock
	Notifier          stream.Notifier
	Log               *logger.Logger
	SigningKey        string
	TokenTTL          time.Duration
	AnalyticsCacheTTL time.Duration
	DispatchTimeout   time.Duration
}

// Service aggregates all sub-services.
type Service struct {
	Authorization
	Appliances Appliances
	Schedules  Schedules
	Scheduler  Scheduler
	EventLog   EventLog
	Analytics  Analytics
	Telemetry  Telemetry
	Homes      Homes
}

// NewService wires the repository layer into concrete services.
func NewService(repos *repository.Repository, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Notifier == nil {
		deps.Notifier = stream.Fanout{}
	}
	if deps.TokenTTL <= 0 {
		deps.TokenTTL = time.Hour
	}

	appliances := NewApplianceService(repos, deps.Notifier, deps.Clock, deps.Log)
	schedules := NewScheduleService(repos, deps.Clock, deps.Log)
	return &Service{
		Authorization: NewAuthService(repos.Auth, deps.SigningKey, deps.TokenTTL, deps.Clock),
		Appliances:    appliances,
		Schedules:     schedules,
		Scheduler:     NewSchedulerService(schedules, repos.Schedules, appliances, deps.Clock, deps.Log, deps.DispatchTimeout),
		EventLog:      NewEventLogService(repos.Events, repos.Homes),
		Analytics:     NewAnalyticsService(repos, deps.Clock, deps.AnalyticsCacheTTL),
		Telemetry:     NewTelemetryService(repos, deps.Notifier, deps.Clock, deps.Log),
		Homes:         NewHomeService(repos, deps.Log),
	}
}
