package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"smarthome/internal/models"
)

// ErrNotFound is returned when a row does not exist (or is soft-deleted).
var ErrNotFound = errors.New("not found")

type Authorization interface {
	Create(username, hash string) (int64, error)
	GetByUsername(username string) (*models.User, error)
	GetByID(id int64) (*models.User, error)
}

// TransitionFunc computes the next appliance row and the event describing
// the change from the current row. It must not perform I/O.
type TransitionFunc func(current models.Appliance) (models.Appliance, models.ApplianceEvent, error)

type ApplianceRepo interface {
	Create(ctx context.Context, a models.Appliance) (models.Appliance, error)
	Get(ctx context.Context, id int64) (models.Appliance, error)
	ListByHome(ctx context.Context, homeID int64) ([]models.Appliance, error)
	UpdateInfo(ctx context.Context, a models.Appliance) error
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	Transition(ctx context.Context, id int64, fn TransitionFunc) (models.Appliance, models.ApplianceEvent, error)
}

type ScheduleRepo interface {
	Create(ctx context.Context, s models.Schedule) (models.Schedule, error)
	Get(ctx context.Context, id int64) (models.Schedule, error)
	Update(ctx context.Context, s models.Schedule) error
	Delete(ctx context.Context, id int64) error
	ListByAppliance(ctx context.Context, applianceID int64) ([]models.Schedule, error)
	ListActive(ctx context.Context) ([]models.Schedule, error)
	MarkRun(ctx context.Context, id int64, lastRun time.Time, next *time.Time) error
}

// EventQuery filters appliance history. Zero values mean "no bound".
type EventQuery struct {
	ApplianceIDs []int64
	From         time.Time
	To           time.Time
	Status       string
	Limit        int
	Newest       bool // order newest first
}

type EventRepo interface {
	Append(ctx context.Context, e models.ApplianceEvent) (models.ApplianceEvent, error)
	List(ctx context.Context, q EventQuery) ([]models.ApplianceEvent, error)
	DailyUsage(ctx context.Context, applianceIDs []int64, since time.Time) ([]models.DailyUsage, error)
	CountTransitions(ctx context.Context, applianceID int64, since time.Time) (on, off int, err error)
}

type HomeRepo interface {
	CreateHome(ctx context.Context, name string, ownerID int64) (models.Home, error)
	GetHome(ctx context.Context, id int64) (models.Home, error)
	SetSecurityPin(ctx context.Context, homeID int64, hash string) error
	GetMembership(ctx context.Context, homeID, userID int64) (models.HomeMember, error)
	GetMember(ctx context.Context, memberID int64) (models.HomeMember, error)
	ListMembers(ctx context.Context, homeID int64) ([]models.HomeMember, error)
	AddMember(ctx context.Context, homeID, userID int64, role string) (models.HomeMember, error)
	UpdateMemberRole(ctx context.Context, memberID int64, role string) error
	RemoveMember(ctx context.Context, memberID int64) error
	HomeIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	VisibleApplianceIDs(ctx context.Context, userID int64) ([]int64, error)
}

type PermissionRepo interface {
	Get(ctx context.Context, memberID, applianceID int64) (models.Permission, error)
	Upsert(ctx context.Context, p models.Permission) (models.Permission, error)
	Delete(ctx context.Context, memberID, applianceID int64) error
	ListByMember(ctx context.Context, memberID int64) ([]models.Permission, error)
}

type DeviceRepo interface {
	SaveKey(ctx context.Context, applianceID int64, keyHash string) error
	ApplianceForKey(ctx context.Context, keyHash string) (int64, error)
}

type Repository struct {
	Appliances  ApplianceRepo
	Schedules   ScheduleRepo
	Events      EventRepo
	Homes       HomeRepo
	Permissions PermissionRepo
	Devices     DeviceRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Appliances:  NewApplianceSQLite(db),
		Schedules:   NewScheduleSQLite(db),
		Events:      NewEventSQLite(db),
		Homes:       NewHomeSQLite(db),
		Permissions: NewPermissionSQLite(db),
		Devices:     NewDeviceSQLite(db),
		Auth:        NewUserRepository(db),
	}
}

// notFound maps sql.ErrNoRows to ErrNotFound, passing other errors through.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// requireAffected turns a zero-row UPDATE/DELETE into ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
