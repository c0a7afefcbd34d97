package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"smarthome/internal/models"
)

type ScheduleSQLite struct {
	db *sql.DB
}

func NewScheduleSQLite(db *sql.DB) *ScheduleSQLite { return &ScheduleSQLite{db: db} }

var _ ScheduleRepo = (*ScheduleSQLite)(nil)

const (
	scheduleColumns = `s.id, s.appliance_id, s.user_id, s.action, s.cron_expression, s.timezone,
		s.is_active, s.last_run_at, s.next_run_at, s.created_at, s.updated_at`

	insertScheduleSQL = `
		INSERT INTO schedules (appliance_id, user_id, action, cron_expression, timezone, is_active,
			next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectScheduleSQL = `SELECT ` + scheduleColumns + ` FROM schedules s WHERE s.id = ?`

	selectSchedulesByApplianceSQL = `SELECT ` + scheduleColumns + `
		FROM schedules s WHERE s.appliance_id = ? ORDER BY s.id`

	// Schedules of soft-deleted appliances never fire.
	selectActiveSchedulesSQL = `SELECT ` + scheduleColumns + `
		FROM schedules s JOIN appliances a ON a.id = s.appliance_id
		WHERE s.is_active = 1 AND a.deleted_at IS NULL
		ORDER BY s.id`

	updateScheduleSQL = `
		UPDATE schedules SET action = ?, cron_expression = ?, timezone = ?, is_active = ?,
			next_run_at = ?, updated_at = ?
		WHERE id = ?
	`

	deleteScheduleSQL = `DELETE FROM schedules WHERE id = ?`

	markScheduleRunSQL = `UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?`
)

func scanSchedule(row rowScanner) (models.Schedule, error) {
	var (
		s       models.Schedule
		lastRun sql.NullTime
		nextRun sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.ApplianceID,
		&s.UserID,
		&s.Action,
		&s.CronExpression,
		&s.Timezone,
		&s.IsActive,
		&lastRun,
		&nextRun,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return models.Schedule{}, err
	}
	s.LastRunAt = timePtr(lastRun)
	s.NextRunAt = timePtr(nextRun)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func (r *ScheduleSQLite) Create(ctx context.Context, s models.Schedule) (models.Schedule, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.CreatedAt

	res, err := r.db.ExecContext(ctx, insertScheduleSQL,
		s.ApplianceID,
		s.UserID,
		s.Action,
		s.CronExpression,
		s.Timezone,
		s.IsActive,
		nullTime(s.NextRunAt),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return models.Schedule{}, fmt.Errorf("insert schedule for appliance %d: %w", s.ApplianceID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Schedule{}, fmt.Errorf("get last insert id for schedule: %w", err)
	}
	s.ID = id
	return s, nil
}

func (r *ScheduleSQLite) Get(ctx context.Context, id int64) (models.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, selectScheduleSQL, id))
	if err != nil {
		return models.Schedule{}, fmt.Errorf("select schedule %d: %w", id, notFound(err))
	}
	return s, nil
}

// Update persists the editable fields. last_run_at is only written by MarkRun.
func (r *ScheduleSQLite) Update(ctx context.Context, s models.Schedule) error {
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	res, err := r.db.ExecContext(ctx, updateScheduleSQL,
		s.Action,
		s.CronExpression,
		s.Timezone,
		s.IsActive,
		nullTime(s.NextRunAt),
		updated.UTC(),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule %d: %w", s.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("update schedule %d: %w", s.ID, err)
	}
	return nil
}

func (r *ScheduleSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteScheduleSQL, id)
	if err != nil {
		return fmt.Errorf("delete schedule %d: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete schedule %d: %w", id, err)
	}
	return nil
}

func (r *ScheduleSQLite) ListByAppliance(ctx context.Context, applianceID int64) ([]models.Schedule, error) {
	return r.list(ctx, selectSchedulesByApplianceSQL, applianceID)
}

func (r *ScheduleSQLite) ListActive(ctx context.Context) ([]models.Schedule, error) {
	return r.list(ctx, selectActiveSchedulesSQL)
}

// MarkRun records the minute a schedule fired and its next planned fire.
func (r *ScheduleSQLite) MarkRun(ctx context.Context, id int64, lastRun time.Time, next *time.Time) error {
	res, err := r.db.ExecContext(ctx, markScheduleRunSQL, lastRun.UTC(), nullTime(next), id)
	if err != nil {
		return fmt.Errorf("mark schedule %d run: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("mark schedule %d run: %w", id, err)
	}
	return nil
}

func (r *ScheduleSQLite) list(ctx context.Context, query string, args ...any) ([]models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	out := make([]models.Schedule, 0, 16)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
