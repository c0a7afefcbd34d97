package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"smarthome/internal/models"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

const (
	insertEventSQL = `
		INSERT INTO appliance_events (appliance_id, user_id, status, power_usage, source, schedule_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	dailyUsageSQL = `
		SELECT substr(recorded_at, 1, 10) AS day,
			COALESCE(SUM(CASE WHEN status = 'on' THEN power_usage ELSE 0 END), 0),
			SUM(CASE WHEN status = 'on' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'off' THEN 1 ELSE 0 END)
		FROM appliance_events
		WHERE recorded_at >= ? AND appliance_id IN (%s)
		GROUP BY day
		ORDER BY day ASC
	`

	countTransitionsSQL = `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'on' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'off' THEN 1 ELSE 0 END), 0)
		FROM appliance_events
		WHERE appliance_id = ? AND recorded_at >= ?
	`
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// appendEvent inserts e through db or an open transaction.
func appendEvent(ctx context.Context, db execer, e models.ApplianceEvent) (models.ApplianceEvent, error) {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	} else {
		e.RecordedAt = e.RecordedAt.UTC()
	}
	e.Status = strings.ToLower(strings.TrimSpace(e.Status))

	res, err := db.ExecContext(ctx, insertEventSQL,
		e.ApplianceID,
		nullInt(e.UserID),
		e.Status,
		e.PowerUsage,
		e.Source,
		nullInt(e.ScheduleID),
		e.RecordedAt,
	)
	if err != nil {
		return models.ApplianceEvent{}, fmt.Errorf("insert event for appliance %d: %w", e.ApplianceID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.ApplianceEvent{}, fmt.Errorf("get last insert id for event: %w", err)
	}
	e.ID = id
	return e, nil
}

// Append inserts a standalone event (telemetry). State transitions append
// through ApplianceSQLite.Transition instead.
func (r *EventSQLite) Append(ctx context.Context, e models.ApplianceEvent) (models.ApplianceEvent, error) {
	return appendEvent(ctx, r.db, e)
}

// List returns events filtered by appliance set, [From, To] and status.
// An empty, non-nil ApplianceIDs slice yields no rows.
func (r *EventSQLite) List(ctx context.Context, q EventQuery) ([]models.ApplianceEvent, error) {
	if q.ApplianceIDs != nil && len(q.ApplianceIDs) == 0 {
		return []models.ApplianceEvent{}, nil
	}
	var (
		conds []string
		args  []any
	)
	if len(q.ApplianceIDs) > 0 {
		conds = append(conds, "appliance_id IN ("+placeholders(len(q.ApplianceIDs))+")")
		for _, id := range q.ApplianceIDs {
			args = append(args, id)
		}
	}
	if !q.From.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, q.To.UTC())
	}
	if status := strings.ToLower(strings.TrimSpace(q.Status)); status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}

	query := `SELECT id, appliance_id, user_id, status, power_usage, source, schedule_id, recorded_at FROM appliance_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if q.Newest {
		query += " ORDER BY recorded_at DESC, id DESC"
	} else {
		query += " ORDER BY recorded_at ASC, id ASC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]models.ApplianceEvent, 0, 64)
	for rows.Next() {
		var (
			ev         models.ApplianceEvent
			userID     sql.NullInt64
			scheduleID sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.ApplianceID, &userID, &ev.Status, &ev.PowerUsage,
			&ev.Source, &scheduleID, &ev.RecordedAt); err != nil {
			return nil, err
		}
		ev.UserID = intPtr(userID)
		ev.ScheduleID = intPtr(scheduleID)
		ev.RecordedAt = ev.RecordedAt.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DailyUsage aggregates on/off counts and switched-on wattage per UTC day.
func (r *EventSQLite) DailyUsage(ctx context.Context, applianceIDs []int64, since time.Time) ([]models.DailyUsage, error) {
	if len(applianceIDs) == 0 {
		return []models.DailyUsage{}, nil
	}
	args := make([]any, 0, len(applianceIDs)+1)
	args = append(args, since.UTC())
	for _, id := range applianceIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(dailyUsageSQL, placeholders(len(applianceIDs))), args...)
	if err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}
	defer rows.Close()

	out := make([]models.DailyUsage, 0, 32)
	for rows.Next() {
		var d models.DailyUsage
		if err := rows.Scan(&d.Day, &d.TotalPower, &d.OnEvents, &d.OffEvents); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EventSQLite) CountTransitions(ctx context.Context, applianceID int64, since time.Time) (int, int, error) {
	var on, off int
	if err := r.db.QueryRowContext(ctx, countTransitionsSQL, applianceID, since.UTC()).Scan(&on, &off); err != nil {
		return 0, 0, fmt.Errorf("count transitions of appliance %d: %w", applianceID, err)
	}
	return on, off, nil
}
