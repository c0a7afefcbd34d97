package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"smarthome/internal/models"
)

type ApplianceSQLite struct {
	db *sql.DB
}

func NewApplianceSQLite(db *sql.DB) *ApplianceSQLite {
	return &ApplianceSQLite{db: db}
}

var _ ApplianceRepo = (*ApplianceSQLite)(nil)

const (
	applianceColumns = `id, home_id, name, device_type, metadata, status, power_usage,
		last_turned_on, total_usage_ms, created_at, updated_at`

	insertApplianceSQL = `
		INSERT INTO appliances (home_id, name, device_type, metadata, status, power_usage,
			last_turned_on, total_usage_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectApplianceSQL = `SELECT ` + applianceColumns + `
		FROM appliances WHERE id = ? AND deleted_at IS NULL`

	selectAppliancesByHomeSQL = `SELECT ` + applianceColumns + `
		FROM appliances WHERE home_id = ? AND deleted_at IS NULL ORDER BY id`

	updateApplianceInfoSQL = `
		UPDATE appliances SET name = ?, device_type = ?, metadata = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	updateApplianceStateSQL = `
		UPDATE appliances SET status = ?, power_usage = ?, last_turned_on = ?,
			total_usage_ms = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	softDeleteApplianceSQL = `
		UPDATE appliances SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
	`

	deactivateSchedulesSQL = `
		UPDATE schedules SET is_active = 0, next_run_at = NULL, updated_at = ? WHERE appliance_id = ?
	`
)

// marshalMetadata converts metadata to a JSON string; nil becomes NULL.
func marshalMetadata(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalMetadata(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppliance(row rowScanner) (models.Appliance, error) {
	var (
		a        models.Appliance
		meta     sql.NullString
		lastOnAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.HomeID,
		&a.Name,
		&a.DeviceType,
		&meta,
		&a.Status,
		&a.PowerUsage,
		&lastOnAt,
		&a.TotalUsageMs,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return models.Appliance{}, err
	}
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return models.Appliance{}, fmt.Errorf("decode metadata of appliance %d: %w", a.ID, err)
	}
	a.Metadata = m
	a.LastTurnedOn = timePtr(lastOnAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// Create inserts a new appliance. Zero timestamps are set to now (UTC).
func (r *ApplianceSQLite) Create(ctx context.Context, a models.Appliance) (models.Appliance, error) {
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return models.Appliance{}, fmt.Errorf("encode metadata: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.CreatedAt

	res, err := r.db.ExecContext(ctx, insertApplianceSQL,
		a.HomeID,
		a.Name,
		a.DeviceType,
		meta,
		a.Status,
		a.PowerUsage,
		nullTime(a.LastTurnedOn),
		a.TotalUsageMs,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return models.Appliance{}, fmt.Errorf("insert appliance %q: %w", a.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Appliance{}, fmt.Errorf("get last insert id for appliance %q: %w", a.Name, err)
	}
	a.ID = id
	return a, nil
}

func (r *ApplianceSQLite) Get(ctx context.Context, id int64) (models.Appliance, error) {
	a, err := scanAppliance(r.db.QueryRowContext(ctx, selectApplianceSQL, id))
	if err != nil {
		return models.Appliance{}, fmt.Errorf("select appliance %d: %w", id, notFound(err))
	}
	return a, nil
}

func (r *ApplianceSQLite) ListByHome(ctx context.Context, homeID int64) ([]models.Appliance, error) {
	rows, err := r.db.QueryContext(ctx, selectAppliancesByHomeSQL, homeID)
	if err != nil {
		return nil, fmt.Errorf("list appliances of home %d: %w", homeID, err)
	}
	defer rows.Close()

	out := make([]models.Appliance, 0, 16)
	for rows.Next() {
		a, err := scanAppliance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateInfo edits descriptive fields only; state is owned by Transition.
func (r *ApplianceSQLite) UpdateInfo(ctx context.Context, a models.Appliance) error {
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, updateApplianceInfoSQL,
		a.Name, a.DeviceType, meta, time.Now().UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("update appliance %d: %w", a.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("update appliance %d: %w", a.ID, err)
	}
	return nil
}

// SoftDelete hides the appliance and deactivates its schedules in one transaction.
// History rows are left untouched.
func (r *ApplianceSQLite) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete appliance %d: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	at = at.UTC()
	res, err := tx.ExecContext(ctx, softDeleteApplianceSQL, at, at, id)
	if err != nil {
		return fmt.Errorf("delete appliance %d: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete appliance %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, deactivateSchedulesSQL, at, id); err != nil {
		return fmt.Errorf("deactivate schedules of appliance %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete appliance %d: %w", id, err)
	}
	return nil
}

// Transition reads the appliance, applies fn, then persists the new row and
// appends the event in a single transaction. Nothing is written if fn fails.
func (r *ApplianceSQLite) Transition(ctx context.Context, id int64, fn TransitionFunc) (models.Appliance, models.ApplianceEvent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, fmt.Errorf("begin transition %d: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanAppliance(tx.QueryRowContext(ctx, selectApplianceSQL, id))
	if err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, fmt.Errorf("select appliance %d: %w", id, notFound(err))
	}

	next, ev, err := fn(cur)
	if err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, err
	}

	if _, err := tx.ExecContext(ctx, updateApplianceStateSQL,
		next.Status,
		next.PowerUsage,
		nullTime(next.LastTurnedOn),
		next.TotalUsageMs,
		next.UpdatedAt.UTC(),
		id,
	); err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, fmt.Errorf("update appliance %d state: %w", id, err)
	}

	ev.ApplianceID = id
	ev, err = appendEvent(ctx, tx, ev)
	if err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Appliance{}, models.ApplianceEvent{}, fmt.Errorf("commit transition %d: %w", id, err)
	}
	return next, ev, nil
}
