package repository

import (
	"context"
	"database/sql"
	"fmt"

	"smarthome/internal/models"
)

type PermissionSQLite struct {
	db *sql.DB
}

func NewPermissionSQLite(db *sql.DB) *PermissionSQLite { return &PermissionSQLite{db: db} }

var _ PermissionRepo = (*PermissionSQLite)(nil)

const (
	selectPermissionSQL = `
		SELECT id, home_member_id, appliance_id, can_view, can_control, can_schedule
		FROM appliance_permissions WHERE home_member_id = ? AND appliance_id = ?`

	selectPermissionsByMemberSQL = `
		SELECT id, home_member_id, appliance_id, can_view, can_control, can_schedule
		FROM appliance_permissions WHERE home_member_id = ? ORDER BY appliance_id`

	upsertPermissionSQL = `
		INSERT INTO appliance_permissions (home_member_id, appliance_id, can_view, can_control, can_schedule)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(home_member_id, appliance_id) DO UPDATE SET
			can_view=excluded.can_view,
			can_control=excluded.can_control,
			can_schedule=excluded.can_schedule
	`

	deletePermissionSQL = `DELETE FROM appliance_permissions WHERE home_member_id = ? AND appliance_id = ?`
)

func scanPermission(row rowScanner) (models.Permission, error) {
	var p models.Permission
	if err := row.Scan(&p.ID, &p.HomeMemberID, &p.ApplianceID, &p.CanView, &p.CanControl, &p.CanSchedule); err != nil {
		return models.Permission{}, err
	}
	return p, nil
}

func (r *PermissionSQLite) Get(ctx context.Context, memberID, applianceID int64) (models.Permission, error) {
	p, err := scanPermission(r.db.QueryRowContext(ctx, selectPermissionSQL, memberID, applianceID))
	if err != nil {
		return models.Permission{}, fmt.Errorf("select permission of member %d on appliance %d: %w", memberID, applianceID, notFound(err))
	}
	return p, nil
}

// Upsert creates or replaces the grant for (member, appliance).
func (r *PermissionSQLite) Upsert(ctx context.Context, p models.Permission) (models.Permission, error) {
	if _, err := r.db.ExecContext(ctx, upsertPermissionSQL,
		p.HomeMemberID, p.ApplianceID, p.CanView, p.CanControl, p.CanSchedule); err != nil {
		return models.Permission{}, fmt.Errorf("upsert permission of member %d on appliance %d: %w", p.HomeMemberID, p.ApplianceID, err)
	}
	return r.Get(ctx, p.HomeMemberID, p.ApplianceID)
}

func (r *PermissionSQLite) Delete(ctx context.Context, memberID, applianceID int64) error {
	res, err := r.db.ExecContext(ctx, deletePermissionSQL, memberID, applianceID)
	if err != nil {
		return fmt.Errorf("delete permission of member %d on appliance %d: %w", memberID, applianceID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete permission of member %d on appliance %d: %w", memberID, applianceID, err)
	}
	return nil
}

func (r *PermissionSQLite) ListByMember(ctx context.Context, memberID int64) ([]models.Permission, error) {
	rows, err := r.db.QueryContext(ctx, selectPermissionsByMemberSQL, memberID)
	if err != nil {
		return nil, fmt.Errorf("list permissions of member %d: %w", memberID, err)
	}
	defer rows.Close()

	out := []models.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
