package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"smarthome/internal/models"
)

type HomeSQLite struct {
	db *sql.DB
}

func NewHomeSQLite(db *sql.DB) *HomeSQLite { return &HomeSQLite{db: db} }

var _ HomeRepo = (*HomeSQLite)(nil)

const (
	insertHomeSQL   = `INSERT INTO homes (name, owner_id, created_at) VALUES (?, ?, ?)`
	insertMemberSQL = `INSERT INTO home_members (home_id, user_id, role) VALUES (?, ?, ?)`

	selectHomeSQL = `SELECT id, name, owner_id, COALESCE(security_pin_hash, ''), created_at FROM homes WHERE id = ?`

	updateHomePinSQL = `UPDATE homes SET security_pin_hash = NULLIF(?, '') WHERE id = ?`

	memberColumns = `m.id, m.home_id, m.user_id, COALESCE(u.username, ''), m.role`

	selectMembershipSQL = `SELECT ` + memberColumns + `
		FROM home_members m LEFT JOIN users u ON u.id = m.user_id
		WHERE m.home_id = ? AND m.user_id = ?`

	selectMemberSQL = `SELECT ` + memberColumns + `
		FROM home_members m LEFT JOIN users u ON u.id = m.user_id
		WHERE m.id = ?`

	selectMembersSQL = `SELECT ` + memberColumns + `
		FROM home_members m LEFT JOIN users u ON u.id = m.user_id
		WHERE m.home_id = ? ORDER BY m.id`

	updateMemberRoleSQL = `UPDATE home_members SET role = ? WHERE id = ?`
	deleteMemberSQL     = `DELETE FROM home_members WHERE id = ?`

	selectHomeIDsForUserSQL = `SELECT home_id FROM home_members WHERE user_id = ? ORDER BY home_id`

	// Managers see every appliance of their homes; others see what they were granted.
	selectVisibleAppliancesSQL = `
		SELECT a.id FROM appliances a
		JOIN home_members m ON m.home_id = a.home_id AND m.user_id = ?
		WHERE a.deleted_at IS NULL AND (
			m.role IN ('owner', 'admin') OR EXISTS (
				SELECT 1 FROM appliance_permissions p
				WHERE p.home_member_id = m.id AND p.appliance_id = a.id
					AND (p.can_view = 1 OR p.can_control = 1 OR p.can_schedule = 1)
			)
		)
		ORDER BY a.id`
)

func scanMember(row rowScanner) (models.HomeMember, error) {
	var m models.HomeMember
	if err := row.Scan(&m.ID, &m.HomeID, &m.UserID, &m.Username, &m.Role); err != nil {
		return models.HomeMember{}, err
	}
	return m, nil
}

// CreateHome inserts the home and its owner membership atomically.
func (r *HomeSQLite) CreateHome(ctx context.Context, name string, ownerID int64) (models.Home, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Home{}, fmt.Errorf("begin create home: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, insertHomeSQL, name, ownerID, now)
	if err != nil {
		return models.Home{}, fmt.Errorf("insert home %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Home{}, fmt.Errorf("get last insert id for home %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, insertMemberSQL, id, ownerID, models.RoleOwner); err != nil {
		return models.Home{}, fmt.Errorf("insert owner of home %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return models.Home{}, fmt.Errorf("commit create home: %w", err)
	}
	return models.Home{ID: id, Name: name, OwnerID: ownerID, CreatedAt: now}, nil
}

func (r *HomeSQLite) GetHome(ctx context.Context, id int64) (models.Home, error) {
	var h models.Home
	err := r.db.QueryRowContext(ctx, selectHomeSQL, id).
		Scan(&h.ID, &h.Name, &h.OwnerID, &h.SecurityPinHash, &h.CreatedAt)
	if err != nil {
		return models.Home{}, fmt.Errorf("select home %d: %w", id, notFound(err))
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return h, nil
}

// SetSecurityPin stores a PIN hash; an empty hash clears the PIN.
func (r *HomeSQLite) SetSecurityPin(ctx context.Context, homeID int64, hash string) error {
	res, err := r.db.ExecContext(ctx, updateHomePinSQL, hash, homeID)
	if err != nil {
		return fmt.Errorf("update pin of home %d: %w", homeID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("update pin of home %d: %w", homeID, err)
	}
	return nil
}

func (r *HomeSQLite) GetMembership(ctx context.Context, homeID, userID int64) (models.HomeMember, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx, selectMembershipSQL, homeID, userID))
	if err != nil {
		return models.HomeMember{}, fmt.Errorf("select membership of user %d in home %d: %w", userID, homeID, notFound(err))
	}
	return m, nil
}

func (r *HomeSQLite) GetMember(ctx context.Context, memberID int64) (models.HomeMember, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx, selectMemberSQL, memberID))
	if err != nil {
		return models.HomeMember{}, fmt.Errorf("select member %d: %w", memberID, notFound(err))
	}
	return m, nil
}

func (r *HomeSQLite) ListMembers(ctx context.Context, homeID int64) ([]models.HomeMember, error) {
	rows, err := r.db.QueryContext(ctx, selectMembersSQL, homeID)
	if err != nil {
		return nil, fmt.Errorf("list members of home %d: %w", homeID, err)
	}
	defer rows.Close()

	var out []models.HomeMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *HomeSQLite) AddMember(ctx context.Context, homeID, userID int64, role string) (models.HomeMember, error) {
	res, err := r.db.ExecContext(ctx, insertMemberSQL, homeID, userID, role)
	if err != nil {
		return models.HomeMember{}, fmt.Errorf("insert member %d into home %d: %w", userID, homeID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.HomeMember{}, fmt.Errorf("get last insert id for member: %w", err)
	}
	return models.HomeMember{ID: id, HomeID: homeID, UserID: userID, Role: role}, nil
}

func (r *HomeSQLite) UpdateMemberRole(ctx context.Context, memberID int64, role string) error {
	res, err := r.db.ExecContext(ctx, updateMemberRoleSQL, role, memberID)
	if err != nil {
		return fmt.Errorf("update role of member %d: %w", memberID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("update role of member %d: %w", memberID, err)
	}
	return nil
}

// RemoveMember deletes the membership; grants go with it (ON DELETE CASCADE).
func (r *HomeSQLite) RemoveMember(ctx context.Context, memberID int64) error {
	res, err := r.db.ExecContext(ctx, deleteMemberSQL, memberID)
	if err != nil {
		return fmt.Errorf("delete member %d: %w", memberID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete member %d: %w", memberID, err)
	}
	return nil
}

func (r *HomeSQLite) HomeIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	return r.ids(ctx, selectHomeIDsForUserSQL, userID)
}

func (r *HomeSQLite) VisibleApplianceIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.ids(ctx, selectVisibleAppliancesSQL, userID)
}

func (r *HomeSQLite) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
