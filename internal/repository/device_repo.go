package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeviceSQLite stores hashed telemetry keys. Plaintext keys are never persisted.
type DeviceSQLite struct {
	db *sql.DB
}

func NewDeviceSQLite(db *sql.DB) *DeviceSQLite { return &DeviceSQLite{db: db} }

var _ DeviceRepo = (*DeviceSQLite)(nil)

const (
	deleteDeviceKeysSQL = `DELETE FROM device_credentials WHERE appliance_id = ?`
	insertDeviceKeySQL  = `INSERT INTO device_credentials (key_hash, appliance_id, created_at) VALUES (?, ?, ?)`

	selectDeviceKeySQL = `
		SELECT c.appliance_id FROM device_credentials c
		JOIN appliances a ON a.id = c.appliance_id
		WHERE c.key_hash = ? AND a.deleted_at IS NULL`
)

// SaveKey replaces the appliance's key; a previously issued key stops working.
func (r *DeviceSQLite) SaveKey(ctx context.Context, applianceID int64, keyHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save device key: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteDeviceKeysSQL, applianceID); err != nil {
		return fmt.Errorf("revoke device keys of appliance %d: %w", applianceID, err)
	}
	if _, err := tx.ExecContext(ctx, insertDeviceKeySQL, keyHash, applianceID, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert device key for appliance %d: %w", applianceID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit device key for appliance %d: %w", applianceID, err)
	}
	return nil
}

func (r *DeviceSQLite) ApplianceForKey(ctx context.Context, keyHash string) (int64, error) {
	var id int64
	if err := r.db.QueryRowContext(ctx, selectDeviceKeySQL, keyHash).Scan(&id); err != nil {
		return 0, fmt.Errorf("select device key: %w", notFound(err))
	}
	return id, nil
}
