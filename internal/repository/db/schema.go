package db

// schema is applied in order on every start; statements must be idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS homes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    owner_id INTEGER NOT NULL REFERENCES users(id),
    security_pin_hash TEXT,
    created_at TIMESTAMP NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS home_members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    home_id INTEGER NOT NULL REFERENCES homes(id) ON DELETE CASCADE,
    user_id INTEGER NOT NULL REFERENCES users(id),
    role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member', 'guest')),
    UNIQUE (home_id, user_id)
);`,
	`CREATE TABLE IF NOT EXISTS appliances (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    home_id INTEGER NOT NULL REFERENCES homes(id),
    name TEXT NOT NULL,
    device_type TEXT NOT NULL DEFAULT 'generic',
    metadata TEXT,
    status TEXT NOT NULL DEFAULT 'off' CHECK (status IN ('on', 'off')),
    power_usage REAL NOT NULL DEFAULT 0 CHECK (power_usage >= 0),
    last_turned_on TIMESTAMP,
    total_usage_ms INTEGER NOT NULL DEFAULT 0 CHECK (total_usage_ms >= 0),
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    deleted_at TIMESTAMP
);`,
	`CREATE TABLE IF NOT EXISTS appliance_permissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    home_member_id INTEGER NOT NULL REFERENCES home_members(id) ON DELETE CASCADE,
    appliance_id INTEGER NOT NULL REFERENCES appliances(id),
    can_view BOOLEAN NOT NULL DEFAULT 0,
    can_control BOOLEAN NOT NULL DEFAULT 0,
    can_schedule BOOLEAN NOT NULL DEFAULT 0,
    UNIQUE (home_member_id, appliance_id)
);`,
	`CREATE TABLE IF NOT EXISTS schedules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    appliance_id INTEGER NOT NULL REFERENCES appliances(id),
    user_id INTEGER NOT NULL REFERENCES users(id),
    action TEXT NOT NULL CHECK (action IN ('on', 'off')),
    cron_expression TEXT NOT NULL,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    is_active BOOLEAN NOT NULL DEFAULT 1,
    last_run_at TIMESTAMP,
    next_run_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_active ON schedules (is_active);`,
	// schedule_id carries no foreign key: deleting a schedule must leave history intact.
	`CREATE TABLE IF NOT EXISTS appliance_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    appliance_id INTEGER NOT NULL REFERENCES appliances(id),
    user_id INTEGER,
    status TEXT NOT NULL CHECK (status IN ('on', 'off', 'data')),
    power_usage REAL NOT NULL DEFAULT 0,
    source TEXT NOT NULL,
    schedule_id INTEGER,
    recorded_at TIMESTAMP NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_events_appliance_time ON appliance_events (appliance_id, recorded_at);`,
	`CREATE TRIGGER IF NOT EXISTS appliance_events_no_update
BEFORE UPDATE ON appliance_events
BEGIN
    SELECT RAISE(ABORT, 'appliance_events is append-only');
END;`,
	`CREATE TRIGGER IF NOT EXISTS appliance_events_no_delete
BEFORE DELETE ON appliance_events
BEGIN
    SELECT RAISE(ABORT, 'appliance_events is append-only');
END;`,
	`CREATE TABLE IF NOT EXISTS device_credentials (
    key_hash TEXT PRIMARY KEY,
    appliance_id INTEGER NOT NULL REFERENCES appliances(id),
    created_at TIMESTAMP NOT NULL
);`,
}
