package db

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS properties (
	property_id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE CHECK(length(name) BETWEEN 1 AND 200),
	address TEXT NOT NULL DEFAULT '',
	cover_photo_url TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checklist_items (
	item_id TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	title TEXT NOT NULL CHECK(length(title) >= 1),
	done INTEGER NOT NULL DEFAULT 0 CHECK(done IN (0,1)),
	position INTEGER NOT NULL CHECK(position >= 1),
	updated_at TEXT NOT NULL,
	FOREIGN KEY(property_id) REFERENCES properties(property_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS inventory_items (
	item_id TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	name TEXT NOT NULL CHECK(length(name) >= 1),
	quantity INTEGER NOT NULL DEFAULT 0 CHECK(quantity >= 0),
	location TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	FOREIGN KEY(property_id) REFERENCES properties(property_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS contacts (
	contact_id TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	name TEXT NOT NULL CHECK(length(name) >= 1),
	role TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	FOREIGN KEY(property_id) REFERENCES properties(property_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS manual_entries (
	entry_id TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	section TEXT NOT NULL CHECK(length(section) >= 1),
	body TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL CHECK(position >= 1),
	updated_at TEXT NOT NULL,
	FOREIGN KEY(property_id) REFERENCES properties(property_id) ON DELETE CASCADE
);
`,
		DownSQL: `
DROP TABLE IF EXISTS manual_entries;
DROP TABLE IF EXISTS contacts;
DROP TABLE IF EXISTS inventory_items;
DROP TABLE IF EXISTS checklist_items;
DROP TABLE IF EXISTS properties;
`,
	},
	{
		Version: 2,
		UpSQL: `
CREATE INDEX IF NOT EXISTS idx_checklist_items_property_position ON checklist_items(property_id, position);
CREATE INDEX IF NOT EXISTS idx_inventory_items_property_name ON inventory_items(property_id, name);
CREATE INDEX IF NOT EXISTS idx_contacts_property_name ON contacts(property_id, name);
CREATE INDEX IF NOT EXISTS idx_manual_entries_property_position ON manual_entries(property_id, position);
`,
		DownSQL: `
DROP INDEX IF EXISTS idx_manual_entries_property_position;
DROP INDEX IF EXISTS idx_contacts_property_name;
DROP INDEX IF EXISTS idx_inventory_items_property_name;
DROP INDEX IF EXISTS idx_checklist_items_property_position;
`,
	},
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// RollbackAll runs every down migration, newest first, and forgets them.
func RollbackAll(ctx context.Context, db *sql.DB) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rollback tx %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("rollback migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("forget migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rollback %d: %w", m.Version, err)
		}
	}
	return nil
}
