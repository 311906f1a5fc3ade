package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		code         TEXT     NOT NULL UNIQUE,
		name         TEXT     NOT NULL,
		description  TEXT     NOT NULL DEFAULT '',
		category     TEXT     NOT NULL DEFAULT 'general',
		price        TEXT     NOT NULL DEFAULT '0',
		cost         TEXT     NOT NULL DEFAULT '0',
		tax_rate     TEXT     NOT NULL DEFAULT '21',
		quantity     INTEGER  NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		min_quantity INTEGER  NOT NULL DEFAULT 5,
		is_active    INTEGER  NOT NULL DEFAULT 1,
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id      INTEGER  NOT NULL REFERENCES products (id),
		kind            TEXT     NOT NULL CHECK (kind IN ('inbound', 'outbound')),
		reason          TEXT     NOT NULL,
		amount          INTEGER  NOT NULL CHECK (amount >= 0),
		delta           INTEGER  NOT NULL,
		quantity_before INTEGER  NOT NULL,
		quantity_after  INTEGER  NOT NULL CHECK (quantity_after >= 0),
		clamped         INTEGER  NOT NULL DEFAULT 0,
		actor           TEXT     NOT NULL,
		sync_pending    INTEGER  NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL,
		CHECK (quantity_after - quantity_before = delta)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		operation       TEXT     NOT NULL CHECK (operation IN ('insert', 'update', 'delete')),
		table_name      TEXT     NOT NULL,
		record_key      TEXT     NOT NULL DEFAULT '',
		payload         TEXT     NOT NULL,
		idempotency_key TEXT     NOT NULL UNIQUE,
		attempts        INTEGER  NOT NULL DEFAULT 0 CHECK (attempts >= 0),
		last_error      TEXT     NOT NULL DEFAULT '',
		enqueued_at     DATETIME NOT NULL,
		updated_at      DATETIME NOT NULL,
		exhausted_at    DATETIME
	)`,
}

// Indexes may reference added columns, so they run after the upgrade.
var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_products_low_stock ON products (is_active, quantity)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements (product_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_pending ON sync_queue (attempts, id)`,
}

// Columns added after the first release. Databases created by older builds
// get them through ALTER TABLE.
var addedColumns = []struct {
	table  string
	column string
	ddl    string
}{
	{"products", "min_quantity", "INTEGER NOT NULL DEFAULT 5"},
	{"products", "is_active", "INTEGER NOT NULL DEFAULT 1"},
	{"stock_movements", "clamped", "INTEGER NOT NULL DEFAULT 0"},
	{"stock_movements", "sync_pending", "INTEGER NOT NULL DEFAULT 0"},
	{"sync_queue", "last_error", "TEXT NOT NULL DEFAULT ''"},
	{"sync_queue", "exhausted_at", "DATETIME"},
}

// Migrate creates the schema. Safe to run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	for _, c := range addedColumns {
		var names []string
		if err := tx.SelectContext(ctx, &names, `SELECT name FROM pragma_table_info(?)`, c.table); err != nil {
			return fmt.Errorf("migrate: inspect %s: %w", c.table, err)
		}
		if contains(names, c.column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.ddl)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: add %s.%s: %w", c.table, c.column, err)
		}
	}

	for _, stmt := range indexes {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return tx.Commit()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
