package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

type Config struct {
	Path          string
	BusyTimeout   time.Duration
	MaxOpenConns  int
	DisableWAL    bool
	ConnMaxIdleMs int
}

// Open connects to the local SQLite file, creating its directory when needed.
// A single open connection is the default: SQLite serializes writers anyway
// and one connection keeps every transaction on the same handle.
func Open(ctx context.Context, cfg *Config) (*sqlx.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", cfg.Path, busy.Milliseconds())
	if !cfg.DisableWAL {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: connect %s: %w", cfg.Path, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if cfg.ConnMaxIdleMs > 0 {
		db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleMs) * time.Millisecond)
	}

	return db, nil
}
