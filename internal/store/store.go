// Package store implements Memoir's persistence engine: the store
// factory (C3) plus the memory (C4) and chunk (C5) repositories. The
// structure (a SQLite-backed type with a *sql.DB, WAL + foreign_keys
// pragmas baked into the DSN, and a migrate-on-open step) mirrors the
// teacher's internal/store/sqlite.go almost exactly; the schema and
// repository surface are rebuilt for Memoir's memory/chunk domain.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/memoir/memoir/internal/migrate"
)

// Subsystems selects which subsystem(s) a Store should migrate on open,
// per spec §4.3.
type Subsystems string

const (
	SubsystemsAll     Subsystems = "all"
	SubsystemsMemory  Subsystems = "memory"
	SubsystemsHistory Subsystems = "history"
	SubsystemsNone    Subsystems = "none"
)

// DB wraps the shared SQLite handle. Repositories borrow it; only Close
// on the DB itself actually releases the connection.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Conn exposes the underlying *sql.DB for packages (tree, search) that
// issue their own SQL against the same handle.
func (d *DB) Conn() *sql.DB { return d.conn }

// Logger exposes the DB's logger so other services wired against the
// same store share one destination for Warn/Error output.
func (d *DB) Logger() *slog.Logger { return d.logger }

// Open opens (creating if absent) the SQLite database at path, enables
// WAL journaling and foreign-key enforcement, best-effort loads a vector
// search extension, and migrates the requested subsystem set.
func Open(ctx context.Context, path string, subsystems Subsystems, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	d := &DB{conn: conn, logger: logger}

	loadVectorExtension(ctx, conn, logger)

	if err := d.migrateSubsystems(ctx, subsystems); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return d, nil
}

func (d *DB) migrateSubsystems(ctx context.Context, subsystems Subsystems) error {
	switch subsystems {
	case SubsystemsNone:
		return nil
	case SubsystemsMemory:
		return migrate.ApplyPending(ctx, d.conn, migrate.SubsystemMemory, d.logger)
	case SubsystemsHistory:
		return migrate.ApplyPending(ctx, d.conn, migrate.SubsystemHistory, d.logger)
	case SubsystemsAll, "":
		if err := migrate.ApplyPending(ctx, d.conn, migrate.SubsystemMemory, d.logger); err != nil {
			return err
		}
		return migrate.ApplyPending(ctx, d.conn, migrate.SubsystemHistory, d.logger)
	default:
		return fmt.Errorf("store: unknown subsystem set %q", subsystems)
	}
}

// Close releases the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}
