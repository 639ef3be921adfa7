// Package migrate discovers, orders, checksums, and applies the embedded
// SQL migrations for Memoir's two subsystems (memory, history).
//
// The shape (a slice of versioned SQL strings applied inside a
// transaction with a tracking table) follows the migration pattern in
// the teacher's sibling pack repo (other_examples/Adrian95-openchat's
// schema_version table), generalized to embedded files with checksums so
// drift between the embedded SQL and what was actually applied to a given
// database file can be detected (spec §4.2/§4.12 MigrationMismatch).
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/memory/*.sql
var memoryFS embed.FS

//go:embed sql/history/*.sql
var historyFS embed.FS

// Subsystem names one of Memoir's two independently migrated schemas.
type Subsystem string

const (
	SubsystemMemory  Subsystem = "memory"
	SubsystemHistory Subsystem = "history"
)

// Migration is one parsed, checksummed embedded SQL file.
type Migration struct {
	Version     int
	Filename    string
	Description string
	SQL         string
	Checksum    string
}

// Mismatch reports a migration whose embedded checksum no longer matches
// what was recorded as applied.
type Mismatch struct {
	Version         int
	Filename        string
	AppliedChecksum string
	CurrentChecksum string
}

var filenameRE = regexp.MustCompile(`^(\d{4,})_([a-z][a-z0-9_]*)\.sql$`)

func fsFor(subsystem Subsystem) (fs.FS, string, error) {
	switch subsystem {
	case SubsystemMemory:
		return memoryFS, "sql/memory", nil
	case SubsystemHistory:
		return historyFS, "sql/history", nil
	default:
		return nil, "", fmt.Errorf("migrate: unknown subsystem %q", subsystem)
	}
}

// MigrationsFor returns the embedded migrations for a subsystem, sorted
// by version. A malformed filename is a fatal load-time error per
// spec §4.2 ("Invalid names fail at load").
func MigrationsFor(subsystem Subsystem) ([]Migration, error) {
	fsys, dir, err := fsFor(subsystem)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", dir, err)
	}

	migrations := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m, err := parseFile(fsys, dir, e.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func parseFile(fsys fs.FS, dir, name string) (Migration, error) {
	match := filenameRE.FindStringSubmatch(name)
	if match == nil {
		return Migration{}, fmt.Errorf("migrate: invalid migration filename %q: want NNNN_snake_case_description.sql", name)
	}

	version, err := strconv.Atoi(match[1])
	if err != nil {
		return Migration{}, fmt.Errorf("migrate: invalid version in %q: %w", name, err)
	}

	content, err := fs.ReadFile(fsys, dir+"/"+name)
	if err != nil {
		return Migration{}, fmt.Errorf("migrate: read %s: %w", name, err)
	}

	return Migration{
		Version:     version,
		Filename:    name,
		Description: describeFrom(match[2]),
		SQL:         string(content),
		Checksum:    checksum(content),
	}, nil
}

func describeFrom(words string) string {
	return strings.ReplaceAll(words, "_", " ")
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func trackingTable(subsystem Subsystem) string {
	return fmt.Sprintf("x_%s_migrations", subsystem)
}

func ensureTrackingTable(ctx context.Context, db *sql.DB, subsystem Subsystem) error {
	table := trackingTable(subsystem)
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version     INTEGER PRIMARY KEY,
			filename    TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (unixepoch()),
			checksum    TEXT NOT NULL
		)`, table))
	if err != nil {
		return fmt.Errorf("migrate: ensure tracking table %s: %w", table, err)
	}
	return nil
}

// CurrentVersion reads MAX(version) from the subsystem's tracking table,
// or 0 if the table is absent or empty.
func CurrentVersion(ctx context.Context, db *sql.DB, subsystem Subsystem) (int, error) {
	table := trackingTable(subsystem)

	var version sql.NullInt64
	err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(version) FROM %s`, table)).Scan(&version)
	if err != nil {
		if isNoSuchTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("migrate: current version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// ApplyPending ensures the tracking table exists, then applies every
// migration with a version greater than the subsystem's current version.
// Each migration runs inside its own transaction: a failure rolls back
// that migration and stops, leaving the database at the previous version
// (spec §4.2/§4.12). A nil logger defaults to slog.Default(), matching
// store.Open's convention; a failed step is logged at Warn before its
// error is returned to the caller, and each successfully applied
// migration is logged at Info.
func ApplyPending(ctx context.Context, db *sql.DB, subsystem Subsystem, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureTrackingTable(ctx, db, subsystem); err != nil {
		logger.Warn("migrate: ensure tracking table failed", "subsystem", subsystem, "error", err)
		return err
	}

	migrations, err := MigrationsFor(subsystem)
	if err != nil {
		logger.Warn("migrate: load migrations failed", "subsystem", subsystem, "error", err)
		return err
	}

	current, err := CurrentVersion(ctx, db, subsystem)
	if err != nil {
		logger.Warn("migrate: read current version failed", "subsystem", subsystem, "error", err)
		return err
	}

	table := trackingTable(subsystem)
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		if err := applyOne(ctx, db, table, m); err != nil {
			logger.Warn("migrate: apply migration failed", "subsystem", subsystem, "file", m.Filename, "version", m.Version, "error", err)
			return fmt.Errorf("migrate: apply %s: %w", m.Filename, err)
		}
		logger.Info("migrate: applied migration", "subsystem", subsystem, "file", m.Filename, "version", m.Version)
	}

	return nil
}

func applyOne(ctx context.Context, db *sql.DB, table string, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (version, filename, applied_at, checksum) VALUES (?, ?, ?, ?)`, table),
		m.Version, m.Filename, time.Now().Unix(), m.Checksum)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Validate compares the stored checksum of each applied migration against
// the embedded file's current checksum and returns every mismatch found. A
// nil logger defaults to slog.Default(); every mismatch found is logged at
// Warn (spec §4.2/§4.12 MigrationMismatch).
func Validate(ctx context.Context, db *sql.DB, subsystem Subsystem, logger *slog.Logger) ([]Mismatch, error) {
	if logger == nil {
		logger = slog.Default()
	}

	migrations, err := MigrationsFor(subsystem)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	table := trackingTable(subsystem)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT version, filename, checksum FROM %s`, table))
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("migrate: validate: %w", err)
	}
	defer rows.Close()

	var mismatches []Mismatch
	for rows.Next() {
		var version int
		var filename, appliedChecksum string
		if err := rows.Scan(&version, &filename, &appliedChecksum); err != nil {
			return nil, err
		}
		m, ok := byVersion[version]
		if !ok {
			continue
		}
		if m.Checksum != appliedChecksum {
			logger.Warn("migrate: checksum mismatch", "subsystem", subsystem, "file", filename, "version", version,
				"applied_checksum", appliedChecksum, "current_checksum", m.Checksum)
			mismatches = append(mismatches, Mismatch{
				Version:         version,
				Filename:        filename,
				AppliedChecksum: appliedChecksum,
				CurrentChecksum: m.Checksum,
			})
		}
	}

	return mismatches, rows.Err()
}
