package migrate

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsForSortedByVersion(t *testing.T) {
	migrations, err := MigrationsFor(SubsystemMemory)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for i := 1; i < len(migrations); i++ {
		require.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
}

func TestApplyPendingIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyPending(ctx, db, SubsystemMemory, nil))
	v1, err := CurrentVersion(ctx, db, SubsystemMemory)
	require.NoError(t, err)
	require.Equal(t, 1, v1)

	require.NoError(t, ApplyPending(ctx, db, SubsystemMemory, nil))
	v2, err := CurrentVersion(ctx, db, SubsystemMemory)
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM x_memory_migrations").Scan(&count))
	require.Equal(t, 1, count)
}

func TestValidateDetectsTamperedChecksum(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, ApplyPending(ctx, db, SubsystemMemory, nil))

	mismatches, err := Validate(ctx, db, SubsystemMemory, nil)
	require.NoError(t, err)
	require.Empty(t, mismatches)

	_, err = db.ExecContext(ctx, `UPDATE x_memory_migrations SET checksum = 'tampered' WHERE version = 1`)
	require.NoError(t, err)

	mismatches, err = Validate(ctx, db, SubsystemMemory, nil)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Equal(t, 1, mismatches[0].Version)
}

func TestSubsystemsTrackIndependently(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyPending(ctx, db, SubsystemMemory, nil))
	require.NoError(t, ApplyPending(ctx, db, SubsystemHistory, nil))

	var tables int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('x_memory_migrations','x_history_migrations')`,
	).Scan(&tables)
	require.NoError(t, err)
	require.Equal(t, 2, tables)
}
