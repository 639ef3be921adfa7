package store

import (
	"context"
	"database/sql"
	"log/slog"
)

// loadVectorExtension best-effort enables a vector-search extension on
// the given connection, mirroring the auto-extension registration in
// dan-solli-gognee's pkg/store/sqlite_vec_cgo.go (EnableSQLiteVec). That
// approach relies on cgo and a bundled sqlite-vec amalgamation; Memoir's
// driver is the pure-Go modernc.org/sqlite, which has no such hook, so
// the probe below always fails on this driver. Per spec §4.3/§4.12 that
// failure must be logged and ignored, never surfaced to the caller;
// vector operations simply have no backing, which matches the schema's
// unread embedding column (spec §9 Open Questions).
func loadVectorExtension(ctx context.Context, conn *sql.DB, logger *slog.Logger) {
	_, err := conn.ExecContext(ctx, `SELECT vec_version()`)
	if err != nil {
		logger.Warn("vector search extension unavailable, continuing without it", "error", err)
		return
	}
	logger.Info("vector search extension loaded")
}
