package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memoir/memoir/internal/idgen"
	"github.com/memoir/memoir/internal/model"
)

// ChunkRepo implements CRUD, session/parent queries, and the
// recent-summary query over the chunks table (spec §4.5).
type ChunkRepo struct {
	db     *sql.DB
	minter idgen.Minter

	getByIDStmt *sql.Stmt
	deleteStmt  *sql.Stmt
}

// NewChunkRepo prepares the repository's fixed-shape statements.
func NewChunkRepo(ctx context.Context, db *sql.DB) (*ChunkRepo, error) {
	r := &ChunkRepo{db: db, minter: idgen.ChunkMinter()}

	var err error
	r.getByIDStmt, err = db.PrepareContext(ctx, `
		SELECT id, session_id, parent_id, depth, child_refs, content, summary,
		       status, created_at, finalized_at, compacted_at, embedding
		FROM chunks WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("chunk_repo: prepare get_by_id: %w", err)
	}

	r.deleteStmt, err = db.PrepareContext(ctx, `DELETE FROM chunks WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("chunk_repo: prepare delete: %w", err)
	}

	return r, nil
}

// Close releases the repository's prepared statements.
func (r *ChunkRepo) Close() error {
	var firstErr error
	for _, s := range []*sql.Stmt{r.getByIDStmt, r.deleteStmt} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Create mints an id and writes a new active chunk row.
func (r *ChunkRepo) Create(ctx context.Context, in model.ChunkCreate) (*model.Chunk, error) {
	id, err := r.minter.Mint()
	if err != nil {
		return nil, err
	}

	contentJSON, err := json.Marshal(in.Content)
	if err != nil {
		return nil, fmt.Errorf("chunk_repo: encode content: %w", err)
	}

	now := time.Now().Unix()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO chunks (id, session_id, parent_id, depth, child_refs, content, summary,
		                     status, created_at, finalized_at, compacted_at, embedding)
		VALUES (?, ?, ?, ?, NULL, ?, ?, 'active', ?, NULL, NULL, NULL)`,
		id, in.SessionID, in.ParentID, in.Depth, string(contentJSON), in.Summary, now)
	if err != nil {
		return nil, fmt.Errorf("chunk_repo: create: %w", err)
	}

	return &model.Chunk{
		ID:        id,
		SessionID: in.SessionID,
		ParentID:  in.ParentID,
		Depth:     in.Depth,
		Content:   in.Content,
		Summary:   in.Summary,
		Status:    model.ChunkActive,
		CreatedAt: now,
	}, nil
}

// GetByID returns the chunk row, or nil if it doesn't exist.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*model.Chunk, error) {
	row := r.getByIDStmt.QueryRowContext(ctx, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chunk_repo: get_by_id: %w", err)
	}
	return c, nil
}

// Update applies a dynamic field-level update. If the row is missing,
// returns nil, nil. If no fields were provided, returns the existing row
// untouched.
func (r *ChunkRepo) Update(ctx context.Context, id string, in model.ChunkUpdate) (*model.Chunk, error) {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	var sets []string
	var args []interface{}

	if in.Content != nil {
		b, err := json.Marshal(*in.Content)
		if err != nil {
			return nil, fmt.Errorf("chunk_repo: encode content: %w", err)
		}
		sets = append(sets, "content = ?")
		args = append(args, string(b))
	}
	if in.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *in.Summary)
	}
	if in.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*in.Status))
	}
	if in.ChildRefs != nil {
		b, err := json.Marshal(*in.ChildRefs)
		if err != nil {
			return nil, fmt.Errorf("chunk_repo: encode child_refs: %w", err)
		}
		sets = append(sets, "child_refs = ?")
		args = append(args, string(b))
	}
	if in.FinalizedAt != nil {
		sets = append(sets, "finalized_at = ?")
		args = append(args, *in.FinalizedAt)
	}
	if in.CompactedAt != nil {
		sets = append(sets, "compacted_at = ?")
		args = append(args, *in.CompactedAt)
	}

	if len(sets) == 0 {
		return existing, nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE chunks SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("chunk_repo: update: %w", err)
	}

	return r.GetByID(ctx, id)
}

// Delete removes the row, reporting whether a row was actually removed.
func (r *ChunkRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.deleteStmt.ExecContext(ctx, id)
	if err != nil {
		return false, fmt.Errorf("chunk_repo: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("chunk_repo: delete: %w", err)
	}
	return n > 0, nil
}

// GetBySession returns a session's chunks ordered oldest-first, honoring
// an optional status filter.
func (r *ChunkRepo) GetBySession(ctx context.Context, sessionID string, p model.ChunkListParams) ([]model.Chunk, error) {
	query := `
		SELECT id, session_id, parent_id, depth, child_refs, content, summary,
		       status, created_at, finalized_at, compacted_at, embedding
		FROM chunks WHERE session_id = ?`
	args := []interface{}{sessionID}
	if p.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(p.Status))
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	return r.queryChunks(ctx, query, args...)
}

// GetActive is sugar for GetBySession with status=active.
func (r *ChunkRepo) GetActive(ctx context.Context, sessionID string) ([]model.Chunk, error) {
	return r.GetBySession(ctx, sessionID, model.ChunkListParams{Status: model.ChunkActive})
}

// GetChildren returns a chunk's direct children, ordered oldest-first.
func (r *ChunkRepo) GetChildren(ctx context.Context, parentID string) ([]model.Chunk, error) {
	query := `
		SELECT id, session_id, parent_id, depth, child_refs, content, summary,
		       status, created_at, finalized_at, compacted_at, embedding
		FROM chunks WHERE parent_id = ? ORDER BY created_at ASC, rowid ASC`
	return r.queryChunks(ctx, query, parentID)
}

// Count returns the number of chunks, optionally filtered by session.
func (r *ChunkRepo) Count(ctx context.Context, sessionID string) (int, error) {
	query := `SELECT COUNT(*) FROM chunks`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("chunk_repo: count: %w", err)
	}
	return count, nil
}

// RecentSummaries returns the most recently created summary chunks
// (depth > 0, summary set), newest-first.
func (r *ChunkRepo) RecentSummaries(ctx context.Context, limit int) ([]model.Chunk, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `
		SELECT id, session_id, parent_id, depth, child_refs, content, summary,
		       status, created_at, finalized_at, compacted_at, embedding
		FROM chunks
		WHERE depth > 0 AND summary IS NOT NULL
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`
	return r.queryChunks(ctx, query, limit)
}

func (r *ChunkRepo) queryChunks(ctx context.Context, query string, args ...interface{}) ([]model.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk_repo: query: %w", err)
	}
	defer rows.Close()

	var out []model.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("chunk_repo: scan: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanChunk(row rowScanner) (*model.Chunk, error) {
	var c model.Chunk
	var parentID, childRefsJSON, summary sql.NullString
	var finalizedAt, compactedAt sql.NullInt64
	var contentJSON string
	var status string
	var embedding []byte

	err := row.Scan(&c.ID, &c.SessionID, &parentID, &c.Depth, &childRefsJSON, &contentJSON,
		&summary, &status, &c.CreatedAt, &finalizedAt, &compactedAt, &embedding)
	if err != nil {
		return nil, err
	}

	c.Status = model.ChunkStatus(status)
	c.Embedding = embedding

	if err := json.Unmarshal([]byte(contentJSON), &c.Content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if parentID.Valid {
		v := parentID.String
		c.ParentID = &v
	}
	if summary.Valid {
		v := summary.String
		c.Summary = &v
	}
	if finalizedAt.Valid {
		v := finalizedAt.Int64
		c.FinalizedAt = &v
	}
	if compactedAt.Valid {
		v := compactedAt.Int64
		c.CompactedAt = &v
	}
	if childRefsJSON.Valid && childRefsJSON.String != "" {
		if err := json.Unmarshal([]byte(childRefsJSON.String), &c.ChildRefs); err != nil {
			return nil, fmt.Errorf("decode child_refs: %w", err)
		}
	}

	return &c, nil
}
