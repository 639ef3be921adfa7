package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/memoir/memoir/internal/model"
)

// MemoryResult pairs a memory with its BM25 rank (lower is more
// relevant, per spec §4.7).
type MemoryResult struct {
	Memory model.Memory
	Rank   float64
}

// ChunkResult pairs a chunk with its BM25 rank.
type ChunkResult struct {
	Chunk model.Chunk
	Rank  float64
}

// MemorySearchParams holds the filters accepted by SearchMemories.
type MemorySearchParams struct {
	Query string
	Type  model.MemoryType
	Limit int
}

// ChunkSearchParams holds the filters accepted by SearchChunks.
type ChunkSearchParams struct {
	Query     string
	SessionID string
	// MinDepth, when HasMinDepth is true, filters to chunks with
	// depth >= MinDepth (inclusive, per spec §4.11).
	MinDepth    int
	HasMinDepth bool
	Limit       int
}

// SearchMemories compiles query into a safe MATCH expression and runs the
// ranked join against memories_fts. An empty compiled query returns an
// empty result set without executing a query (spec §4.7/§4.12).
func SearchMemories(ctx context.Context, db *sql.DB, p MemorySearchParams) ([]MemoryResult, error) {
	match := Compile(p.Query)
	if match == "" {
		return nil, nil
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT m.id, m.content, m.type, m.tags, m.source, m.created_at, m.updated_at, m.embedding,
		       bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?`
	args := []interface{}{match}

	if p.Type != "" {
		query += ` AND m.type = ?`
		args = append(args, string(p.Type))
	}
	query += ` ORDER BY rank ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryResult
	for rows.Next() {
		var m model.Memory
		var tagsJSON sql.NullString
		var updatedAt sql.NullInt64
		var embedding []byte
		var memType, source string
		var rank float64

		err := rows.Scan(&m.ID, &m.Content, &memType, &tagsJSON, &source, &m.CreatedAt, &updatedAt, &embedding, &rank)
		if err != nil {
			return nil, fmt.Errorf("search: scan memory: %w", err)
		}
		m.Type = model.MemoryType(memType)
		m.Source = model.MemorySource(source)
		m.Embedding = embedding
		if updatedAt.Valid {
			v := updatedAt.Int64
			m.UpdatedAt = &v
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &m.Tags); err != nil {
				return nil, fmt.Errorf("search: decode tags: %w", err)
			}
		}

		out = append(out, MemoryResult{Memory: m, Rank: rank})
	}
	return out, rows.Err()
}

// SearchChunks compiles query into a safe MATCH expression and runs the
// ranked join against chunks_fts, honoring optional session and minimum
// depth filters.
func SearchChunks(ctx context.Context, db *sql.DB, p ChunkSearchParams) ([]ChunkResult, error) {
	match := Compile(p.Query)
	if match == "" {
		return nil, nil
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT c.id, c.session_id, c.parent_id, c.depth, c.child_refs, c.content, c.summary,
		       c.status, c.created_at, c.finalized_at, c.compacted_at, c.embedding,
		       bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?`
	args := []interface{}{match}

	if p.SessionID != "" {
		query += ` AND c.session_id = ?`
		args = append(args, p.SessionID)
	}
	if p.HasMinDepth {
		query += ` AND c.depth >= ?`
		args = append(args, p.MinDepth)
	}
	query += ` ORDER BY rank ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkResult
	for rows.Next() {
		c, rank, err := scanChunkWithRank(rows)
		if err != nil {
			return nil, fmt.Errorf("search: scan chunk: %w", err)
		}
		out = append(out, ChunkResult{Chunk: c, Rank: rank})
	}
	return out, rows.Err()
}

func scanChunkWithRank(rows *sql.Rows) (model.Chunk, float64, error) {
	var c model.Chunk
	var parentID, childRefsJSON, summary sql.NullString
	var finalizedAt, compactedAt sql.NullInt64
	var contentJSON, status string
	var embedding []byte
	var rank float64

	err := rows.Scan(&c.ID, &c.SessionID, &parentID, &c.Depth, &childRefsJSON, &contentJSON,
		&summary, &status, &c.CreatedAt, &finalizedAt, &compactedAt, &embedding, &rank)
	if err != nil {
		return c, 0, err
	}

	c.Status = model.ChunkStatus(status)
	c.Embedding = embedding

	if err := json.Unmarshal([]byte(contentJSON), &c.Content); err != nil {
		return c, 0, fmt.Errorf("decode content: %w", err)
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
			return c, 0, fmt.Errorf("decode child_refs: %w", err)
		}
	}

	return c, rank, nil
}

// ByType returns memories of a given type, most-recent first, without
// invoking the FTS compiler.
func ByType(ctx context.Context, db *sql.DB, memType model.MemoryType, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, content, type, tags, source, created_at, updated_at, embedding
		FROM memories WHERE type = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, string(memType), limit)
	if err != nil {
		return nil, fmt.Errorf("search: by_type: %w", err)
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

// Recent returns the most recently created memories, without invoking
// the FTS compiler.
func Recent(ctx context.Context, db *sql.DB, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, content, type, tags, source, created_at, updated_at, embedding
		FROM memories ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("search: recent: %w", err)
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

func scanMemoryRows(rows *sql.Rows) ([]model.Memory, error) {
	var out []model.Memory
	for rows.Next() {
		var m model.Memory
		var tagsJSON sql.NullString
		var updatedAt sql.NullInt64
		var embedding []byte
		var memType, source string

		if err := rows.Scan(&m.ID, &m.Content, &memType, &tagsJSON, &source, &m.CreatedAt, &updatedAt, &embedding); err != nil {
			return nil, fmt.Errorf("search: scan: %w", err)
		}
		m.Type = model.MemoryType(memType)
		m.Source = model.MemorySource(source)
		m.Embedding = embedding
		if updatedAt.Valid {
			v := updatedAt.Int64
			m.UpdatedAt = &v
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &m.Tags); err != nil {
				return nil, fmt.Errorf("search: decode tags: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
