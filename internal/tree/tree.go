// Package tree implements Memoir's chunk tree engine (C6): ancestor and
// descendant traversal via recursive CTEs, and atomic compaction of N
// active chunks into a new summary chunk.
//
// The recursive-ascent query is grounded on the parent-chain walk in
// other_examples/joestump-claude-ops__db.go's GetEscalationChain (a
// WITH RECURSIVE over a parent_session_id self-reference); the
// depth-tagged recursive descent is grounded on the blocked_transitively
// CTE in other_examples/untoldecay-BeadsLog__schema.go, which propagates
// a level counter down a parent-child hierarchy the same way. Neither
// traversal materializes an intermediate array in Go; the level count
// and the ordering are both pushed into SQL, per spec §9 Design Notes.
package tree

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

// Engine runs tree traversal and compaction queries against the chunks
// table.
type Engine struct {
	db     *sql.DB
	minter idgen.Minter
}

// NewEngine returns a tree Engine bound to the given connection.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db, minter: idgen.ChunkMinter()}
}

// ErrEmptyChunkList is returned by Compact when chunkIDs is empty.
var ErrEmptyChunkList = fmt.Errorf("tree: chunk id list is empty")

// MissingChunksError reports that Compact was asked to absorb one or
// more chunk ids that don't resolve to an existing row.
type MissingChunksError struct {
	IDs []string
}

func (e *MissingChunksError) Error() string {
	return fmt.Sprintf("tree: missing chunks: %s", strings.Join(e.IDs, ", "))
}

// CompactResult is the outcome of a successful Compact call.
type CompactResult struct {
	Summary  model.Chunk
	Children []model.Chunk
}

// Ancestors walks parent_id links upward from id, tagging each row with
// a level (0 at id, increasing toward the root), and returns them
// root-first. A missing start id yields an empty, non-error result.
func (e *Engine) Ancestors(ctx context.Context, id string) ([]model.TreeNode, error) {
	const query = `
		WITH RECURSIVE ancestry(id, session_id, parent_id, depth, child_refs, content, summary,
		                         status, created_at, finalized_at, compacted_at, embedding, level) AS (
			SELECT id, session_id, parent_id, depth, child_refs, content, summary,
			       status, created_at, finalized_at, compacted_at, embedding, 0
			FROM chunks WHERE id = ?
			UNION ALL
			SELECT c.id, c.session_id, c.parent_id, c.depth, c.child_refs, c.content, c.summary,
			       c.status, c.created_at, c.finalized_at, c.compacted_at, c.embedding, a.level + 1
			FROM chunks c
			JOIN ancestry a ON c.id = a.parent_id
		)
		SELECT id, session_id, parent_id, depth, child_refs, content, summary,
		       status, created_at, finalized_at, compacted_at, embedding, level
		FROM ancestry
		ORDER BY level DESC`

	return e.queryTreeNodes(ctx, query, id)
}

// Descendants walks parent_id links downward from id, tagging each row
// with a level (0 at id, increasing with depth), ordered level-ascending.
// A missing start id yields an empty, non-error result.
func (e *Engine) Descendants(ctx context.Context, id string) ([]model.TreeNode, error) {
	const query = `
		WITH RECURSIVE descent(id, session_id, parent_id, depth, child_refs, content, summary,
		                        status, created_at, finalized_at, compacted_at, embedding, level) AS (
			SELECT id, session_id, parent_id, depth, child_refs, content, summary,
			       status, created_at, finalized_at, compacted_at, embedding, 0
			FROM chunks WHERE id = ?
			UNION ALL
			SELECT c.id, c.session_id, c.parent_id, c.depth, c.child_refs, c.content, c.summary,
			       c.status, c.created_at, c.finalized_at, c.compacted_at, c.embedding, d.level + 1
			FROM chunks c
			JOIN descent d ON c.parent_id = d.id
		)
		SELECT id, session_id, parent_id, depth, child_refs, content, summary,
		       status, created_at, finalized_at, compacted_at, embedding, level
		FROM descent
		ORDER BY level ASC`

	return e.queryTreeNodes(ctx, query, id)
}

// FullContext returns Ancestors(id) with the level counter stripped,
// reconstructing the path from root to target.
func (e *Engine) FullContext(ctx context.Context, id string) ([]model.Chunk, error) {
	nodes, err := e.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	chunks := make([]model.Chunk, len(nodes))
	for i, n := range nodes {
		chunks[i] = n.Chunk
	}
	return chunks, nil
}

func (e *Engine) queryTreeNodes(ctx context.Context, query string, id string) ([]model.TreeNode, error) {
	rows, err := e.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("tree: query: %w", err)
	}
	defer rows.Close()

	var out []model.TreeNode
	for rows.Next() {
		c, level, err := scanTreeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("tree: scan: %w", err)
		}
		out = append(out, model.TreeNode{Chunk: c, Level: level})
	}
	return out, rows.Err()
}

func scanTreeRow(row *sql.Rows) (model.Chunk, int, error) {
	var c model.Chunk
	var parentID, childRefsJSON, summary sql.NullString
	var finalizedAt, compactedAt sql.NullInt64
	var contentJSON, status string
	var embedding []byte
	var level int

	err := row.Scan(&c.ID, &c.SessionID, &parentID, &c.Depth, &childRefsJSON, &contentJSON,
		&summary, &status, &c.CreatedAt, &finalizedAt, &compactedAt, &embedding, &level)
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

	return c, level, nil
}

// Compact atomically binds the given active chunks under a newly created
// summary chunk and flips their status to compacted. Either every row
// changes together or none do (spec §4.6).
func (e *Engine) Compact(ctx context.Context, sessionID string, chunkIDs []string, summary string) (*CompactResult, error) {
	if len(chunkIDs) == 0 {
		return nil, ErrEmptyChunkList
	}

	children, err := e.loadChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	maxDepth := 0
	for _, c := range children {
		if c.Depth > maxDepth {
			maxDepth = c.Depth
		}
	}
	summaryDepth := maxDepth + 1

	newID, err := e.minter.Mint()
	if err != nil {
		return nil, err
	}

	childRefsJSON, err := json.Marshal(chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("tree: encode child_refs: %w", err)
	}

	emptyContent, err := json.Marshal(model.ChunkContent{Messages: []model.ChunkMessage{}, Metadata: model.ChunkMetadata{}})
	if err != nil {
		return nil, fmt.Errorf("tree: encode content: %w", err)
	}

	now := time.Now().Unix()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("tree: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (id, session_id, parent_id, depth, child_refs, content, summary,
		                     status, created_at, finalized_at, compacted_at, embedding)
		VALUES (?, ?, NULL, ?, ?, ?, ?, 'active', ?, NULL, NULL, NULL)`,
		newID, sessionID, summaryDepth, string(childRefsJSON), string(emptyContent), summary, now)
	if err != nil {
		return nil, fmt.Errorf("tree: insert summary: %w", err)
	}

	for _, id := range chunkIDs {
		_, err = tx.ExecContext(ctx, `
			UPDATE chunks SET parent_id = ?, status = 'compacted', compacted_at = ? WHERE id = ?`,
			newID, now, id)
		if err != nil {
			return nil, fmt.Errorf("tree: compact child %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tree: commit: %w", err)
	}

	newSummary := model.Chunk{
		ID:        newID,
		SessionID: sessionID,
		Depth:     summaryDepth,
		ChildRefs: chunkIDs,
		Content:   model.ChunkContent{Messages: []model.ChunkMessage{}, Metadata: model.ChunkMetadata{}},
		Summary:   &summary,
		Status:    model.ChunkActive,
		CreatedAt: now,
	}

	reloaded, err := e.loadChunks(ctx, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("tree: reload children: %w", err)
	}

	return &CompactResult{Summary: newSummary, Children: reloaded}, nil
}

func (e *Engine) loadChunks(ctx context.Context, ids []string) ([]model.Chunk, error) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, session_id, parent_id, depth, child_refs, content, summary,
		       status, created_at, finalized_at, compacted_at, embedding
		FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tree: load chunks: %w", err)
	}
	defer rows.Close()

	found := make(map[string]model.Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, fmt.Errorf("tree: scan: %w", err)
		}
		found[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	ordered := make([]model.Chunk, 0, len(ids))
	for _, id := range ids {
		c, ok := found[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, c)
	}
	if len(missing) > 0 {
		return nil, &MissingChunksError{IDs: missing}
	}

	return ordered, nil
}

func scanChunkRow(row *sql.Rows) (model.Chunk, error) {
	var c model.Chunk
	var parentID, childRefsJSON, summary sql.NullString
	var finalizedAt, compactedAt sql.NullInt64
	var contentJSON, status string
	var embedding []byte

	err := row.Scan(&c.ID, &c.SessionID, &parentID, &c.Depth, &childRefsJSON, &contentJSON,
		&summary, &status, &c.CreatedAt, &finalizedAt, &compactedAt, &embedding)
	if err != nil {
		return c, err
	}

	c.Status = model.ChunkStatus(status)
	c.Embedding = embedding

	if err := json.Unmarshal([]byte(contentJSON), &c.Content); err != nil {
		return c, fmt.Errorf("decode content: %w", err)
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
			return c, fmt.Errorf("decode child_refs: %w", err)
		}
	}

	return c, nil
}
