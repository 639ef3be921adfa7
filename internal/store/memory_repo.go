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

// MemoryRepo implements CRUD, filtered listing, and counting over the
// memories table (spec §4.4).
type MemoryRepo struct {
	db     *sql.DB
	minter idgen.Minter

	getByIDStmt *sql.Stmt
	deleteStmt  *sql.Stmt
}

// NewMemoryRepo prepares the repository's fixed-shape statements against
// the given connection.
func NewMemoryRepo(ctx context.Context, db *sql.DB) (*MemoryRepo, error) {
	r := &MemoryRepo{db: db, minter: idgen.MemoryMinter()}

	var err error
	r.getByIDStmt, err = db.PrepareContext(ctx, `
		SELECT id, content, type, tags, source, created_at, updated_at, embedding
		FROM memories WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("memory_repo: prepare get_by_id: %w", err)
	}

	r.deleteStmt, err = db.PrepareContext(ctx, `DELETE FROM memories WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("memory_repo: prepare delete: %w", err)
	}

	return r, nil
}

// Close releases the repository's prepared statements.
func (r *MemoryRepo) Close() error {
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

// Create mints an id and writes a new memory row.
func (r *MemoryRepo) Create(ctx context.Context, in model.MemoryCreate) (*model.Memory, error) {
	id, err := r.minter.Mint()
	if err != nil {
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = model.SourceUser
	}

	tagsJSON, err := encodeTags(in.Tags)
	if err != nil {
		return nil, fmt.Errorf("memory_repo: encode tags: %w", err)
	}

	now := time.Now().Unix()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, type, tags, source, created_at, updated_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL)`,
		id, in.Content, string(in.Type), tagsJSON, string(source), now)
	if err != nil {
		return nil, fmt.Errorf("memory_repo: create: %w", err)
	}

	return &model.Memory{
		ID:        id,
		Content:   in.Content,
		Type:      in.Type,
		Tags:      in.Tags,
		Source:    source,
		CreatedAt: now,
	}, nil
}

// GetByID returns the memory row, or nil if it doesn't exist.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (*model.Memory, error) {
	row := r.getByIDStmt.QueryRowContext(ctx, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory_repo: get_by_id: %w", err)
	}
	return m, nil
}

// Update applies a dynamic field-level update and always bumps
// updated_at. If the row is missing, returns nil, nil (not-found is not
// an error). If no fields were provided, returns the existing row
// untouched.
func (r *MemoryRepo) Update(ctx context.Context, id string, in model.MemoryUpdate) (*model.Memory, error) {
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
		sets = append(sets, "content = ?")
		args = append(args, *in.Content)
	}
	if in.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, string(*in.Type))
	}
	if in.Tags != nil {
		tagsJSON, err := encodeTags(*in.Tags)
		if err != nil {
			return nil, fmt.Errorf("memory_repo: encode tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, tagsJSON)
	}

	if len(sets) == 0 {
		return existing, nil
	}

	now := time.Now().Unix()
	sets = append(sets, "updated_at = ?")
	args = append(args, now)
	args = append(args, id)

	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("memory_repo: update: %w", err)
	}

	return r.GetByID(ctx, id)
}

// Delete removes the row, reporting whether a row was actually removed.
func (r *MemoryRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.deleteStmt.ExecContext(ctx, id)
	if err != nil {
		return false, fmt.Errorf("memory_repo: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("memory_repo: delete: %w", err)
	}
	return n > 0, nil
}

// List returns memories ordered newest-first, with rowid as the
// same-second disambiguator, honoring an optional type filter.
func (r *MemoryRepo) List(ctx context.Context, p model.MemoryListParams) ([]model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, content, type, tags, source, created_at, updated_at, embedding FROM memories`
	var args []interface{}
	if p.Type != "" {
		query += ` WHERE type = ?`
		args = append(args, string(p.Type))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, p.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory_repo: list: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("memory_repo: list scan: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Count returns the number of memories, optionally filtered by type.
func (r *MemoryRepo) Count(ctx context.Context, memType model.MemoryType) (int, error) {
	query := `SELECT COUNT(*) FROM memories`
	var args []interface{}
	if memType != "" {
		query += ` WHERE type = ?`
		args = append(args, string(memType))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("memory_repo: count: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var m model.Memory
	var tagsJSON sql.NullString
	var updatedAt sql.NullInt64
	var embedding []byte
	var memType, source string

	if err := row.Scan(&m.ID, &m.Content, &memType, &tagsJSON, &source, &m.CreatedAt, &updatedAt, &embedding); err != nil {
		return nil, err
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
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}

	return &m, nil
}

func encodeTags(tags []string) (*string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
