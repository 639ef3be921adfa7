// Package history implements Memoir's chunk service (C11): session
// finalization, compaction delegation, tree expansion, and chunk search,
// built on top of the chunk repository, the tree engine, and the
// in-memory message tracker.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/memoir/memoir/internal/config"
	"github.com/memoir/memoir/internal/model"
	"github.com/memoir/memoir/internal/search"
	"github.com/memoir/memoir/internal/store"
	"github.com/memoir/memoir/internal/tracker"
	"github.com/memoir/memoir/internal/tree"
)

// Service wraps a ChunkRepo, the tree engine, and a message tracker.
type Service struct {
	repo     *store.ChunkRepo
	tree     *tree.Engine
	tracker  *tracker.Tracker
	settings config.ChunkSettings
}

// New constructs a Service.
func New(repo *store.ChunkRepo, engine *tree.Engine, tr *tracker.Tracker, settings config.ChunkSettings) *Service {
	return &Service{repo: repo, tree: engine, tracker: tr, settings: settings}
}

// Create is a thin wrapper over the repository.
func (s *Service) Create(ctx context.Context, sessionID string, content model.ChunkContent) (*model.Chunk, error) {
	return s.repo.Create(ctx, model.ChunkCreate{SessionID: sessionID, Content: content})
}

// Finalize reads the tracker's message list for session, derives
// tools_used/files_modified metadata, persists a new active chunk with
// the copied messages, stamps finalized_at, clears the session's
// tracked messages, and points the tracker's current chunk id at the
// new chunk. Returns nil, nil if the session has no tracked messages
// (spec §4.11).
func (s *Service) Finalize(ctx context.Context, sessionID string) (*model.Chunk, error) {
	tracked := s.tracker.GetMessages(sessionID)
	if len(tracked) == 0 {
		return nil, nil
	}

	messages := make([]model.ChunkMessage, len(tracked))
	toolsSeen := map[string]bool{}
	filesSeen := map[string]bool{}

	for i, tm := range tracked {
		messages[i] = model.ChunkMessage{
			ID:        tm.ID,
			Role:      tm.Role,
			Parts:     tm.Parts,
			Timestamp: tm.Timestamp,
		}
		for _, p := range tm.Parts {
			switch p.Type {
			case model.PartTool:
				if p.Tool != "" {
					toolsSeen[p.Tool] = true
				}
			case model.PartFile:
				if p.FilePath != "" {
					filesSeen[p.FilePath] = true
				}
			}
		}
	}

	var metadata model.ChunkMetadata
	if len(toolsSeen) > 0 {
		metadata.ToolsUsed = sortedKeys(toolsSeen)
	}
	if len(filesSeen) > 0 {
		metadata.FilesModified = sortedKeys(filesSeen)
	}

	created, err := s.repo.Create(ctx, model.ChunkCreate{
		SessionID: sessionID,
		Content:   model.ChunkContent{Messages: messages, Metadata: metadata},
	})
	if err != nil {
		return nil, fmt.Errorf("history: finalize: create: %w", err)
	}

	now := time.Now().Unix()
	finalized, err := s.repo.Update(ctx, created.ID, model.ChunkUpdate{FinalizedAt: &now})
	if err != nil {
		return nil, fmt.Errorf("history: finalize: update: %w", err)
	}

	s.tracker.ClearSession(sessionID)
	s.tracker.SetCurrentChunkID(sessionID, created.ID)

	return finalized, nil
}

// Compact collects a session's active chunks in chronological order and
// delegates to the tree engine for atomic compaction. Returns nil, nil
// if there are no active chunks.
func (s *Service) Compact(ctx context.Context, sessionID, summary string) (*tree.CompactResult, error) {
	active, err := s.repo.GetActive(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history: compact: list active: %w", err)
	}
	if len(active) == 0 {
		return nil, nil
	}

	ids := make([]string, len(active))
	for i, c := range active {
		ids[i] = c.ID
	}

	return s.tree.Compact(ctx, sessionID, ids, summary)
}

// Expand returns the chunk itself, plus its descendants (stripped of
// level) when includeChildren is true.
func (s *Service) Expand(ctx context.Context, id string, includeChildren bool) ([]model.Chunk, error) {
	chunk, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("history: expand: %w", err)
	}
	if chunk == nil {
		return nil, nil
	}
	if !includeChildren {
		return []model.Chunk{*chunk}, nil
	}

	nodes, err := s.tree.Descendants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("history: expand: descendants: %w", err)
	}
	out := make([]model.Chunk, len(nodes))
	for i, n := range nodes {
		out[i] = n.Chunk
	}
	return out, nil
}

// SearchParams holds the optional filters accepted by Search.
type SearchParams struct {
	SessionID   string
	MinDepth    int
	HasMinDepth bool
	Limit       int
}

// Search runs a ranked FTS query over chunks via the search compiler,
// defaulting Limit to 20 when unset. The configured
// Memory.MaxSearchResults setting is not consulted here.
func (s *Service) Search(ctx context.Context, db *sql.DB, query string, p SearchParams) ([]search.ChunkResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	return search.SearchChunks(ctx, db, search.ChunkSearchParams{
		Query:       query,
		SessionID:   p.SessionID,
		MinDepth:    p.MinDepth,
		HasMinDepth: p.HasMinDepth,
		Limit:       limit,
	})
}

// Get is a repository pass-through.
func (s *Service) Get(ctx context.Context, id string) (*model.Chunk, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete is a repository pass-through.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

// DeleteSession removes every chunk belonging to session and clears the
// tracker's tracked messages for it, returning the number of chunks
// deleted. The tracker's current chunk id for the session is left as is.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	chunks, err := s.repo.GetBySession(ctx, sessionID, model.ChunkListParams{})
	if err != nil {
		return 0, fmt.Errorf("history: delete_session: list: %w", err)
	}

	count := 0
	for _, c := range chunks {
		ok, err := s.repo.Delete(ctx, c.ID)
		if err != nil {
			return count, fmt.Errorf("history: delete_session: delete %s: %w", c.ID, err)
		}
		if ok {
			count++
		}
	}

	s.tracker.ClearSession(sessionID)
	return count, nil
}

// RecentSummaryChunks is a repository pass-through, defaulting limit to 5.
func (s *Service) RecentSummaryChunks(ctx context.Context, limit int) ([]model.Chunk, error) {
	return s.repo.RecentSummaries(ctx, limit)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
