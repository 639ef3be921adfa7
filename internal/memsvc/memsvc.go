// Package memsvc implements Memoir's memory service (C8): the
// public-facing contract over the memories repository, plus relevance
// search and keyword-triggered save detection.
package memsvc

import (
	"context"
	"database/sql"
	"strings"

	"github.com/memoir/memoir/internal/config"
	"github.com/memoir/memoir/internal/keyword"
	"github.com/memoir/memoir/internal/model"
	"github.com/memoir/memoir/internal/search"
	"github.com/memoir/memoir/internal/store"
)

// Service wraps a MemoryRepo with search ranking, injection limits, and
// keyword detection.
type Service struct {
	repo     *store.MemoryRepo
	db       *sql.DB
	settings config.MemorySettings
	detector *keyword.Detector
}

// New constructs a Service. db is the store's raw connection, used
// directly by the search package's ranked queries.
func New(repo *store.MemoryRepo, db *sql.DB, settings config.MemorySettings) *Service {
	var det *keyword.Detector
	if settings.KeywordDetection {
		det = keyword.New(settings.CustomKeywords)
	}
	return &Service{repo: repo, db: db, settings: settings, detector: det}
}

// Add creates a new memory. Source defaults to "user" in the repository
// layer when left empty.
func (s *Service) Add(ctx context.Context, content string, memType model.MemoryType, tags []string, source model.MemorySource) (*model.Memory, error) {
	return s.repo.Create(ctx, model.MemoryCreate{
		Content: content,
		Type:    memType,
		Tags:    tags,
		Source:  source,
	})
}

// SearchParams holds the optional filters accepted by Search.
type SearchParams struct {
	Limit int
	Type  model.MemoryType
}

// Search runs a ranked FTS query, defaulting Limit to the configured
// max_search_results when unset.
func (s *Service) Search(ctx context.Context, query string, p SearchParams) ([]search.MemoryResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = s.settings.MaxSearchResults
	}
	return search.SearchMemories(ctx, s.db, search.MemorySearchParams{
		Query: query,
		Type:  p.Type,
		Limit: limit,
	})
}

// SearchRelevant is intended for first-message context injection: it
// caps results at max_inject and returns an empty slice outright when
// the trimmed query is shorter than 2 characters (spec §4.8).
func (s *Service) SearchRelevant(ctx context.Context, query string) ([]model.Memory, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return nil, nil
	}

	limit := s.settings.MaxInject
	if limit <= 0 {
		limit = 5
	}

	results, err := search.SearchMemories(ctx, s.db, search.MemorySearchParams{Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}

	out := make([]model.Memory, len(results))
	for i, r := range results {
		out[i] = r.Memory
	}
	return out, nil
}

// List is a repository pass-through.
func (s *Service) List(ctx context.Context, p model.MemoryListParams) ([]model.Memory, error) {
	return s.repo.List(ctx, p)
}

// Get is a repository pass-through.
func (s *Service) Get(ctx context.Context, id string) (*model.Memory, error) {
	return s.repo.GetByID(ctx, id)
}

// Update is a repository pass-through.
func (s *Service) Update(ctx context.Context, id string, in model.MemoryUpdate) (*model.Memory, error) {
	return s.repo.Update(ctx, id, in)
}

// Forget is a repository pass-through for delete.
func (s *Service) Forget(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

// DetectKeyword delegates to the keyword detector when keyword
// detection is enabled in config; otherwise it always returns false.
func (s *Service) DetectKeyword(text string) bool {
	if s.detector == nil {
		return false
	}
	return s.detector.Detect(text)
}
