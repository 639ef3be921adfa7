package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/memoir/memoir/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), ":memory:", SubsystemsAll, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := NewMemoryRepo(ctx, d.Conn())
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	mem, err := repo.Create(ctx, model.MemoryCreate{
		Content: "Always use strict mode",
		Type:    model.MemoryPreference,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !regexp.MustCompile(`^mem_[0-9A-Za-z]{12}$`).MatchString(mem.ID) {
		t.Fatalf("unexpected id shape: %s", mem.ID)
	}
	if mem.Source != model.SourceUser {
		t.Fatalf("expected default source user, got %s", mem.Source)
	}
	if mem.UpdatedAt != nil {
		t.Fatalf("expected nil updated_at on create")
	}

	newContent := "Use strict mode"
	updated, err := repo.Update(ctx, mem.ID, model.MemoryUpdate{Content: &newContent})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt == nil {
		t.Fatalf("expected non-nil updated_at after update")
	}

	got, err := repo.GetByID(ctx, mem.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "Use strict mode" {
		t.Fatalf("expected updated content, got %q", got.Content)
	}

	ok, err := repo.Delete(ctx, mem.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !ok {
		t.Fatalf("expected delete to report true")
	}

	ok, err = repo.Delete(ctx, mem.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if ok {
		t.Fatalf("expected second delete to report false")
	}

	got, err = repo.GetByID(ctx, mem.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected absent memory after delete")
	}
}

func TestMemoryUpdateNoFieldsIsNoop(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := NewMemoryRepo(ctx, d.Conn())
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	mem, err := repo.Create(ctx, model.MemoryCreate{Content: "x", Type: model.MemoryFact})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := repo.Update(ctx, mem.ID, model.MemoryUpdate{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt != nil {
		t.Fatalf("expected untouched row, updated_at still nil")
	}
}

func TestMemoryUpdateMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := NewMemoryRepo(ctx, d.Conn())
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	newContent := "y"
	got, err := repo.Update(ctx, "mem_doesnotexist0001", model.MemoryUpdate{Content: &newContent})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing row")
	}
}

func TestMemoryListOrderingAndFilter(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := NewMemoryRepo(ctx, d.Conn())
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, model.MemoryCreate{Content: "c", Type: model.MemoryFact}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := repo.Create(ctx, model.MemoryCreate{Content: "p", Type: model.MemoryPattern}); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := repo.List(ctx, model.MemoryListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 memories, got %d", len(all))
	}

	facts, err := repo.List(ctx, model.MemoryListParams{Type: model.MemoryFact})
	if err != nil {
		t.Fatalf("list facts: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(facts))
	}

	count, err := repo.Count(ctx, model.MemoryPattern)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 pattern, got %d", count)
	}
}
