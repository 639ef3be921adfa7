package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoir/memoir/internal/config"
	"github.com/memoir/memoir/internal/model"
	"github.com/memoir/memoir/internal/store"
	"github.com/memoir/memoir/internal/tracker"
	"github.com/memoir/memoir/internal/tree"
)

func newTestService(t *testing.T) (*Service, *store.DB, *tracker.Tracker) {
	t.Helper()
	ctx := context.Background()
	d, err := store.Open(ctx, ":memory:", store.SubsystemsAll, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	engine := tree.NewEngine(d.Conn())
	tr := tracker.New()

	return New(repo, engine, tr, config.Default().Chunks), d, tr
}

func TestFinalizeEmptyTrackerReturnsNil(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	got, err := s.Finalize(ctx, "S")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFinalizeDerivesMetadataAndClearsTracker(t *testing.T) {
	ctx := context.Background()
	s, _, tr := newTestService(t)

	tr.AddPart("S", "m1", "p1", model.Part{Type: model.PartText, Text: "let's refactor"}, model.RoleUser)
	tr.AddPart("S", "m2", "p1", model.Part{Type: model.PartTool, Tool: "grep", Input: "x"}, model.RoleAssistant)
	tr.AddPart("S", "m2", "p2", model.Part{Type: model.PartFile, FilePath: "main.go"}, model.RoleAssistant)

	chunk, err := s.Finalize(ctx, "S")
	require.NoError(t, err)
	require.NotNil(t, chunk)
	require.NotNil(t, chunk.FinalizedAt)
	require.Equal(t, []string{"grep"}, chunk.Content.Metadata.ToolsUsed)
	require.Equal(t, []string{"main.go"}, chunk.Content.Metadata.FilesModified)
	require.Len(t, chunk.Content.Messages, 2)

	require.False(t, tr.HasMessages("S"))
	id, ok := tr.GetCurrentChunkID("S")
	require.True(t, ok)
	require.Equal(t, chunk.ID, id)
}

func TestCompactNoActiveChunksReturnsNil(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	got, err := s.Compact(ctx, "S", "summary")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCompactDelegatesToTreeEngine(t *testing.T) {
	ctx := context.Background()
	s, d, _ := newTestService(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	_, err = repo.Create(ctx, model.ChunkCreate{SessionID: "S", Depth: 0})
	require.NoError(t, err)
	_, err = repo.Create(ctx, model.ChunkCreate{SessionID: "S", Depth: 1})
	require.NoError(t, err)

	result, err := s.Compact(ctx, "S", "summary")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 2, result.Summary.Depth)
	require.Len(t, result.Children, 2)
}

func TestExpandWithAndWithoutChildren(t *testing.T) {
	ctx := context.Background()
	s, d, _ := newTestService(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	root, err := repo.Create(ctx, model.ChunkCreate{SessionID: "S", Depth: 1})
	require.NoError(t, err)
	_, err = repo.Create(ctx, model.ChunkCreate{SessionID: "S", Depth: 0, ParentID: &root.ID})
	require.NoError(t, err)

	single, err := s.Expand(ctx, root.ID, false)
	require.NoError(t, err)
	require.Len(t, single, 1)

	withChildren, err := s.Expand(ctx, root.ID, true)
	require.NoError(t, err)
	require.Len(t, withChildren, 2)
}

func TestExpandMissingChunkReturnsNil(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	got, err := s.Expand(ctx, "ch_doesnotexist1", false)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteSessionRemovesChunksAndClearsTracker(t *testing.T) {
	ctx := context.Background()
	s, d, tr := newTestService(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	_, err = repo.Create(ctx, model.ChunkCreate{SessionID: "S", Depth: 0})
	require.NoError(t, err)
	_, err = repo.Create(ctx, model.ChunkCreate{SessionID: "S", Depth: 0})
	require.NoError(t, err)
	tr.TrackMessage("S", tracker.TrackedMessage{ID: "m1", Role: model.RoleUser})

	count, err := s.DeleteSession(ctx, "S")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.False(t, tr.HasMessages("S"))
}

func TestRecentSummaryChunksDefaultsLimit(t *testing.T) {
	ctx := context.Background()
	s, d, _ := newTestService(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	summary := "done"
	_, err = repo.Create(ctx, model.ChunkCreate{SessionID: "S", Depth: 1, Summary: &summary})
	require.NoError(t, err)

	got, err := s.RecentSummaryChunks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
