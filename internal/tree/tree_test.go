package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoir/memoir/internal/model"
	"github.com/memoir/memoir/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	d, err := store.Open(context.Background(), ":memory:", store.SubsystemsAll, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func createChunk(t *testing.T, ctx context.Context, repo *store.ChunkRepo, sessionID string, depth int, parentID *string) model.Chunk {
	t.Helper()
	c, err := repo.Create(ctx, model.ChunkCreate{SessionID: sessionID, Content: model.ChunkContent{}, Depth: depth, ParentID: parentID})
	require.NoError(t, err)
	return *c
}

func TestCompactAtomicity(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	engine := NewEngine(d.Conn())

	a := createChunk(t, ctx, repo, "S", 0, nil)
	b := createChunk(t, ctx, repo, "S", 1, nil)
	c := createChunk(t, ctx, repo, "S", 2, nil)

	result, err := engine.Compact(ctx, "S", []string{a.ID, b.ID, c.ID}, "summary")
	require.NoError(t, err)
	require.Equal(t, 3, result.Summary.Depth)
	require.Equal(t, []string{a.ID, b.ID, c.ID}, result.Summary.ChildRefs)
	require.Equal(t, model.ChunkActive, result.Summary.Status)

	for _, child := range result.Children {
		require.Equal(t, model.ChunkCompacted, child.Status)
		require.NotNil(t, child.ParentID)
		require.Equal(t, result.Summary.ID, *child.ParentID)
		require.NotNil(t, child.CompactedAt)
	}
}

func TestCompactMissingChunkLeavesRowsUnchanged(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	engine := NewEngine(d.Conn())

	a := createChunk(t, ctx, repo, "S", 0, nil)

	_, err = engine.Compact(ctx, "S", []string{a.ID, "ch_missing00001"}, "summary")
	require.Error(t, err)
	var missing *MissingChunksError
	require.True(t, errors.As(err, &missing))
	require.Contains(t, missing.IDs, "ch_missing00001")

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.ChunkActive, got.Status)
	require.Nil(t, got.ParentID)
}

func TestCompactEmptyList(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	engine := NewEngine(d.Conn())

	_, err := engine.Compact(ctx, "S", nil, "summary")
	require.ErrorIs(t, err, ErrEmptyChunkList)
}

func TestAncestorsRootFirst(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	engine := NewEngine(d.Conn())

	root := createChunk(t, ctx, repo, "S", 2, nil)
	mid := createChunk(t, ctx, repo, "S", 1, &root.ID)
	leaf := createChunk(t, ctx, repo, "S", 0, &mid.ID)

	nodes, err := engine.Ancestors(ctx, leaf.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	require.Equal(t, root.ID, nodes[0].Chunk.ID)
	require.Equal(t, mid.ID, nodes[1].Chunk.ID)
	require.Equal(t, leaf.ID, nodes[2].Chunk.ID)
	require.Equal(t, 0, nodes[2].Level)
	require.Equal(t, 2, nodes[0].Level)
}

func TestAncestorsMissingStartIsEmpty(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	engine := NewEngine(d.Conn())

	nodes, err := engine.Ancestors(ctx, "ch_doesnotexist1")
	require.NoError(t, err)
	require.Empty(t, nodes)
}

func TestDescendantsVisitEachOnceLevelAscending(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	engine := NewEngine(d.Conn())

	root := createChunk(t, ctx, repo, "S", 2, nil)
	childA := createChunk(t, ctx, repo, "S", 1, &root.ID)
	childB := createChunk(t, ctx, repo, "S", 1, &root.ID)
	grandchild := createChunk(t, ctx, repo, "S", 0, &childA.ID)

	nodes, err := engine.Descendants(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	require.Equal(t, root.ID, nodes[0].Chunk.ID)
	require.Equal(t, 0, nodes[0].Level)

	seen := map[string]bool{}
	for _, n := range nodes {
		require.False(t, seen[n.Chunk.ID], "duplicate visit of %s", n.Chunk.ID)
		seen[n.Chunk.ID] = true
	}
	require.True(t, seen[childA.ID])
	require.True(t, seen[childB.ID])
	require.True(t, seen[grandchild.ID])
}

func TestFullContextStripsLevel(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	engine := NewEngine(d.Conn())

	root := createChunk(t, ctx, repo, "S", 1, nil)
	leaf := createChunk(t, ctx, repo, "S", 0, &root.ID)

	chunks, err := engine.FullContext(ctx, leaf.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, root.ID, chunks[0].ID)
	require.Equal(t, leaf.ID, chunks[1].ID)
}
