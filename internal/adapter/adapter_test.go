package adapter

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/memoir/memoir/internal/config"
	"github.com/memoir/memoir/internal/history"
	"github.com/memoir/memoir/internal/memsvc"
	"github.com/memoir/memoir/internal/store"
	"github.com/memoir/memoir/internal/tracker"
	"github.com/memoir/memoir/internal/tree"
)

func newTestAdapter(t *testing.T) (*Adapter, *store.DB) {
	t.Helper()
	ctx := context.Background()
	d, err := store.Open(ctx, ":memory:", store.SubsystemsAll, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	memRepo, err := store.NewMemoryRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { memRepo.Close() })

	chunkRepo, err := store.NewChunkRepo(ctx, d.Conn())
	require.NoError(t, err)
	t.Cleanup(func() { chunkRepo.Close() })

	settings := config.Default()
	memories := memsvc.New(memRepo, d.Conn(), settings.Memory)
	chunks := history.New(chunkRepo, tree.NewEngine(d.Conn()), tracker.New(), settings.Chunks)

	return New(memories, chunks, d.Logger()), d
}

func callWith(a map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = a
	return req
}

func TestAddMemoryRejectsEmptyContent(t *testing.T) {
	a, _ := newTestAdapter(t)
	res, err := a.AddMemory(context.Background(), callWith(map[string]any{"type": "fact"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestAddMemoryRejectsInvalidType(t *testing.T) {
	a, _ := newTestAdapter(t)
	res, err := a.AddMemory(context.Background(), callWith(map[string]any{"content": "x", "type": "bogus"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestAddMemorySucceeds(t *testing.T) {
	a, _ := newTestAdapter(t)
	res, err := a.AddMemory(context.Background(), callWith(map[string]any{
		"content": "Always use strict mode",
		"type":    "preference",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestForgetMemoryUnknownID(t *testing.T) {
	a, _ := newTestAdapter(t)
	res, err := a.ForgetMemory(context.Background(), callWith(map[string]any{"id": "mem_doesnotexist0"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestExpandChunkRequiresID(t *testing.T) {
	a, _ := newTestAdapter(t)
	res, err := a.ExpandChunk(context.Background(), callWith(map[string]any{}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestSearchMemoryNoResults(t *testing.T) {
	a, _ := newTestAdapter(t)
	res, err := a.SearchMemory(context.Background(), callWith(map[string]any{"query": "nonexistent"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestHistorySearchNoResults(t *testing.T) {
	a, d := newTestAdapter(t)
	res, err := a.HistorySearch(context.Background(), d.Conn(), callWith(map[string]any{"query": "nonexistent"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
}
