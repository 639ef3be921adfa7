// Package adapter implements the tool side of Memoir's adapter boundary
// (C12): translating MCP tool invocations into calls against the memory
// service (C8) and chunk service (C11), and formatting their results
// back into mcp.CallToolResult values. It has no entry points for host
// events such as an incoming chat message or session compaction.
//
// Handler shape and argument extraction are grounded on
// DatanoiseTV-brainmcp/handlers.go's rememberHandler/askBrainHandler:
// pull typed fields out of request.Params.Arguments, validate locally,
// and translate failures into mcp.NewToolResultError rather than a Go
// error (the core never formats for the end user, per spec §7).
package adapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/memoir/memoir/internal/history"
	"github.com/memoir/memoir/internal/memsvc"
	"github.com/memoir/memoir/internal/model"
)

// Adapter binds the memory and chunk services to tool-facing entry
// points.
type Adapter struct {
	memories *memsvc.Service
	chunks   *history.Service
	logger   *slog.Logger
}

// New constructs an Adapter. A nil logger defaults to slog.Default(),
// matching store.Open's convention.
func New(memories *memsvc.Service, chunks *history.Service, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{memories: memories, chunks: chunks, logger: logger}
}

func args(request mcp.CallToolRequest) map[string]any {
	m, _ := request.Params.Arguments.(map[string]any)
	return m
}

func stringArg(a map[string]any, key string) string {
	v, _ := a[key].(string)
	return strings.TrimSpace(v)
}

func stringSliceArg(a map[string]any, key string) []string {
	raw, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func boolArg(a map[string]any, key string) bool {
	v, _ := a[key].(bool)
	return v
}

func intArg(a map[string]any, key string) (int, bool) {
	switch v := a[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// AddMemory handles the "add" tool over memories.
func (a *Adapter) AddMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := args(request)

	content := stringArg(in, "content")
	if content == "" {
		return mcp.NewToolResultError("content cannot be empty"), nil
	}

	memType := model.MemoryType(stringArg(in, "type"))
	if !model.ValidMemoryTypes[memType] {
		return mcp.NewToolResultError(fmt.Sprintf("invalid memory type %q", memType)), nil
	}

	tags := stringSliceArg(in, "tags")
	source := model.MemorySource(stringArg(in, "source"))
	if source != "" && !model.ValidMemorySources[source] {
		return mcp.NewToolResultError(fmt.Sprintf("invalid memory source %q", source)), nil
	}

	memory, err := a.memories.Add(ctx, content, memType, tags, source)
	if err != nil {
		a.logger.Error("adapter: add memory failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to save memory: %v", err)), nil
	}

	return a.toolResultJSON(memory)
}

// SearchMemory handles the "search" tool over memories.
func (a *Adapter) SearchMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := args(request)
	query := stringArg(in, "query")

	var p memsvc.SearchParams
	if limit, ok := intArg(in, "limit"); ok {
		p.Limit = limit
	}
	if t := model.MemoryType(stringArg(in, "type")); t != "" {
		p.Type = t
	}

	results, err := a.memories.Search(ctx, query, p)
	if err != nil {
		a.logger.Warn("adapter: search memory failed", "query", query, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No matching memories found."), nil
	}

	return a.toolResultJSON(results)
}

// ListMemory handles the "list" tool over memories.
func (a *Adapter) ListMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := args(request)

	p := model.MemoryListParams{Type: model.MemoryType(stringArg(in, "type"))}
	if limit, ok := intArg(in, "limit"); ok {
		p.Limit = limit
	}
	if offset, ok := intArg(in, "offset"); ok {
		p.Offset = offset
	}

	memories, err := a.memories.List(ctx, p)
	if err != nil {
		a.logger.Warn("adapter: list memory failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return a.toolResultJSON(memories)
}

// ForgetMemory handles the "forget" tool over memories.
func (a *Adapter) ForgetMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := args(request)
	id := stringArg(in, "id")
	if id == "" {
		return mcp.NewToolResultError("id cannot be empty"), nil
	}

	ok, err := a.memories.Forget(ctx, id)
	if err != nil {
		a.logger.Warn("adapter: forget memory failed", "id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("forget failed: %v", err)), nil
	}
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("No memory found with id %q.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory %q forgotten.", id)), nil
}

// ExpandChunk handles the "expand" tool over chunks.
func (a *Adapter) ExpandChunk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := args(request)
	id := stringArg(in, "chunk_id")
	if id == "" {
		return mcp.NewToolResultError("chunk_id cannot be empty"), nil
	}
	includeChildren := boolArg(in, "include_children")

	chunks, err := a.chunks.Expand(ctx, id, includeChildren)
	if err != nil {
		a.logger.Warn("adapter: expand chunk failed", "chunk_id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("expand failed: %v", err)), nil
	}
	if chunks == nil {
		return mcp.NewToolResultText(fmt.Sprintf("No chunk found with id %q.", id)), nil
	}
	return a.toolResultJSON(chunks)
}

// HistorySearch handles the "history" tool over chunks.
func (a *Adapter) HistorySearch(ctx context.Context, db *sql.DB, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := args(request)
	query := stringArg(in, "query")

	p := history.SearchParams{SessionID: stringArg(in, "session")}
	if limit, ok := intArg(in, "limit"); ok {
		p.Limit = limit
	}

	results, err := a.chunks.Search(ctx, db, query, p)
	if err != nil {
		a.logger.Warn("adapter: history search failed", "query", query, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("history search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No matching history found."), nil
	}
	return a.toolResultJSON(results)
}

func (a *Adapter) toolResultJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("adapter: format result failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
