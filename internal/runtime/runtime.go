// Package runtime holds Memoir's process-wide singleton lifecycle: the
// database handle, the memory service, the chunk service, and the
// message tracker, each created once at plugin startup and torn down
// at shutdown.
//
// The guarded lazy-init shape (a package-level value behind a mutex,
// with a distinct "not initialized" failure for Get before Init) is
// grounded on the sync.Once-cached singleton in
// scrypster-memento/internal/attribution/detector.go, generalized from
// a single cached value to a full service bundle with an explicit
// Reset for test isolation (spec §9 Design Notes).
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/memoir/memoir/internal/adapter"
	"github.com/memoir/memoir/internal/config"
	"github.com/memoir/memoir/internal/history"
	"github.com/memoir/memoir/internal/memsvc"
	"github.com/memoir/memoir/internal/store"
	"github.com/memoir/memoir/internal/tracker"
	"github.com/memoir/memoir/internal/tree"
)

// Context bundles the process-wide singletons.
type Context struct {
	DB        *store.DB
	Memories  *memsvc.Service
	Chunks    *history.Service
	Tracker   *tracker.Tracker
	Adapter   *adapter.Adapter
	Settings  config.Settings

	memRepo   *store.MemoryRepo
	chunkRepo *store.ChunkRepo
}

var (
	mu      sync.Mutex
	current *Context
)

// ErrNotInitialized is returned by Get when Init has not been called.
var ErrNotInitialized = fmt.Errorf("runtime: not initialized")

// Init opens the database at path, wires every service, and installs
// the result as the process-wide context. Calling Init again before
// Reset replaces the previous context without closing it; callers are
// expected to Reset first.
func Init(ctx context.Context, path string, settings config.Settings) (*Context, error) {
	mu.Lock()
	defer mu.Unlock()

	db, err := store.Open(ctx, path, store.SubsystemsAll, nil)
	if err != nil {
		return nil, fmt.Errorf("runtime: open store: %w", err)
	}

	memRepo, err := store.NewMemoryRepo(ctx, db.Conn())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runtime: memory repo: %w", err)
	}

	chunkRepo, err := store.NewChunkRepo(ctx, db.Conn())
	if err != nil {
		memRepo.Close()
		db.Close()
		return nil, fmt.Errorf("runtime: chunk repo: %w", err)
	}

	tr := tracker.New()
	engine := tree.NewEngine(db.Conn())

	memories := memsvc.New(memRepo, db.Conn(), settings.Memory)
	chunks := history.New(chunkRepo, engine, tr, settings.Chunks)

	c := &Context{
		DB:        db,
		Memories:  memories,
		Chunks:    chunks,
		Tracker:   tr,
		Adapter:   adapter.New(memories, chunks, db.Logger()),
		Settings:  settings,
		memRepo:   memRepo,
		chunkRepo: chunkRepo,
	}

	current = c
	return c, nil
}

// Get returns the active process-wide context, or ErrNotInitialized if
// Init has not been called since the last Reset.
func Get() (*Context, error) {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil, ErrNotInitialized
	}
	return current, nil
}

// Reset closes the active context's resources, if any, and clears the
// process-wide slot.
func Reset() error {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil
	}

	var firstErr error
	if err := current.memRepo.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := current.chunkRepo.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := current.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	current = nil
	return firstErr
}
