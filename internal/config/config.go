// Package config defines the settings record the core consumes. Loading
// it from a file, environment, or host-side config store is out of scope
// (spec §1); the host resolves a Settings value and hands it to the
// runtime context at startup.
package config

// Settings holds the subset of host configuration the core reads, per
// spec §6.
type Settings struct {
	Memory MemorySettings
	Chunks ChunkSettings
	Search SearchSettings
}

// MemorySettings configures the memory service (C8/C9).
type MemorySettings struct {
	// MaxInject bounds SearchRelevant's result count.
	MaxInject int
	// MaxSearchResults is the default limit for Search when the caller
	// doesn't supply one.
	MaxSearchResults int
	// KeywordDetection gates whether DetectKeyword ever delegates to the
	// keyword detector.
	KeywordDetection bool
	// CustomKeywords extends the default trigger-phrase set.
	CustomKeywords []string
}

// ChunkSettings configures the chunk service (C11).
type ChunkSettings struct {
	// MaxContentSize is advisory only per spec §9 Open Questions; chunk
	// content is stored verbatim regardless of its value.
	MaxContentSize int
	// MaxCompactionContext bounds how many active chunks a single
	// compaction call is expected to absorb. Nothing in this module reads
	// it: Compact absorbs every active chunk regardless of its value.
	MaxCompactionContext int
	// AutoArchiveDays has no transition trigger in scope (spec §9 Open
	// Questions); reserved for a future archival policy.
	AutoArchiveDays int
}

// SearchSettings configures the search layer (C7).
type SearchSettings struct {
	// Mode is reserved for future ranking-mode selection; the only mode
	// implemented today is BM25-backed FTS.
	Mode string
}

// Default returns the documented default settings. The services apply
// the same numeric fallbacks inline (`if limit <= 0 { limit = N }`) when
// MaxInject or a search limit is zero; a false KeywordDetection is
// honored as disabled rather than replaced by this default.
func Default() Settings {
	return Settings{
		Memory: MemorySettings{
			MaxInject:        5,
			MaxSearchResults: 20,
			KeywordDetection: true,
		},
		Chunks: ChunkSettings{
			MaxContentSize:       0,
			MaxCompactionContext: 20,
			AutoArchiveDays:      0,
		},
		Search: SearchSettings{
			Mode: "fts",
		},
	}
}
