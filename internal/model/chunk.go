package model

// ChunkStatus enumerates the allowed values for Chunk.Status.
type ChunkStatus string

const (
	ChunkActive    ChunkStatus = "active"
	ChunkCompacted ChunkStatus = "compacted"
	ChunkArchived  ChunkStatus = "archived"
)

// ValidChunkStatuses holds the enumerated set from spec §3.
var ValidChunkStatuses = map[ChunkStatus]bool{
	ChunkActive:    true,
	ChunkCompacted: true,
	ChunkArchived:  true,
}

// PartType enumerates the tagged variants a Part may hold.
type PartType string

const (
	PartText      PartType = "text"
	PartTool      PartType = "tool"
	PartFile      PartType = "file"
	PartReasoning PartType = "reasoning"
)

// Part is a single tagged-union segment of a ChunkMessage. It is a flat
// struct serialized with its own field tags: the persisted JSON carries
// type plus whichever of text, tool, input, output, file and reasoning
// are set. A file part's path is stored under "file" and a reasoning
// part's text under "reasoning", not under "text".
type Part struct {
	Type      PartType `json:"type"`
	Text      string   `json:"text,omitempty"`
	Tool      string   `json:"tool,omitempty"`
	Input     string   `json:"input,omitempty"`
	Output    string   `json:"output,omitempty"`
	FilePath  string   `json:"file,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// Role enumerates the allowed values for ChunkMessage.Role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChunkMessage is one message inside a Chunk's content envelope.
type ChunkMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Parts     []Part `json:"parts"`
	Timestamp int64  `json:"timestamp"`
}

// ChunkMetadata is the derived-metadata portion of a Chunk's content
// envelope.
type ChunkMetadata struct {
	ToolsUsed     []string `json:"tools_used,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	Outcome       string   `json:"outcome,omitempty"`
}

// ChunkContent is the JSON envelope persisted in Chunk.Content.
type ChunkContent struct {
	Messages []ChunkMessage `json:"messages"`
	Metadata ChunkMetadata  `json:"metadata"`
}

// Chunk is a persisted segment of a session, arranged in a tree via
// ParentID.
type Chunk struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"session_id"`
	ParentID     *string     `json:"parent_id,omitempty"`
	Depth        int         `json:"depth"`
	ChildRefs    []string    `json:"child_refs,omitempty"`
	Content      ChunkContent `json:"content"`
	Summary      *string     `json:"summary,omitempty"`
	Status       ChunkStatus `json:"status"`
	CreatedAt    int64       `json:"created_at"`
	FinalizedAt  *int64      `json:"finalized_at,omitempty"`
	CompactedAt  *int64      `json:"compacted_at,omitempty"`
	Embedding    []byte      `json:"embedding,omitempty"`
}

// ChunkCreate holds the fields accepted by ChunkRepo.Create.
type ChunkCreate struct {
	SessionID string
	Content   ChunkContent
	ParentID  *string
	Depth     int
	Summary   *string
}

// ChunkUpdate holds the fields accepted by ChunkRepo.Update. A nil field
// means "leave unchanged".
type ChunkUpdate struct {
	Content     *ChunkContent
	Summary     *string
	Status      *ChunkStatus
	ChildRefs   *[]string
	FinalizedAt *int64
	CompactedAt *int64
}

// ChunkListParams holds the filters accepted by ChunkRepo.GetBySession.
type ChunkListParams struct {
	Status ChunkStatus // empty means no filter
}

// TreeNode tags a Chunk with its traversal level; both Ancestors and
// Descendants return it.
type TreeNode struct {
	Chunk Chunk
	Level int
}
