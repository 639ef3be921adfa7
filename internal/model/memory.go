// Package model defines the persisted data types shared across Memoir's
// repositories and services.
package model

// MemoryType enumerates the allowed values for Memory.Type.
type MemoryType string

const (
	MemoryPreference MemoryType = "preference"
	MemoryPattern    MemoryType = "pattern"
	MemoryGotcha     MemoryType = "gotcha"
	MemoryFact       MemoryType = "fact"
	MemoryLearned    MemoryType = "learned"
)

// ValidMemoryTypes holds the enumerated set from spec §3.
var ValidMemoryTypes = map[MemoryType]bool{
	MemoryPreference: true,
	MemoryPattern:    true,
	MemoryGotcha:     true,
	MemoryFact:       true,
	MemoryLearned:    true,
}

// MemorySource enumerates the allowed values for Memory.Source.
type MemorySource string

const (
	SourceUser       MemorySource = "user"
	SourceCompaction MemorySource = "compaction"
	SourceAuto       MemorySource = "auto"
)

// ValidMemorySources holds the enumerated set from spec §3.
var ValidMemorySources = map[MemorySource]bool{
	SourceUser:       true,
	SourceCompaction: true,
	SourceAuto:       true,
}

// Memory is a single curated fact/preference/pattern/gotcha/learned item.
type Memory struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Type      MemoryType   `json:"type"`
	Tags      []string     `json:"tags,omitempty"`
	Source    MemorySource `json:"source"`
	CreatedAt int64        `json:"created_at"`
	UpdatedAt *int64       `json:"updated_at,omitempty"`
	Embedding []byte       `json:"embedding,omitempty"`
}

// MemoryCreate holds the fields accepted by MemoryRepo.Create.
type MemoryCreate struct {
	Content string
	Type    MemoryType
	Tags    []string
	Source  MemorySource
}

// MemoryUpdate holds the fields accepted by MemoryRepo.Update. A nil field
// means "leave unchanged".
type MemoryUpdate struct {
	Content *string
	Type    *MemoryType
	Tags    *[]string
}

// MemoryListParams holds the filters accepted by MemoryRepo.List.
type MemoryListParams struct {
	Limit  int
	Offset int
	Type   MemoryType // empty means no filter
}
