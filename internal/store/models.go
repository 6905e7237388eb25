package store

import "time"

// Collection names, used as pub/sub change channels and stream identifiers.
const (
	CollectionCategories = "categories"
	CollectionPrompts    = "prompts"
)

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Prompt is a reusable text template. Category is a denormalized copy of a
// Category.Name at last-save time, not a foreign key; it may be orphaned by a
// later category delete.
type Prompt struct {
	ID           string         `json:"id"`
	Task         string         `json:"task"`
	Category     string         `json:"category"`
	Prompt       string         `json:"prompt"`
	Author       string         `json:"author"`
	CreatedDate  time.Time      `json:"createdDate"`
	LastModified time.Time      `json:"lastModified"`
	CopyCount    int            `json:"copyCount"`
	History      []HistoryEntry `json:"history"`
}

// HistoryEntry captures the prompt state immediately before an edit.
// Entries are immutable and ordered most-recent-first.
type HistoryEntry struct {
	Prompt       string    `json:"prompt"`
	ModifiedDate time.Time `json:"modifiedDate"`
	Author       string    `json:"author"`
}

type BatchOpKind string

const (
	BatchCreateCategory BatchOpKind = "create_category"
	BatchCreatePrompt   BatchOpKind = "create_prompt"
)

// BatchOp is one write in an all-or-nothing batch commit.
type BatchOp struct {
	Kind         BatchOpKind
	CategoryName string
	Prompt       Prompt
}
