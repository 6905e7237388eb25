// Package transfer implements bulk export and additive import of the whole
// dataset, plus the printable PDF rendering of the library.
package transfer

import (
	"errors"
	"time"

	"promptlib/api/internal/store"
)

// FormatVersion identifies the export document format.
const FormatVersion = "prompt-library-v3.0"

// ErrMalformedImport means the payload failed structural validation; it is
// rejected before any write is attempted.
var ErrMalformedImport = errors.New("malformed import payload")

// Document is the export/import file format. All timestamps serialize as
// ISO-8601 strings, never a store-native type.
type Document struct {
	Version      string         `json:"version"`
	ExportedDate time.Time      `json:"exportedDate"`
	Prompts      []PromptRecord `json:"prompts"`
	Categories   []string       `json:"categories"`
}

// PromptRecord is a prompt as it appears in an export document, without the
// store-assigned id.
type PromptRecord struct {
	Task         string               `json:"task"`
	Category     string               `json:"category"`
	Prompt       string               `json:"prompt"`
	Author       string               `json:"author"`
	CreatedDate  time.Time            `json:"createdDate"`
	LastModified time.Time            `json:"lastModified"`
	CopyCount    int                  `json:"copyCount"`
	History      []store.HistoryEntry `json:"history"`
}

// Plan is the additive write set derived from an import: only creates, never
// updates or deletes.
type Plan struct {
	NewCategories []string
	NewPrompts    []store.Prompt
}

// Ops flattens the plan into a single batch for atomic commit.
func (p Plan) Ops() []store.BatchOp {
	ops := make([]store.BatchOp, 0, len(p.NewCategories)+len(p.NewPrompts))
	for _, name := range p.NewCategories {
		ops = append(ops, store.BatchOp{Kind: store.BatchCreateCategory, CategoryName: name})
	}
	for _, prompt := range p.NewPrompts {
		ops = append(ops, store.BatchOp{Kind: store.BatchCreatePrompt, Prompt: prompt})
	}
	return ops
}
