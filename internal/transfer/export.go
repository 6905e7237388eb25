package transfer

import (
	"encoding/json"
	"fmt"
	"time"

	"promptlib/api/internal/store"
)

// BuildExport assembles the export document from the current mirrors.
// Store-assigned ids are stripped; history arrays are carried verbatim.
func BuildExport(prompts []store.Prompt, categories []store.Category, now time.Time) Document {
	records := make([]PromptRecord, 0, len(prompts))
	for _, p := range prompts {
		history := p.History
		if history == nil {
			history = []store.HistoryEntry{}
		}
		records = append(records, PromptRecord{
			Task:         p.Task,
			Category:     p.Category,
			Prompt:       p.Prompt,
			Author:       p.Author,
			CreatedDate:  p.CreatedDate,
			LastModified: p.LastModified,
			CopyCount:    p.CopyCount,
			History:      history,
		})
	}

	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}

	return Document{
		Version:      FormatVersion,
		ExportedDate: now,
		Prompts:      records,
		Categories:   names,
	}
}

// EncodeExport renders the document as indented JSON with a trailing newline,
// ready to download or upload as a backup object.
func EncodeExport(doc Document) ([]byte, error) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return append(payload, '\n'), nil
}

// ExportFilename names a backup file for the given day.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("prompt_library_backup_%s.json", now.Format("2006-01-02"))
}
