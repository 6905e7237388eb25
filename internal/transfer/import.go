package transfer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"promptlib/api/internal/store"
)

// Input is a structurally validated import payload.
type Input struct {
	Prompts    []inputPrompt
	Categories []string
}

type inputPrompt struct {
	Task      string          `json:"task"`
	Category  string          `json:"category"`
	Prompt    string          `json:"prompt"`
	Author    string          `json:"author"`
	CopyCount int             `json:"copyCount"`
	History   json.RawMessage `json:"history"`
}

// ParseImport validates the raw payload. Both `prompts` and `categories`
// must be present and be arrays; anything else is rejected before any write.
func ParseImport(raw []byte) (Input, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Input{}, fmt.Errorf("%w: empty payload", ErrMalformedImport)
	}

	var envelope struct {
		Prompts    json.RawMessage `json:"prompts"`
		Categories json.RawMessage `json:"categories"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if len(envelope.Prompts) == 0 || string(envelope.Prompts) == "null" {
		return Input{}, fmt.Errorf("%w: missing prompts array", ErrMalformedImport)
	}
	if len(envelope.Categories) == 0 || string(envelope.Categories) == "null" {
		return Input{}, fmt.Errorf("%w: missing categories array", ErrMalformedImport)
	}

	var input Input
	if err := json.Unmarshal(envelope.Prompts, &input.Prompts); err != nil {
		return Input{}, fmt.Errorf("%w: prompts is not an array of objects", ErrMalformedImport)
	}
	if err := json.Unmarshal(envelope.Categories, &input.Categories); err != nil {
		return Input{}, fmt.Errorf("%w: categories is not an array of strings", ErrMalformedImport)
	}
	return input, nil
}

// PlanImport reconciles the input against the current categories, producing
// an additive write plan. Category names deduplicate against existing ones by
// case-sensitive exact match; prompts are always inserted as new documents,
// deliberately without deduplication. Timestamps are set to import time and
// never trusted from the input; history is preserved verbatim when
// well-formed.
func PlanImport(input Input, currentCategories []store.Category, now time.Time) Plan {
	existing := make(map[string]struct{}, len(currentCategories))
	for _, c := range currentCategories {
		existing[c.Name] = struct{}{}
	}

	plan := Plan{NewCategories: []string{}, NewPrompts: []store.Prompt{}}
	seen := make(map[string]struct{})
	for _, name := range input.Categories {
		if _, ok := existing[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		plan.NewCategories = append(plan.NewCategories, name)
	}

	for _, p := range input.Prompts {
		plan.NewPrompts = append(plan.NewPrompts, importedPrompt(p, now))
	}
	return plan
}

func importedPrompt(p inputPrompt, now time.Time) store.Prompt {
	task := p.Task
	if task == "" {
		task = "untitled"
	}
	category := p.Category
	if category == "" {
		category = "uncategorized"
	}
	author := p.Author
	if author == "" {
		author = "Imported"
	}
	copyCount := p.CopyCount
	if copyCount < 0 {
		copyCount = 0
	}

	history := []store.HistoryEntry{}
	if len(p.History) > 0 {
		var parsed []store.HistoryEntry
		if err := json.Unmarshal(p.History, &parsed); err == nil && parsed != nil {
			history = parsed
		}
	}

	return store.Prompt{
		Task:         task,
		Category:     category,
		Prompt:       p.Prompt,
		Author:       author,
		CreatedDate:  now,
		LastModified: now,
		CopyCount:    copyCount,
		History:      history,
	}
}
