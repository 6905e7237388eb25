// Package library holds the pure edit/history transforms. Nothing here does
// I/O; callers persist the returned payloads and let the subscription path
// refresh the mirror.
package library

import (
	"errors"
	"time"

	"promptlib/api/internal/store"
)

// DefaultHistoryLimit bounds the retained versions per prompt.
const DefaultHistoryLimit = 10

var (
	// ErrStaleReference means the edit target no longer exists locally,
	// likely deleted concurrently by another client.
	ErrStaleReference = errors.New("edit target no longer exists")
	// ErrIndexOutOfRange means the requested history index is invalid.
	ErrIndexOutOfRange = errors.New("history index out of range")
)

// EditFields are the user-editable prompt fields.
type EditFields struct {
	Task     string
	Category string
	Prompt   string
	Author   string
}

// RecordEdit derives the write payload for saving an edit: the prior state
// becomes history[0] and the list is truncated to limit entries. The caller
// must pass the currently mirrored prompt; a nil existing surfaces as
// ErrStaleReference instead of silently creating a new record.
func RecordEdit(existing *store.Prompt, fields EditFields, now time.Time, limit int) (store.Prompt, error) {
	if existing == nil {
		return store.Prompt{}, ErrStaleReference
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	history := make([]store.HistoryEntry, 0, len(existing.History)+1)
	history = append(history, store.HistoryEntry{
		Prompt:       existing.Prompt,
		ModifiedDate: existing.LastModified,
		Author:       existing.Author,
	})
	history = append(history, existing.History...)
	if len(history) > limit {
		history = history[:limit]
	}

	return store.Prompt{
		ID:           existing.ID,
		Task:         fields.Task,
		Category:     fields.Category,
		Prompt:       fields.Prompt,
		Author:       fields.Author,
		CreatedDate:  existing.CreatedDate,
		LastModified: now,
		CopyCount:    existing.CopyCount,
		History:      history,
	}, nil
}

// RecordCreate derives the write payload for a new prompt. Counters and
// history always start clean regardless of input.
func RecordCreate(fields EditFields, now time.Time) store.Prompt {
	return store.Prompt{
		Task:         fields.Task,
		Category:     fields.Category,
		Prompt:       fields.Prompt,
		Author:       fields.Author,
		CreatedDate:  now,
		LastModified: now,
		CopyCount:    0,
		History:      []store.HistoryEntry{},
	}
}

// SelectHistoricalBody returns the body text of one retained version. This
// only stages content for a future save; it never writes.
func SelectHistoricalBody(p store.Prompt, index int) (string, error) {
	if index < 0 || index >= len(p.History) {
		return "", ErrIndexOutOfRange
	}
	return p.History[index].Prompt, nil
}
