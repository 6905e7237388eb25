// Package search finds prompts by free text. Meilisearch serves queries when
// it is reachable; Postgres full-text search covers for it otherwise.
package search

// Query is a free-text search over the prompt library.
type Query struct {
	Text     string
	Category string
	Limit    int
	Offset   int
}

// Result is one matching prompt. Title and Snippet may carry <mark> highlight
// tags when served by Meilisearch.
type Result struct {
	ID       string `json:"id"`
	Task     string `json:"task"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
	Author   string `json:"author"`
}

// Response is the search payload returned to clients.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// PromptRecord is the shape pushed into the search index.
type PromptRecord struct {
	ID       string `json:"id"`
	Task     string `json:"task"`
	Category string `json:"category"`
	Prompt   string `json:"prompt"`
	Author   string `json:"author"`
}
