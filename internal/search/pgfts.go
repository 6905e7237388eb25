package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS serves search from the prompts table when Meilisearch is down. The
// fts column is generated by the schema, so it needs no indexing pipeline.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL full-text searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Search runs plainto_tsquery over the prompts table with ts_rank ordering
// and ts_headline snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", len(args)+1)
		args = append(args, q.Category)
	}

	countQuery := "SELECT count(*) FROM prompts WHERE " + where
	var total int
	if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, task, category,
			ts_headline('english', coalesce(prompt, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			author
		FROM prompts
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC, created_date DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query search results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Task, &r.Category, &r.Snippet, &r.Author); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every prompt for a full reindex into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PromptRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, task, category, prompt, author FROM prompts`)
	if err != nil {
		return nil, fmt.Errorf("load prompts for reindex: %w", err)
	}
	defer rows.Close()

	var records []PromptRecord
	for rows.Next() {
		var r PromptRecord
		if err := rows.Scan(&r.ID, &r.Task, &r.Category, &r.Prompt, &r.Author); err != nil {
			return nil, fmt.Errorf("scan reindex record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reindex records: %w", err)
	}
	return records, nil
}
