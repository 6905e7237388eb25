package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrCategoryExists = errors.New("category already exists")
	ErrCategoryInUse  = errors.New("category is referenced by prompts")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListCategories returns all categories ordered by name ascending, the order
// the category subscription stream delivers.
func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// ListPrompts returns all prompts ordered by created date descending, the
// order the prompt subscription stream delivers.
func (s *PostgresStore) ListPrompts(ctx context.Context) ([]Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task, category, prompt, author, created_date, last_modified, copy_count, history
		FROM prompts
		ORDER BY created_date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	items := make([]Prompt, 0)
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetPrompt(ctx context.Context, id string) (Prompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task, category, prompt, author, created_date, last_modified, copy_count, history
		FROM prompts
		WHERE id = $1
	`, id)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Prompt{}, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) CreateCategory(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if isUniqueViolation(err) {
		return "", ErrCategoryExists
	}
	if err != nil {
		return "", fmt.Errorf("insert category: %w", err)
	}
	return id, nil
}

// DeleteCategory removes a category unless any prompt still references its
// name. The check and delete share one transaction.
func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete category: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	err = tx.QueryRowContext(ctx, `SELECT name FROM categories WHERE id=$1`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup category: %w", err)
	}

	var inUse bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM prompts WHERE category=$1)`, name).Scan(&inUse); err != nil {
		return fmt.Errorf("check category usage: %w", err)
	}
	if inUse {
		return ErrCategoryInUse
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return tx.Commit()
}

// RenameCategoryCascade renames a category and rewrites the denormalized
// category field of every referencing prompt in the same transaction, so a
// half-migrated state is never visible.
func (s *PostgresStore) RenameCategoryCascade(ctx context.Context, id, newName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rename category: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldName string
	err = tx.QueryRowContext(ctx, `SELECT name FROM categories WHERE id=$1`, id).Scan(&oldName)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup category: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE categories SET name=$1 WHERE id=$2`, newName, id); err != nil {
		if isUniqueViolation(err) {
			return ErrCategoryExists
		}
		return fmt.Errorf("rename category: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE prompts SET category=$1 WHERE category=$2`, newName, oldName); err != nil {
		return fmt.Errorf("cascade rename to prompts: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) CreatePrompt(ctx context.Context, p Prompt) (string, error) {
	history, err := marshalHistory(p.History)
	if err != nil {
		return "", err
	}
	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO prompts (task, category, prompt, author, created_date, last_modified, copy_count, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, p.Task, p.Category, p.Prompt, p.Author, p.CreatedDate, p.LastModified, p.CopyCount, history).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert prompt: %w", err)
	}
	return id, nil
}

// UpdatePrompt overwrites the editable fields and the history list.
// CreatedDate and CopyCount are never touched by an edit.
func (s *PostgresStore) UpdatePrompt(ctx context.Context, id string, p Prompt) error {
	history, err := marshalHistory(p.History)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE prompts
		SET task=$1, category=$2, prompt=$3, author=$4, last_modified=$5, history=$6
		WHERE id=$7
	`, p.Task, p.Category, p.Prompt, p.Author, p.LastModified, history, id)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update prompt rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePrompt(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete prompt rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementCopyCount bumps the counter server-side. Concurrent copies from
// multiple clients must not lose updates, so this is never read-modify-write.
func (s *PostgresStore) IncrementCopyCount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE prompts SET copy_count = copy_count + 1 WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("increment copy count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment copy count rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CommitBatch applies all operations in one transaction; either every create
// lands or none does.
func (s *PostgresStore) CommitBatch(ctx context.Context, ops []BatchOp) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range ops {
		switch op.Kind {
		case BatchCreateCategory:
			if _, err := tx.ExecContext(ctx, `INSERT INTO categories (name) VALUES ($1)`, op.CategoryName); err != nil {
				if isUniqueViolation(err) {
					return ErrCategoryExists
				}
				return fmt.Errorf("batch insert category %q: %w", op.CategoryName, err)
			}
		case BatchCreatePrompt:
			history, err := marshalHistory(op.Prompt.History)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO prompts (task, category, prompt, author, created_date, last_modified, copy_count, history)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, op.Prompt.Task, op.Prompt.Category, op.Prompt.Prompt, op.Prompt.Author,
				op.Prompt.CreatedDate, op.Prompt.LastModified, op.Prompt.CopyCount, history); err != nil {
				return fmt.Errorf("batch insert prompt %q: %w", op.Prompt.Task, err)
			}
		default:
			return fmt.Errorf("unknown batch op kind %q", op.Kind)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row rowScanner) (Prompt, error) {
	var p Prompt
	var history []byte
	err := row.Scan(&p.ID, &p.Task, &p.Category, &p.Prompt, &p.Author,
		&p.CreatedDate, &p.LastModified, &p.CopyCount, &history)
	if err != nil {
		return Prompt{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &p.History); err != nil {
			return Prompt{}, fmt.Errorf("decode history for prompt %s: %w", p.ID, err)
		}
	}
	if p.History == nil {
		p.History = []HistoryEntry{}
	}
	return p, nil
}

func marshalHistory(history []HistoryEntry) ([]byte, error) {
	if history == nil {
		history = []HistoryEntry{}
	}
	payload, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return payload, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
