// Package archive keeps an append-only audit trail of every prompt write in
// a local git repository. The in-store history is bounded; the archive is
// not, so deleted or aged-out versions stay recoverable.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptlib/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const promptsDir = "prompts"

// Commit describes one archived change.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// Service owns the single archive repository. All writes land on main; the
// archive never branches.
type Service struct {
	dir string

	mu   sync.Mutex
	repo *git.Repository
}

// New opens the archive at dir, initializing it on first use.
func New(dir string) (*Service, error) {
	s := &Service{dir: dir}

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create archive dir: %w", mkErr)
		}
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive repo: %w", err)
	}

	s.repo = repo
	return s, nil
}

// RecordSave commits the full post-write state of a prompt.
func (s *Service) RecordSave(p store.Prompt, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	relPath := promptFile(p.ID)
	payload, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}

	absPath := filepath.Join(s.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("create prompts dir: %w", err)
	}
	if err := os.WriteFile(absPath, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write prompt file: %w", err)
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(relPath); err != nil {
		return fmt.Errorf("git add %s: %w", relPath, err)
	}

	message := fmt.Sprintf("save prompt %s (%s)", p.ID, p.Task)
	return s.commit(worktree, message, actor)
}

// RecordDelete commits the removal of a prompt. A prompt never archived is a
// no-op.
func (s *Service) RecordDelete(promptID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	relPath := promptFile(promptID)
	if _, err := os.Stat(filepath.Join(s.dir, relPath)); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Remove(relPath); err != nil {
		return fmt.Errorf("git rm %s: %w", relPath, err)
	}

	return s.commit(worktree, fmt.Sprintf("delete prompt %s", promptID), actor)
}

// History lists the archived changes for one prompt, newest first.
func (s *Service) History(promptID string, limit int) ([]Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, err := s.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	relPath := promptFile(promptID)
	iter, err := s.repo.Log(&git.LogOptions{
		From:     head.Hash(),
		FileName: &relPath,
	})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	commits := make([]Commit, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, Commit{
			Hash:    c.Hash.String()[:7],
			Message: c.Message,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
		if limit > 0 && len(commits) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return commits, nil
}

// VersionAt reads the archived prompt state as of a commit hash.
func (s *Service) VersionAt(promptID, hash string) (store.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := s.repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return store.Prompt{}, fmt.Errorf("resolve revision %s: %w", hash, err)
	}
	commitObj, err := s.repo.CommitObject(*resolved)
	if err != nil {
		return store.Prompt{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(promptFile(promptID))
	if err != nil {
		return store.Prompt{}, fmt.Errorf("load archived prompt: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return store.Prompt{}, fmt.Errorf("open archived prompt: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return store.Prompt{}, fmt.Errorf("read archived prompt: %w", err)
	}

	var p store.Prompt
	if err := json.Unmarshal(raw, &p); err != nil {
		return store.Prompt{}, fmt.Errorf("decode archived prompt: %w", err)
	}
	return p, nil
}

func (s *Service) commit(worktree *git.Worktree, message, actor string) error {
	if actor == "" {
		actor = "promptlib"
	}
	_, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  actor,
			Email: fmt.Sprintf("%s@local.promptlib.dev", sanitizeEmail(actor)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit archive change: %w", err)
	}
	return nil
}

func promptFile(promptID string) string {
	return filepath.Join(promptsDir, promptID+".json")
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
