// Package app wires the domain packages into the semantic actions the HTTP
// layer exposes. Reads are served from the live mirror; writes go to the
// store and announce themselves on the change bus, and the mirror catches up
// through the subscription path.
package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"promptlib/api/internal/archive"
	"promptlib/api/internal/library"
	"promptlib/api/internal/livesync"
	"promptlib/api/internal/search"
	"promptlib/api/internal/store"
	"promptlib/api/internal/transfer"
)

// Store is the persistence surface the service writes through.
type Store interface {
	Ping(ctx context.Context) error
	CreateCategory(ctx context.Context, name string) (string, error)
	DeleteCategory(ctx context.Context, id string) error
	RenameCategoryCascade(ctx context.Context, id, newName string) error
	CreatePrompt(ctx context.Context, p store.Prompt) (string, error)
	UpdatePrompt(ctx context.Context, id string, p store.Prompt) error
	DeletePrompt(ctx context.Context, id string) error
	IncrementCopyCount(ctx context.Context, id string) error
	CommitBatch(ctx context.Context, ops []store.BatchOp) error
}

// Mirror is the read surface over the live collection mirrors.
type Mirror interface {
	Categories() []store.Category
	Prompts() []store.Prompt
	PromptByID(id string) (store.Prompt, bool)
	Listen() (int, <-chan livesync.Change)
	Unlisten(id int)
}

// Publisher announces collection changes after successful writes.
type Publisher interface {
	Publish(ctx context.Context, collection string)
}

// Searcher indexes and queries prompts. May be nil when search is not
// configured.
type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexPrompt(record search.PromptRecord)
	DeletePrompt(id string)
	ReindexAllFromPG(ctx context.Context)
}

// Archiver records every prompt write in the audit archive and serves the
// unbounded history back. May be nil.
type Archiver interface {
	RecordSave(p store.Prompt, actor string) error
	RecordDelete(promptID, actor string) error
	History(promptID string, limit int) ([]archive.Commit, error)
	VersionAt(promptID, hash string) (store.Prompt, error)
}

// BackupUploader pushes export snapshots to object storage. May be nil.
type BackupUploader interface {
	Enabled() bool
	Upload(ctx context.Context, filename string, payload []byte) error
}

type Service struct {
	store        Store
	mirror       Mirror
	publisher    Publisher
	searcher     Searcher
	archiver     Archiver
	backups      BackupUploader
	historyLimit int
	now          func() time.Time
}

func NewService(st Store, mirror Mirror, publisher Publisher, searcher Searcher, archiver Archiver, backups BackupUploader, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = library.DefaultHistoryLimit
	}
	return &Service{
		store:        st,
		mirror:       mirror,
		publisher:    publisher,
		searcher:     searcher,
		archiver:     archiver,
		backups:      backups,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Categories returns the mirrored categories, name ascending.
func (s *Service) Categories() []store.Category {
	return s.mirror.Categories()
}

// Prompts returns the mirrored prompts, newest first.
func (s *Service) Prompts() []store.Prompt {
	return s.mirror.Prompts()
}

// ListenChanges subscribes to mirror replacements for the SSE stream.
func (s *Service) ListenChanges() (int, <-chan livesync.Change) {
	return s.mirror.Listen()
}

func (s *Service) UnlistenChanges(id int) {
	s.mirror.Unlisten(id)
}

// CreatePrompt validates and persists a new prompt. The returned record
// carries the store-assigned id; the mirror catches up via the change signal.
func (s *Service) CreatePrompt(ctx context.Context, fields library.EditFields) (store.Prompt, error) {
	fields, err := normalizeFields(fields)
	if err != nil {
		return store.Prompt{}, err
	}

	payload := library.RecordCreate(fields, s.now().UTC())
	id, err := s.store.CreatePrompt(ctx, payload)
	if err != nil {
		return store.Prompt{}, writeFailed("create prompt", err)
	}
	payload.ID = id

	s.publisher.Publish(ctx, store.CollectionPrompts)
	s.afterPromptSave(payload)
	return payload, nil
}

// UpdatePrompt saves an edit. The pre-edit state comes from the mirror so
// the history entry records what this client last saw; an id the mirror no
// longer knows is a stale reference, not an implicit create.
func (s *Service) UpdatePrompt(ctx context.Context, id string, fields library.EditFields) (store.Prompt, error) {
	fields, err := normalizeFields(fields)
	if err != nil {
		return store.Prompt{}, err
	}

	var existing *store.Prompt
	if current, ok := s.mirror.PromptByID(id); ok {
		existing = &current
	}

	payload, err := library.RecordEdit(existing, fields, s.now().UTC(), s.historyLimit)
	if errors.Is(err, library.ErrStaleReference) {
		return store.Prompt{}, staleReference(id)
	}
	if err != nil {
		return store.Prompt{}, err
	}

	if err := s.store.UpdatePrompt(ctx, id, payload); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Prompt{}, staleReference(id)
		}
		return store.Prompt{}, writeFailed("update prompt", err)
	}
	payload.ID = id

	s.publisher.Publish(ctx, store.CollectionPrompts)
	s.afterPromptSave(payload)
	return payload, nil
}

func (s *Service) DeletePrompt(ctx context.Context, id string) error {
	if err := s.store.DeletePrompt(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Prompt not found", nil)
		}
		return writeFailed("delete prompt", err)
	}

	s.publisher.Publish(ctx, store.CollectionPrompts)
	if s.archiver != nil {
		if err := s.archiver.RecordDelete(id, ""); err != nil {
			log.Printf("archive: record delete %s: %v", id, err)
		}
	}
	if s.searcher != nil {
		s.searcher.DeletePrompt(id)
	}
	return nil
}

// CopyPrompt bumps the copy counter atomically in the store and returns the
// body so the client can place it on the clipboard. The counter is never
// read-modified-written locally.
func (s *Service) CopyPrompt(ctx context.Context, id string) (string, error) {
	p, ok := s.mirror.PromptByID(id)
	if !ok {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "Prompt not found", nil)
	}

	if err := s.store.IncrementCopyCount(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domainError(http.StatusNotFound, "NOT_FOUND", "Prompt not found", nil)
		}
		return "", writeFailed("increment copy count", err)
	}

	s.publisher.Publish(ctx, store.CollectionPrompts)
	return p.Prompt, nil
}

// HistoricalBody returns the body of one retained version, staging it for a
// future save without writing anything.
func (s *Service) HistoricalBody(id string, index int) (string, error) {
	p, ok := s.mirror.PromptByID(id)
	if !ok {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "Prompt not found", nil)
	}
	body, err := library.SelectHistoricalBody(p, index)
	if errors.Is(err, library.ErrIndexOutOfRange) {
		return "", domainError(http.StatusUnprocessableEntity, "INDEX_OUT_OF_RANGE", "No such history entry", map[string]any{"index": index})
	}
	if err != nil {
		return "", err
	}
	return body, nil
}

// ArchiveHistory lists the audit-archive commits for a prompt, newest first.
// Unlike the bounded in-record history this also covers deleted prompts.
func (s *Service) ArchiveHistory(id string) ([]archive.Commit, error) {
	if s.archiver == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive is not configured", nil)
	}
	commits, err := s.archiver.History(id, 0)
	if err != nil {
		log.Printf("app: read archive history for %s: %v", id, err)
		return nil, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Could not read archive history", nil)
	}
	if commits == nil {
		commits = []archive.Commit{}
	}
	return commits, nil
}

// ArchiveVersion recovers the archived prompt state at a commit hash.
func (s *Service) ArchiveVersion(id, hash string) (store.Prompt, error) {
	if s.archiver == nil {
		return store.Prompt{}, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive is not configured", nil)
	}
	p, err := s.archiver.VersionAt(id, hash)
	if err != nil {
		return store.Prompt{}, domainError(http.StatusNotFound, "NOT_FOUND", "No archived version at that commit", map[string]any{"hash": hash})
	}
	return p, nil
}

func (s *Service) AddCategory(ctx context.Context, name string) (store.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Category{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	id, err := s.store.CreateCategory(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrCategoryExists) {
			return store.Category{}, domainError(http.StatusConflict, "CATEGORY_EXISTS", "Category already exists", nil)
		}
		return store.Category{}, writeFailed("create category", err)
	}

	s.publisher.Publish(ctx, store.CollectionCategories)
	return store.Category{ID: id, Name: name}, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domainError(http.StatusNotFound, "NOT_FOUND", "Category not found", nil)
		case errors.Is(err, store.ErrCategoryInUse):
			return domainError(http.StatusConflict, "CATEGORY_IN_USE", "Category is still referenced by prompts", nil)
		default:
			return writeFailed("delete category", err)
		}
	}

	s.publisher.Publish(ctx, store.CollectionCategories)
	return nil
}

// RenameCategory renames a category and cascades the new name to every
// referencing prompt in one transaction.
func (s *Service) RenameCategory(ctx context.Context, id, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	if err := s.store.RenameCategoryCascade(ctx, id, newName); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domainError(http.StatusNotFound, "NOT_FOUND", "Category not found", nil)
		case errors.Is(err, store.ErrCategoryExists):
			return domainError(http.StatusConflict, "CATEGORY_EXISTS", "Category already exists", nil)
		default:
			return writeFailed("rename category", err)
		}
	}

	s.publisher.Publish(ctx, store.CollectionCategories)
	s.publisher.Publish(ctx, store.CollectionPrompts)
	if s.searcher != nil {
		// Denormalized category names changed under the index.
		go s.searcher.ReindexAllFromPG(context.Background())
	}
	return nil
}

// ImportResult reports what an import added.
type ImportResult struct {
	ImportedPrompts    int `json:"importedPrompts"`
	ImportedCategories int `json:"importedCategories"`
}

// Import merges an uploaded document additively: nothing existing is updated
// or deleted, and a malformed payload is rejected before any write.
func (s *Service) Import(ctx context.Context, raw []byte) (ImportResult, error) {
	input, err := transfer.ParseImport(raw)
	if err != nil {
		return ImportResult{}, domainError(http.StatusBadRequest, "MALFORMED_IMPORT", "Invalid import file", map[string]any{"reason": err.Error()})
	}

	plan := transfer.PlanImport(input, s.mirror.Categories(), s.now().UTC())
	ops := plan.Ops()
	result := ImportResult{
		ImportedPrompts:    len(plan.NewPrompts),
		ImportedCategories: len(plan.NewCategories),
	}
	if len(ops) == 0 {
		return result, nil
	}

	if err := s.store.CommitBatch(ctx, ops); err != nil {
		return ImportResult{}, writeFailed("commit import batch", err)
	}

	if len(plan.NewCategories) > 0 {
		s.publisher.Publish(ctx, store.CollectionCategories)
	}
	if len(plan.NewPrompts) > 0 {
		s.publisher.Publish(ctx, store.CollectionPrompts)
	}
	if s.searcher != nil {
		go s.searcher.ReindexAllFromPG(context.Background())
	}
	return result, nil
}

// Export builds the downloadable backup document from the mirrors.
func (s *Service) Export() (string, []byte, error) {
	now := s.now().UTC()
	doc := transfer.BuildExport(s.mirror.Prompts(), s.mirror.Categories(), now)
	payload, err := transfer.EncodeExport(doc)
	if err != nil {
		return "", nil, err
	}
	return transfer.ExportFilename(now), payload, nil
}

// ExportPDF renders the printable library table.
func (s *Service) ExportPDF(ctx context.Context) (*transfer.PDFResult, error) {
	result, err := transfer.RenderLibraryPDF(ctx, transfer.LibraryPage{
		Title:       "Prompt Library",
		GeneratedAt: s.now().UTC(),
		Prompts:     s.mirror.Prompts(),
		Categories:  s.mirror.Categories(),
	})
	if errors.Is(err, transfer.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF renderer not available", nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Backup uploads the current export snapshot to object storage.
func (s *Service) Backup(ctx context.Context) (string, error) {
	if s.backups == nil || !s.backups.Enabled() {
		return "", domainError(http.StatusServiceUnavailable, "BACKUP_UNAVAILABLE", "Backups are not configured", nil)
	}

	filename, payload, err := s.Export()
	if err != nil {
		return "", err
	}
	if err := s.backups.Upload(ctx, filename, payload); err != nil {
		return "", writeFailed("upload backup", err)
	}
	return filename, nil
}

// Search answers a free-text query over the library.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.searcher == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.searcher.Search(ctx, q)
}

func (s *Service) afterPromptSave(p store.Prompt) {
	if s.archiver != nil {
		if err := s.archiver.RecordSave(p, p.Author); err != nil {
			log.Printf("archive: record save %s: %v", p.ID, err)
		}
	}
	if s.searcher != nil {
		s.searcher.IndexPrompt(search.PromptRecord{
			ID:       p.ID,
			Task:     p.Task,
			Category: p.Category,
			Prompt:   p.Prompt,
			Author:   p.Author,
		})
	}
}

func normalizeFields(fields library.EditFields) (library.EditFields, error) {
	fields.Task = strings.TrimSpace(fields.Task)
	fields.Category = strings.TrimSpace(fields.Category)
	fields.Prompt = strings.TrimSpace(fields.Prompt)
	fields.Author = strings.TrimSpace(fields.Author)

	missing := []string{}
	if fields.Task == "" {
		missing = append(missing, "task")
	}
	if fields.Category == "" {
		missing = append(missing, "category")
	}
	if fields.Prompt == "" {
		missing = append(missing, "prompt")
	}
	if fields.Author == "" {
		missing = append(missing, "author")
	}
	if len(missing) > 0 {
		return fields, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", map[string]any{"fields": missing})
	}
	return fields, nil
}

func staleReference(id string) *DomainError {
	return domainError(http.StatusConflict, "STALE_REFERENCE", "Prompt no longer exists", map[string]any{"id": id})
}

func writeFailed(op string, err error) *DomainError {
	log.Printf("app: %s: %v", op, err)
	return domainError(http.StatusInternalServerError, "WRITE_FAILED", "Write failed", nil)
}
