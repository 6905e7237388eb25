package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"promptlib/api/internal/store"
)

type fakeCommitter struct {
	calls [][]store.BatchOp
	err   error
}

func (f *fakeCommitter) CommitBatch(_ context.Context, ops []store.BatchOp) error {
	f.calls = append(f.calls, ops)
	return f.err
}

type fakeMirror struct {
	observed bool
	empty    bool
}

func (f *fakeMirror) BothObserved() bool { return f.observed }
func (f *fakeMirror) IsEmpty() bool      { return f.empty }

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, collection string) {
	f.published = append(f.published, collection)
}

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

const seedDoc = `{
	"prompts": [
		{"task": "Summarize", "category": "Writing", "prompt": "Summarize {{article}}", "author": "System"},
		{"task": "Review", "category": "Coding", "prompt": "Review {{diff}}", "author": "System"}
	],
	"categories": ["Writing", "Coding"]
}`

func TestObserveWaitsForBothCollections(t *testing.T) {
	committer := &fakeCommitter{}
	mirror := &fakeMirror{observed: false, empty: true}
	b := NewBootstrapper(committer, mirror, &fakePublisher{}, writeSeedFile(t, seedDoc))

	b.Observe(context.Background())
	if len(committer.calls) != 0 {
		t.Fatal("must not seed before both collections are observed")
	}
	if b.Phase() != PhaseUnknown {
		t.Fatalf("expected PhaseUnknown, got %v", b.Phase())
	}
}

func TestObserveSeedsEmptyStoreOnce(t *testing.T) {
	committer := &fakeCommitter{}
	mirror := &fakeMirror{observed: true, empty: true}
	b := NewBootstrapper(committer, mirror, &fakePublisher{}, writeSeedFile(t, seedDoc))

	b.Observe(context.Background())
	b.Observe(context.Background())

	if len(committer.calls) != 1 {
		t.Fatalf("expected exactly one seed batch, got %d", len(committer.calls))
	}
	if b.Phase() != PhaseSeeded {
		t.Fatalf("expected PhaseSeeded, got %v", b.Phase())
	}

	ops := committer.calls[0]
	if len(ops) != 4 {
		t.Fatalf("expected 2 categories + 2 prompts, got %d ops", len(ops))
	}
	// Category names plant in sorted order, ahead of any prompt.
	if ops[0].Kind != store.BatchCreateCategory || ops[0].CategoryName != "Coding" {
		t.Fatalf("expected Coding first, got %+v", ops[0])
	}
	if ops[1].CategoryName != "Writing" {
		t.Fatalf("expected Writing second, got %+v", ops[1])
	}
	if ops[2].Kind != store.BatchCreatePrompt || ops[2].Prompt.Author != "System" {
		t.Fatalf("expected seeded prompt by System, got %+v", ops[2])
	}
}

func TestObservePublishesChangeSignalsAfterSeeding(t *testing.T) {
	committer := &fakeCommitter{}
	mirror := &fakeMirror{observed: true, empty: true}
	publisher := &fakePublisher{}
	b := NewBootstrapper(committer, mirror, publisher, writeSeedFile(t, seedDoc))

	b.Observe(context.Background())

	// The watcher only re-reads on a signal, so the seed write must announce
	// both collections or every mirror keeps the pre-seed empty snapshots.
	if len(publisher.published) != 2 {
		t.Fatalf("expected signals for both collections, got %v", publisher.published)
	}
	if publisher.published[0] != store.CollectionCategories || publisher.published[1] != store.CollectionPrompts {
		t.Fatalf("expected categories then prompts, got %v", publisher.published)
	}
}

func TestObserveSkipsNonEmptyStore(t *testing.T) {
	committer := &fakeCommitter{}
	mirror := &fakeMirror{observed: true, empty: false}
	publisher := &fakePublisher{}
	b := NewBootstrapper(committer, mirror, publisher, writeSeedFile(t, seedDoc))

	b.Observe(context.Background())
	if len(committer.calls) != 0 {
		t.Fatal("must not seed a store that already has data")
	}
	if len(publisher.published) != 0 {
		t.Fatal("no seed write means no change signal")
	}
	if b.Phase() != PhaseSeeded {
		t.Fatalf("expected PhaseSeeded, got %v", b.Phase())
	}
}

func TestObserveRetriesAfterFailedCommit(t *testing.T) {
	committer := &fakeCommitter{err: errors.New("connection reset")}
	mirror := &fakeMirror{observed: true, empty: true}
	publisher := &fakePublisher{}
	b := NewBootstrapper(committer, mirror, publisher, writeSeedFile(t, seedDoc))

	b.Observe(context.Background())
	if b.Phase() != PhaseUnknown {
		t.Fatalf("failed seed must return to PhaseUnknown, got %v", b.Phase())
	}
	if len(publisher.published) != 0 {
		t.Fatal("a failed commit must not publish change signals")
	}

	committer.err = nil
	b.Observe(context.Background())
	if b.Phase() != PhaseSeeded {
		t.Fatalf("expected PhaseSeeded after retry, got %v", b.Phase())
	}
	if len(committer.calls) != 2 {
		t.Fatalf("expected two attempts, got %d", len(committer.calls))
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected signals after the successful retry, got %v", publisher.published)
	}
}

func TestObserveMissingSeedFileIsANoOp(t *testing.T) {
	committer := &fakeCommitter{}
	mirror := &fakeMirror{observed: true, empty: true}
	b := NewBootstrapper(committer, mirror, &fakePublisher{}, filepath.Join(t.TempDir(), "absent.json"))

	b.Observe(context.Background())
	if len(committer.calls) != 0 {
		t.Fatal("missing seed file must not write anything")
	}
	if b.Phase() != PhaseSeeded {
		t.Fatalf("expected PhaseSeeded, got %v", b.Phase())
	}
}
