package livesync

import (
	"context"
	"log"
	"sync"

	"promptlib/api/internal/store"
)

type collectionReader interface {
	ListCategories(ctx context.Context) ([]store.Category, error)
	ListPrompts(ctx context.Context) ([]store.Prompt, error)
}

// ChangeStream delivers coalesced change signals for one collection.
type ChangeStream interface {
	Changes() <-chan struct{}
	Close() error
}

// Watcher keeps the State current. One goroutine per collection re-reads the
// full ordered collection on every change signal, which gives total order
// within each stream. A failed re-read leaves the last-known-good mirror in
// place; the mirror is never cleared on a transient error.
type Watcher struct {
	reader     collectionReader
	state      *State
	categories ChangeStream
	prompts    ChangeStream
	onSnapshot func(ctx context.Context)

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWatcher wires the two change streams to the state. onSnapshot runs after
// every applied snapshot of either collection (the seeder hangs off it); it
// may be nil.
func NewWatcher(reader collectionReader, state *State, categories, prompts ChangeStream, onSnapshot func(ctx context.Context)) *Watcher {
	return &Watcher{
		reader:     reader,
		state:      state,
		categories: categories,
		prompts:    prompts,
		onSnapshot: onSnapshot,
	}
}

// Start performs the initial read of both collections, then watches for
// change signals until Close. The initial read failing is an initialization
// error and is returned; later failures are logged and retried on the next
// signal.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if err := w.syncCategories(ctx); err != nil {
		return err
	}
	if err := w.syncPrompts(ctx); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.watch(ctx, store.CollectionCategories, w.categories, w.syncCategories)
	go w.watch(ctx, store.CollectionPrompts, w.prompts, w.syncPrompts)
	return nil
}

func (w *Watcher) watch(ctx context.Context, collection string, stream ChangeStream, sync func(context.Context) error) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-stream.Changes():
			if !ok {
				return
			}
			if err := sync(ctx); err != nil {
				log.Printf("livesync: %s re-read failed, keeping last-known-good mirror: %v", collection, err)
			}
		}
	}
}

func (w *Watcher) syncCategories(ctx context.Context) error {
	docs, err := w.reader.ListCategories(ctx)
	if err != nil {
		return err
	}
	w.state.ApplyCategorySnapshot(docs)
	if w.onSnapshot != nil {
		w.onSnapshot(ctx)
	}
	return nil
}

func (w *Watcher) syncPrompts(ctx context.Context) error {
	docs, err := w.reader.ListPrompts(ctx)
	if err != nil {
		return err
	}
	w.state.ApplyPromptSnapshot(docs)
	if w.onSnapshot != nil {
		w.onSnapshot(ctx)
	}
	return nil
}

// Close tears down both collection loops in one call.
func (w *Watcher) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	_ = w.categories.Close()
	_ = w.prompts.Close()
	w.wg.Wait()
}
